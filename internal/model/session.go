package model

import "time"

// Session is the persisted side of a bearer token. Only hashes of the issued secrets are kept.
type Session struct {
	ID               string
	UserID           string
	TokenHash        string
	RefreshHash      string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	RevokedAt        *time.Time
	UserAgent        string
	IP               string
}

func (s Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type ClientInfo struct {
	UserAgent string
	IP        string
}

// IssuedSession holds the plaintext tokens. It is returned exactly once, at issuance.
type IssuedSession struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// AuthSession is the result of validating a bearer token.
type AuthSession struct {
	SessionID string
	User      User
	ExpiresAt time.Time
}

type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

type LoginResult struct {
	TokenPair
	Profile
}
