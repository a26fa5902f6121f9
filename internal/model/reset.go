package model

import "time"

const ResetRequestedMessage = "If the email is registered, a password reset link has been sent."

// PasswordReset is the single pending reset for an email address.
type PasswordReset struct {
	Email     string
	TokenHash string
	CreatedAt time.Time
}

type ResetNotification struct {
	To        string
	Name      string
	Link      string
	ExpiresIn time.Duration
}

type ResetRequestResult struct {
	Message    string `json:"message"`
	DebugToken string `json:"debug_token,omitempty"`
}

type ResetConfirmInput struct {
	Email       string
	Token       string
	NewPassword string
}
