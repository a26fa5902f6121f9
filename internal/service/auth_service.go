package service

import (
	"context"
	"time"

	"go-rbac-auth/internal/event"
	"go-rbac-auth/internal/model"
)

// AuthService composes the credential store, session manager and RBAC graph into the
// login flows used by the HTTP layer.
type AuthService struct {
	credentials *CredentialService
	sessions    *SessionService
	rbac        *RBACService
	opts        options
}

func NewAuthService(credentials *CredentialService, sessions *SessionService, rbac *RBACService, opts ...Option) *AuthService {
	return &AuthService{
		credentials: credentials,
		sessions:    sessions,
		rbac:        rbac,
		opts:        buildOptions(opts),
	}
}

func (s *AuthService) Login(ctx context.Context, email string, password string, client model.ClientInfo) (model.LoginResult, error) {
	user, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return model.LoginResult{}, err
	}

	issued, err := s.sessions.Issue(ctx, user, client)
	if err != nil {
		return model.LoginResult{}, err
	}

	profile, err := s.rbac.Profile(ctx, user)
	if err != nil {
		return model.LoginResult{}, err
	}

	s.opts.publish(event.TypeLoginSucceeded, user.ID, map[string]any{"session_id": issued.SessionID})

	return model.LoginResult{
		TokenPair: s.tokenPair(issued),
		Profile:   profile,
	}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client model.ClientInfo) (model.TokenPair, error) {
	issued, err := s.sessions.Refresh(ctx, refreshToken, client)
	if err != nil {
		return model.TokenPair{}, err
	}
	return s.tokenPair(issued), nil
}

func (s *AuthService) tokenPair(issued model.IssuedSession) model.TokenPair {
	return model.TokenPair{
		AccessToken:      issued.AccessToken,
		RefreshToken:     issued.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.sessions.AccessTTL() / time.Second),
		RefreshExpiresIn: int64(s.sessions.RefreshTTL() / time.Second),
	}
}

func (s *AuthService) Logout(ctx context.Context, auth model.AuthSession) error {
	return s.sessions.Revoke(ctx, auth.SessionID)
}

func (s *AuthService) LogoutAll(ctx context.Context, auth model.AuthSession) (int64, error) {
	return s.sessions.RevokeAll(ctx, auth.User.ID)
}

func (s *AuthService) Me(ctx context.Context, user model.User) (model.Profile, error) {
	return s.rbac.Profile(ctx, user)
}
