package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/session"
)

// IdentityProvider is the external OAuth2 collaborator. *auth.GoogleProvider
// satisfies it; tests use a fake.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

// FederatedService drives the OAuth2 authorization code flow:
//
//	Start    → handshake session saved, browser sent to the provider
//	Callback → session checked and consumed, code exchanged, user resolved,
//	           tokens issued exactly as for password login
//
// The handshake session is the only server-side session state in the
// system; everything after the callback uses the stateless token pair.
type FederatedService struct {
	accounts *AccountService
	provider IdentityProvider
	sessions *session.Manager
	logger   *slog.Logger
}

func NewFederatedService(accounts *AccountService, provider IdentityProvider, sessions *session.Manager, logger *slog.Logger) *FederatedService {
	return &FederatedService{
		accounts: accounts,
		provider: provider,
		sessions: sessions,
		logger:   logger,
	}
}

// SessionTTL is the lifetime of the handshake session cookie.
func (s *FederatedService) SessionTTL() int {
	return int(s.sessions.TTL().Seconds())
}

// SuccessRedirect and FailureRedirect are the front-end landing pages.
func (s *FederatedService) SuccessRedirect() string {
	return s.accounts.links.FrontEndURL + "/login/success"
}

func (s *FederatedService) FailureRedirect() string {
	return s.accounts.links.FrontEndURL + "/login/failure"
}

// Start opens a handshake session. It returns the session cookie value and
// the provider URL to redirect to.
func (s *FederatedService) Start(ctx context.Context) (cookie, redirectURL string, err error) {
	cookie, state, err := s.sessions.Start(ctx)
	if err != nil {
		return "", "", fmt.Errorf("service/federated: %w", err)
	}
	return cookie, s.provider.AuthURL(state), nil
}

// Callback completes the flow. The session is consumed whether or not the
// rest of the callback succeeds.
func (s *FederatedService) Callback(ctx context.Context, cookie, state, code string) (*LoginResult, error) {
	if err := s.sessions.Finish(ctx, cookie, state); err != nil {
		return nil, apperror.Unauthorized("Login session expired. Please try again")
	}

	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/federated: exchanging code: %w", err)
	}

	user, err := s.ResolveUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	return s.accounts.issue(user)
}

// ResolveUser maps a provider profile to a local account: by provider id
// first, then by email (linking the provider id to the existing account),
// otherwise a new verified account without a password is created.
func (s *FederatedService) ResolveUser(ctx context.Context, profile *auth.GoogleUser) (*model.User, error) {
	if profile == nil || profile.Sub == "" {
		return nil, errors.New("service/federated: profile has no subject")
	}
	users := s.accounts.users

	user, err := users.GetByGoogleID(ctx, profile.Sub)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/federated: loading user by provider id: %w", err)
	}

	email := normalizeEmail(profile.Email)
	if email != "" {
		user, err := users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			return s.link(ctx, user, profile)
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("service/federated: loading user by email: %w", err)
		}
	}

	userID, err := s.accounts.nextUserID(ctx)
	if err != nil {
		return nil, err
	}
	user = &model.User{
		UserID:        userID,
		GoogleID:      profile.Sub,
		Name:          displayName(profile),
		Email:         email,
		Avatar:        model.Image{URL: profile.Picture},
		Role:          model.RoleUser,
		EmailVerified: true,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/federated: creating user: %w", err)
	}
	s.logger.Info("user registered via Google", slog.String("userID", user.UserID))
	return user, nil
}

// link attaches the provider id to an account found by email. The provider
// must vouch for the address. A password set on a never verified account is
// dropped: whoever chose it has not proven they own the address.
func (s *FederatedService) link(ctx context.Context, user *model.User, profile *auth.GoogleUser) (*model.User, error) {
	if !profile.EmailVerified {
		return nil, apperror.Unauthorized("Google account email is not verified")
	}
	unverified := !user.EmailVerified

	if err := s.accounts.users.LinkGoogleID(ctx, user.UserID, profile.Sub, unverified); err != nil {
		return nil, fmt.Errorf("service/federated: linking user %s: %w", user.UserID, err)
	}
	user.GoogleID = profile.Sub

	if unverified {
		user.Password = ""
		if err := s.accounts.users.MarkEmailVerified(ctx, user.UserID); err != nil {
			return nil, fmt.Errorf("service/federated: verifying user %s: %w", user.UserID, err)
		}
		user.EmailVerified = true
	}
	s.logger.Info("Google account linked", slog.String("userID", user.UserID))
	return user, nil
}

func displayName(profile *auth.GoogleUser) string {
	if name := strings.TrimSpace(profile.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(profile.Email, "@"); ok && local != "" {
		return local
	}
	return "user"
}
