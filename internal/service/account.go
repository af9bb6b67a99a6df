package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/mail"
	"github.com/sakif/thoughts/internal/model"
	"github.com/sakif/thoughts/internal/repository"
	"github.com/sakif/thoughts/internal/storage"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgEmailTaken         = "Email already exists. Please login"
	msgUploadFailed       = "Something went wrong. Image not uploaded"

	avatarFolder = "thoughts/users"
)

// Tokens groups the three independent credential issuers. Each one signs
// with its own secret, so a token of one kind never verifies as another.
type Tokens struct {
	Verification *auth.TokenService
	Access       *auth.TokenService
	Refresh      *auth.TokenService
}

// Links holds the public base URLs used to build emailed links and
// browser redirects.
type Links struct {
	// APIBaseURL is the public URL of this API including the version
	// prefix, e.g. https://api.example.com/api/v2.
	APIBaseURL string
	// FrontEndURL is the single-page app the redirects land on.
	FrontEndURL string
}

func (l Links) verifyURL(token string) string {
	return l.APIBaseURL + "/users/verify/" + token
}

// LoginRedirect is where a verified (or already verified) account lands.
func (l Links) LoginRedirect() string { return l.FrontEndURL + "/login" }

// ExpiredRedirect is where a stale or forged verification link lands.
func (l Links) ExpiredRedirect() string { return l.FrontEndURL + "/expired-credentials" }

// AccountService implements registration, verification, password login,
// access token refresh and admin moderation of accounts.
type AccountService struct {
	users     repository.UserRepository
	tokens    Tokens
	passwords *auth.PasswordService
	mailer    mail.Sender
	store     storage.ObjectStore
	links     Links
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	tokens Tokens,
	passwords *auth.PasswordService,
	mailer mail.Sender,
	store storage.ObjectStore,
	links Links,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		store:     store,
		links:     links,
		logger:    logger,
	}
}

// Links returns the redirect targets the service was built with.
func (s *AccountService) Links() Links {
	return s.links
}

// RegisterInput is the registration form. Avatar is optional raw image data.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Avatar   []byte
}

// RegisterResult reports the created (unverified) account. EmailSent is
// false when the verification email could not be dispatched; the account
// exists regardless.
type RegisterResult struct {
	User      *model.User
	EmailSent bool
}

// LoginResult is a freshly issued token pair for an account in good standing.
type LoginResult struct {
	User         *model.User
	Identity     auth.Identity
	AccessToken  string
	RefreshToken string
}

// Register validates the form, creates an unverified account and emails a
// verification link.
//
// The user id is "{count+1}-{32 hex chars}". The count is read without a
// lock, so two concurrent registrations can share the numeric prefix; the
// random suffix keeps the ids unique.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	password := stripSpace(in.Password)

	if err := validateFields(
		check("name", name, nameRules()...),
		check("email", email, emailRules()...),
		check("password", password, passwordRules()...),
	); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict(msgEmailTaken)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/account: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	var avatar model.Image
	if len(in.Avatar) > 0 {
		obj, err := s.store.Upload(ctx, in.Avatar, avatarFolder)
		if err != nil || obj.ID == "" {
			s.logger.Error("avatar upload failed", slog.Any("error", err))
			return nil, apperror.UploadFailed(msgUploadFailed)
		}
		avatar = model.Image{ID: obj.ID, URL: obj.URL}
	}

	userID, err := s.nextUserID(ctx)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		UserID:   userID,
		Name:     name,
		Email:    email,
		Password: hash,
		Avatar:   avatar,
		Role:     model.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.UserID),
		slog.String("email", user.Email),
	)

	sent := true
	if err := s.sendVerification(ctx, user); err != nil {
		sent = false
		s.logger.Error("verification email not sent",
			slog.String("userID", user.UserID),
			slog.Any("error", err),
		)
	}
	return &RegisterResult{User: user, EmailSent: sent}, nil
}

// Activate consumes a verification token and returns the URL the browser
// should be redirected to. Expired and invalid tokens are not errors here:
// they redirect to the expired-credentials page. Activating an already
// verified account is a no-op that redirects to the login page.
func (s *AccountService) Activate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperror.NotFoundMessage("Credential not found")
	}

	id, err := s.tokens.Verification.Verify(token)
	if err != nil {
		s.logger.Info("verification token rejected", slog.Any("error", err))
		return s.links.ExpiredRedirect(), nil
	}

	user, err := s.users.GetByUserID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.NotFoundMessage("User not found. Try again")
		}
		return "", fmt.Errorf("service/account: loading user %s: %w", id.UserID, err)
	}

	if user.EmailVerified {
		return s.links.LoginRedirect(), nil
	}

	if err := s.users.MarkEmailVerified(ctx, user.UserID); err != nil {
		return "", fmt.Errorf("service/account: verifying user %s: %w", user.UserID, err)
	}
	s.logger.Info("email verified", slog.String("userID", user.UserID))
	return s.links.LoginRedirect(), nil
}

// Login checks a password and issues an access and a refresh token.
//
// Unknown emails and wrong passwords share one message so the response does
// not reveal which accounts exist. An unverified account gets a fresh
// verification email and is still refused.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required")
	}
	email = normalizeEmail(email)
	password = stripSpace(password)

	if err := validateFields(
		check("email", email, emailRules()...),
		check("password", password, passwordRules()...),
	); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/account: loading user: %w", err)
	}

	if err := s.passwords.Verify(user.Password, password); err != nil {
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	if !user.EmailVerified {
		if err := s.sendVerification(ctx, user); err != nil {
			s.logger.Error("verification email not sent",
				slog.String("userID", user.UserID),
				slog.Any("error", err),
			)
			return nil, apperror.Internal("Failed to send verification email")
		}
		return nil, apperror.Unauthorized(fmt.Sprintf(
			"You are not verified. Please check your email at- %s and verify your account.", user.Email))
	}

	return s.issue(user)
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *AccountService) Refresh(refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperror.NotFoundMessage("Refresh token not found. Login first")
	}
	id, err := s.tokens.Refresh.Verify(refreshToken)
	if err != nil {
		return "", apperror.Unauthorized("Invalid refresh token. Please Login")
	}
	access, err := s.tokens.Access.Issue(id)
	if err != nil {
		return "", fmt.Errorf("service/account: issuing access token: %w", err)
	}
	return access, nil
}

// CurrentUser returns the caller's account.
func (s *AccountService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("User not found. Login again")
		}
		return nil, fmt.Errorf("service/account: loading user %s: %w", userID, err)
	}
	return user, nil
}

// ListUsers returns one page of accounts, newest first, optionally filtered
// by a case-insensitive match on name or email.
func (s *AccountService) ListUsers(ctx context.Context, q PageQuery) (*Page[model.User], error) {
	opts, page, limit := q.normalize()
	opts.Search = strings.TrimSpace(opts.Search)

	users, total, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing users: %w", err)
	}
	return newPage(users, total, page, limit), nil
}

// SetBanned sets or clears the banned flag of userID.
func (s *AccountService) SetBanned(ctx context.Context, actor auth.Identity, userID string, banned bool) error {
	if err := s.checkModeration(actor, userID); err != nil {
		return err
	}
	if err := s.users.SetBanned(ctx, userID, banned); err != nil {
		return s.moderationError(err, userID)
	}
	s.logger.Info("user ban flag changed",
		slog.String("userID", userID),
		slog.Bool("banned", banned),
		slog.String("by", actor.UserID),
	)
	return nil
}

// SetDeleted sets or clears the deleted flag of userID. The record itself
// is kept.
func (s *AccountService) SetDeleted(ctx context.Context, actor auth.Identity, userID string, deleted bool) error {
	if err := s.checkModeration(actor, userID); err != nil {
		return err
	}
	if err := s.users.SetDeleted(ctx, userID, deleted); err != nil {
		return s.moderationError(err, userID)
	}
	s.logger.Info("user delete flag changed",
		slog.String("userID", userID),
		slog.Bool("deleted", deleted),
		slog.String("by", actor.UserID),
	)
	return nil
}

func (s *AccountService) checkModeration(actor auth.Identity, userID string) error {
	if !actor.IsAdmin() {
		return apperror.Forbidden("Only admin can access this resource")
	}
	if strings.TrimSpace(userID) == "" {
		return apperror.ValidationFailed("userId", msgInvalidID)
	}
	if actor.UserID == userID {
		return apperror.Forbidden("You cannot moderate your own account")
	}
	return nil
}

func (s *AccountService) moderationError(err error, userID string) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.NotFoundMessage("User not found")
	}
	return fmt.Errorf("service/account: updating user %s: %w", userID, err)
}

// checkStanding refuses banned and deleted accounts.
func checkStanding(user *model.User) error {
	if user.BannedUser {
		return apperror.Unauthorized("You are banned. Please contact authority")
	}
	if user.DeletedUser {
		return apperror.Unauthorized("You are deleted. Please contact authority")
	}
	return nil
}

// issue mints the token pair for an account after the standing check. It
// is shared by password and federated login.
func (s *AccountService) issue(user *model.User) (*LoginResult, error) {
	if err := checkStanding(user); err != nil {
		return nil, err
	}

	id := auth.Identity{UserID: user.UserID, Role: user.Role}
	access, err := s.tokens.Access.Issue(id)
	if err != nil {
		return nil, fmt.Errorf("service/account: issuing access token: %w", err)
	}
	refresh, err := s.tokens.Refresh.Issue(id)
	if err != nil {
		return nil, fmt.Errorf("service/account: issuing refresh token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.UserID))
	return &LoginResult{
		User:         user,
		Identity:     id,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (s *AccountService) nextUserID(ctx context.Context) (string, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("service/account: counting users: %w", err)
	}
	suffix, err := randomHex(16)
	if err != nil {
		return "", fmt.Errorf("service/account: %w", err)
	}
	return fmt.Sprintf("%d-%s", count+1, suffix), nil
}

func (s *AccountService) sendVerification(ctx context.Context, user *model.User) error {
	token, err := s.tokens.Verification.Issue(auth.Identity{UserID: user.UserID, Role: user.Role})
	if err != nil {
		return fmt.Errorf("issuing verification token: %w", err)
	}
	minutes := int(s.tokens.Verification.TTL().Minutes())
	msg, err := mail.VerificationEmail(user.Email, user.Name, s.links.verifyURL(token), minutes)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}
