package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hotelkalsubai/backend/internal/auth"
	"github.com/hotelkalsubai/backend/internal/domain"
	"github.com/hotelkalsubai/backend/internal/event"
	"github.com/hotelkalsubai/backend/internal/notifier"
	"github.com/hotelkalsubai/backend/internal/repository"
	"github.com/hotelkalsubai/backend/internal/social"
	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// Password length bounds enforced on signup and recovery.
const (
	minPasswordLength = 6
	maxPasswordLength = 40
)

// Recovery credential lifetimes.
const (
	resetTokenTTL = time.Hour
	otpTTL        = 5 * time.Minute
)

// Recovery channels reported on password-reset events.
const (
	channelEmail = "email"
	channelSMS   = "sms"
)

// AuthService implements credential issuance and recovery: login,
// registration, the two password-recovery flows, and social sign-in.
type AuthService struct {
	userRepo     repository.UserRepository
	jwtManager   *auth.JWTManager
	emailSender  notifier.EmailSender
	smsSender    notifier.SMSSender
	google       social.TokenVerifier
	facebook     social.TokenVerifier
	producer     *event.Producer
	logger       *slog.Logger
	resetBaseURL string
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	userRepo repository.UserRepository,
	jwtManager *auth.JWTManager,
	emailSender notifier.EmailSender,
	smsSender notifier.SMSSender,
	google social.TokenVerifier,
	facebook social.TokenVerifier,
	producer *event.Producer,
	logger *slog.Logger,
	resetBaseURL string,
) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		jwtManager:   jwtManager,
		emailSender:  emailSender,
		smsSender:    smsSender,
		google:       google,
		facebook:     facebook,
		producer:     producer,
		logger:       logger,
		resetBaseURL: resetBaseURL,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	PhoneNumber string
}

// Login authenticates a user by email and password and mints a session
// token. Absent accounts and wrong passwords yield the identical error so
// callers cannot probe which emails are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.SessionUser, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidCredentials()
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	// Social-only accounts carry no hash and cannot log in with a password.
	if user.PasswordHash == "" {
		return nil, apperrors.InvalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.InvalidCredentials()
	}

	token, err := s.jwtManager.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return sessionUser(user, token), nil
}

// Register creates a new user account with the USER role. The email is
// checked for conflicts before the username.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	return s.createUser(ctx, input, []string{domain.RoleUser})
}

// CreateAdminUser creates a new account carrying both the ADMIN and USER
// roles. Route-level authorization restricts who may call this.
func (s *AuthService) CreateAdminUser(ctx context.Context, input RegisterInput) (*domain.User, error) {
	return s.createUser(ctx, input, []string{domain.RoleAdmin, domain.RoleUser})
}

func (s *AuthService) createUser(ctx context.Context, input RegisterInput, roles []string) (*domain.User, error) {
	if input.Username == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	emailTaken, err := s.userRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if emailTaken {
		return nil, apperrors.DuplicateEmail(input.Email)
	}

	usernameTaken, err := s.userRepo.ExistsByUsername(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if usernameTaken {
		return nil, apperrors.DuplicateUsername(input.Username)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		PhoneNumber:  input.PhoneNumber,
		PasswordHash: string(hashedPassword),
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user, ""); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// RequestPasswordReset issues a fresh single-use reset token valid for one
// hour and emails the recovery link. Issuing a new token supersedes any
// outstanding one.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("user", email)
		}
		return fmt.Errorf("get user by email: %w", err)
	}

	cred := &domain.RecoveryCredential{
		Value:     uuid.New().String(),
		ExpiresAt: time.Now().UTC().Add(resetTokenTTL),
	}

	if err := s.userRepo.SetResetToken(ctx, user.ID, cred); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.resetBaseURL, cred.Value)
	if err := s.emailSender.SendPasswordResetLink(ctx, user.Email, link); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}

// ResetPassword validates the emailed token and sets the new password. The
// token is cleared in the same store write, so a replay after success fails.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return apperrors.InvalidResetToken()
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.userRepo.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidResetToken()
		}
		return fmt.Errorf("get user by reset token: %w", err)
	}

	if user.ResetToken == nil || !user.ResetToken.Matches(token) {
		return apperrors.InvalidResetToken()
	}
	if user.ResetToken.Expired(time.Now().UTC()) {
		return apperrors.ExpiredResetToken()
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	consumed, err := s.userRepo.ConsumeResetToken(ctx, user.ID, token, string(hashedPassword))
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !consumed {
		// Another request claimed the token between lookup and update.
		return apperrors.InvalidResetToken()
	}

	if err := s.producer.PublishUserPasswordReset(ctx, user.ID, user.Email, channelEmail); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_reset event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// RequestOTP issues a fresh 6-digit code valid for five minutes and sends it
// to the user's phone. Issuing a new code supersedes any outstanding one.
func (s *AuthService) RequestOTP(ctx context.Context, phoneNumber string) error {
	if phoneNumber == "" {
		return apperrors.InvalidInput("phone number is required")
	}

	user, err := s.userRepo.GetByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("user", phoneNumber)
		}
		return fmt.Errorf("get user by phone number: %w", err)
	}

	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	cred := &domain.RecoveryCredential{
		Value:     code,
		ExpiresAt: time.Now().UTC().Add(otpTTL),
	}

	if err := s.userRepo.SetOTP(ctx, user.ID, cred); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if err := s.smsSender.SendOTP(ctx, user.PhoneNumber, code); err != nil {
		return fmt.Errorf("send otp sms: %w", err)
	}

	s.logger.InfoContext(ctx, "otp requested",
		slog.String("user_id", user.ID),
	)

	return nil
}

// VerifyOTPAndReset validates the SMS code and sets the new password. The
// code is compared by exact string equality and cleared on success.
func (s *AuthService) VerifyOTPAndReset(ctx context.Context, phoneNumber, code, newPassword string) error {
	if phoneNumber == "" {
		return apperrors.InvalidInput("phone number is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.userRepo.GetByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("user", phoneNumber)
		}
		return fmt.Errorf("get user by phone number: %w", err)
	}

	if user.OTP == nil || !user.OTP.Matches(code) {
		return apperrors.InvalidOTP()
	}
	if user.OTP.Expired(time.Now().UTC()) {
		return apperrors.ExpiredOTP()
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	consumed, err := s.userRepo.ConsumeOTP(ctx, user.ID, code, string(hashedPassword))
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if !consumed {
		return apperrors.InvalidOTP()
	}

	if err := s.producer.PublishUserPasswordReset(ctx, user.ID, user.Email, channelSMS); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_reset event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "otp password reset completed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// LoginWithGoogle verifies a Google access token, finds or creates the
// matching account, and mints a session token.
func (s *AuthService) LoginWithGoogle(ctx context.Context, accessToken string) (*domain.SessionUser, error) {
	return s.socialLogin(ctx, s.google, accessToken)
}

// LoginWithFacebook verifies a Facebook access token, finds or creates the
// matching account, and mints a session token.
func (s *AuthService) LoginWithFacebook(ctx context.Context, accessToken string) (*domain.SessionUser, error) {
	return s.socialLogin(ctx, s.facebook, accessToken)
}

func (s *AuthService) socialLogin(ctx context.Context, verifier social.TokenVerifier, accessToken string) (*domain.SessionUser, error) {
	if accessToken == "" {
		return nil, apperrors.InvalidExternalToken(verifier.Provider())
	}

	identity, err := verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.findOrCreateSocialUser(ctx, verifier.Provider(), identity)
	if err != nil {
		return nil, err
	}

	token, err := s.jwtManager.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.logger.InfoContext(ctx, "social login completed",
		slog.String("user_id", user.ID),
		slog.String("provider", verifier.Provider()),
	)

	return sessionUser(user, token), nil
}

func (s *AuthService) findOrCreateSocialUser(ctx context.Context, provider string, identity *social.ExternalIdentity) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	switch provider {
	case social.ProviderGoogle:
		user, err = s.userRepo.GetByGoogleID(ctx, identity.ID)
	case social.ProviderFacebook:
		user, err = s.userRepo.GetByFacebookID(ctx, identity.ID)
	default:
		return nil, apperrors.InvalidExternalToken(provider)
	}

	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("get user by %s id: %w", provider, err)
	}

	now := time.Now().UTC()
	user = &domain.User{
		ID:            uuid.New().String(),
		Username:      socialUsername(provider, identity),
		Email:         identity.Email,
		Roles:         []string{domain.RoleUser},
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch provider {
	case social.ProviderGoogle:
		user.GoogleID = identity.ID
	case social.ProviderFacebook:
		user.FacebookID = identity.ID
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create social user: %w", err)
	}

	if err := s.producer.PublishUserRegistered(ctx, user, provider); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "social user created",
		slog.String("user_id", user.ID),
		slog.String("provider", provider),
	)

	return user, nil
}

// socialUsername picks a username for a first-time social sign-in. The
// provider email is preferred since usernames are unique; identities without
// an email fall back to a provider-scoped name.
func socialUsername(provider string, identity *social.ExternalIdentity) string {
	if identity.Email != "" {
		return identity.Email
	}
	return provider + "_" + identity.ID
}

func sessionUser(user *domain.User, token string) *domain.SessionUser {
	return &domain.SessionUser{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
	}
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	}
	return nil
}

// generateOTP draws a uniform random value from [0, 1000000) and renders it
// as a zero-padded 6-digit string.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
