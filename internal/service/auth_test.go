package service

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hotelkalsubai/backend/internal/auth"
	"github.com/hotelkalsubai/backend/internal/domain"
	"github.com/hotelkalsubai/backend/internal/event"
	"github.com/hotelkalsubai/backend/internal/social"
	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
	pkgkafka "github.com/hotelkalsubai/backend/pkg/kafka"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByPhoneNumber(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	args := m.Called(ctx, googleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByFacebookID(ctx context.Context, facebookID string) (*domain.User, error) {
	args := m.Called(ctx, facebookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) List(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepository) SetResetToken(ctx context.Context, userID string, cred *domain.RecoveryCredential) error {
	args := m.Called(ctx, userID, cred)
	return args.Error(0)
}

func (m *mockUserRepository) SetOTP(ctx context.Context, userID string, cred *domain.RecoveryCredential) error {
	args := m.Called(ctx, userID, cred)
	return args.Error(0)
}

func (m *mockUserRepository) ConsumeResetToken(ctx context.Context, userID, token, passwordHash string) (bool, error) {
	args := m.Called(ctx, userID, token, passwordHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) ConsumeOTP(ctx context.Context, userID, code, passwordHash string) (bool, error) {
	args := m.Called(ctx, userID, code, passwordHash)
	return args.Bool(0), args.Error(1)
}

// --- Fake notifiers ---

type fakeEmailSender struct {
	mu    sync.Mutex
	to    []string
	links []string
	err   error
}

func (f *fakeEmailSender) Name() string { return "fake-email" }

func (f *fakeEmailSender) SendPasswordResetLink(ctx context.Context, to, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.links = append(f.links, link)
	return nil
}

func (f *fakeEmailSender) lastLink() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.links) == 0 {
		return ""
	}
	return f.links[len(f.links)-1]
}

type fakeSMSSender struct {
	mu     sync.Mutex
	phones []string
	codes  []string
	err    error
}

func (f *fakeSMSSender) Name() string { return "fake-sms" }

func (f *fakeSMSSender) SendOTP(ctx context.Context, phoneNumber, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.phones = append(f.phones, phoneNumber)
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeSMSSender) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		return ""
	}
	return f.codes[len(f.codes)-1]
}

// --- Stub token verifier ---

type stubVerifier struct {
	provider string
	identity *social.ExternalIdentity
	err      error
}

func (s *stubVerifier) Provider() string { return s.provider }

func (s *stubVerifier) Verify(ctx context.Context, accessToken string) (*social.ExternalIdentity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTManager() *auth.JWTManager {
	return auth.NewJWTManager("test-secret-key-for-testing", 15*time.Minute)
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

type authFixture struct {
	svc      *AuthService
	userRepo *mockUserRepository
	email    *fakeEmailSender
	sms      *fakeSMSSender
	google   *stubVerifier
	facebook *stubVerifier
}

func newAuthFixture() *authFixture {
	userRepo := new(mockUserRepository)
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{}
	google := &stubVerifier{provider: social.ProviderGoogle}
	facebook := &stubVerifier{provider: social.ProviderFacebook}

	svc := NewAuthService(
		userRepo,
		newTestJWTManager(),
		email,
		sms,
		google,
		facebook,
		newTestEventProducer(),
		newTestLogger(),
		"https://hotelkalsubai.example.com",
	)

	return &authFixture{
		svc:      svc,
		userRepo: userRepo,
		email:    email,
		sms:      sms,
		google:   google,
		facebook: facebook,
	}
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), 4)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func existingUser() *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:           "u-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PhoneNumber:  "+15550001111",
		PasswordHash: hashForTest("pw123456"),
		Roles:        []string{domain.RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.userRepo.On("ExistsByEmail", ctx, "john@example.com").Return(false, nil)
	f.userRepo.On("ExistsByUsername", ctx, "john").Return(false, nil)
	f.userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := f.svc.Register(ctx, RegisterInput{
		Username:    "john",
		Email:       "john@example.com",
		Password:    "pw123456",
		PhoneNumber: "+15550002222",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "john", user.Username)
	assert.Equal(t, []string{domain.RoleUser}, user.Roles)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "pw123456", user.PasswordHash)

	f.userRepo.AssertExpectations(t)
}

func TestRegister_DuplicateEmailCheckedFirst(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	// Both the email and username are taken; the email conflict wins.
	f.userRepo.On("ExistsByEmail", ctx, "john@example.com").Return(true, nil)

	user, err := f.svc.Register(ctx, RegisterInput{
		Username: "john",
		Email:    "john@example.com",
		Password: "pw123456",
	})

	assert.Nil(t, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

	f.userRepo.AssertExpectations(t)
	f.userRepo.AssertNotCalled(t, "ExistsByUsername", ctx, "john")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.userRepo.On("ExistsByEmail", ctx, "john@example.com").Return(false, nil)
	f.userRepo.On("ExistsByUsername", ctx, "john").Return(true, nil)

	user, err := f.svc.Register(ctx, RegisterInput{
		Username: "john",
		Email:    "john@example.com",
		Password: "pw123456",
	})

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateUsername)
}

func TestRegister_PasswordBounds(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{
		Username: "john",
		Email:    "john@example.com",
		Password: "pw1",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Register(ctx, RegisterInput{
		Username: "john",
		Email:    "john@example.com",
		Password: strings.Repeat("x", 41),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateAdminUser_GrantsBothRoles(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.userRepo.On("ExistsByEmail", ctx, "root@example.com").Return(false, nil)
	f.userRepo.On("ExistsByUsername", ctx, "root").Return(false, nil)
	f.userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := f.svc.CreateAdminUser(ctx, RegisterInput{
		Username: "root",
		Email:    "root@example.com",
		Password: "pw123456",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleAdmin, domain.RoleUser}, user.Roles)
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()

	f.userRepo.On("GetByEmail", ctx, u.Email).Return(u, nil)

	session, err := f.svc.Login(ctx, u.Email, "pw123456")

	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, u.ID, session.UserID)
	assert.Equal(t, u.Username, session.Username)
	assert.Equal(t, u.Roles, session.Roles)
}

func TestLogin_UnknownEmailAndWrongPassword_SameError(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()

	f.userRepo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)
	f.userRepo.On("GetByEmail", ctx, u.Email).Return(u, nil)

	_, errUnknown := f.svc.Login(ctx, "ghost@example.com", "whatever1")
	_, errWrongPw := f.svc.Login(ctx, u.Email, "not-the-password")

	require.Error(t, errUnknown)
	require.Error(t, errWrongPw)
	assert.ErrorIs(t, errUnknown, apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, apperrors.ErrInvalidCredentials)
	// The two failures must be indistinguishable to the caller.
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

func TestLogin_SocialOnlyAccountHasNoPassword(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.PasswordHash = ""
	u.GoogleID = "g-123"

	f.userRepo.On("GetByEmail", ctx, u.Email).Return(u, nil)

	_, err := f.svc.Login(ctx, u.Email, "pw123456")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

// --- Password reset by email token ---

func TestRequestPasswordReset_Success(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()

	var stored *domain.RecoveryCredential
	f.userRepo.On("GetByEmail", ctx, u.Email).Return(u, nil)
	f.userRepo.On("SetResetToken", ctx, u.ID, mock.AnythingOfType("*domain.RecoveryCredential")).
		Run(func(args mock.Arguments) {
			stored = args.Get(2).(*domain.RecoveryCredential)
		}).
		Return(nil)

	before := time.Now().UTC()
	err := f.svc.RequestPasswordReset(ctx, u.Email)
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.Value)
	assert.WithinDuration(t, before.Add(time.Hour), stored.ExpiresAt, 5*time.Second)

	link := f.email.lastLink()
	assert.Contains(t, link, "/reset-password?token="+stored.Value)
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.userRepo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	err := f.svc.RequestPasswordReset(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.email.lastLink())
}

func TestRequestPasswordReset_NewTokenSupersedesOld(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()

	var tokens []string
	f.userRepo.On("GetByEmail", ctx, u.Email).Return(u, nil)
	f.userRepo.On("SetResetToken", ctx, u.ID, mock.AnythingOfType("*domain.RecoveryCredential")).
		Run(func(args mock.Arguments) {
			tokens = append(tokens, args.Get(2).(*domain.RecoveryCredential).Value)
		}).
		Return(nil)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, u.Email))
	require.NoError(t, f.svc.RequestPasswordReset(ctx, u.Email))

	require.Len(t, tokens, 2)
	assert.NotEqual(t, tokens[0], tokens[1])
	// The emailed link always carries the latest token.
	assert.Contains(t, f.email.lastLink(), tokens[1])
}

func TestResetPassword_Success(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.ResetToken = &domain.RecoveryCredential{
		Value:     "tok-valid",
		ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
	}

	f.userRepo.On("GetByResetToken", ctx, "tok-valid").Return(u, nil)
	f.userRepo.On("ConsumeResetToken", ctx, u.ID, "tok-valid", mock.AnythingOfType("string")).Return(true, nil)

	err := f.svc.ResetPassword(ctx, "tok-valid", "newpw1")
	assert.NoError(t, err)
	f.userRepo.AssertExpectations(t)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.userRepo.On("GetByResetToken", ctx, "tok-bogus").Return(nil, apperrors.ErrNotFound)

	err := f.svc.ResetPassword(ctx, "tok-bogus", "newpw1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidResetToken)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.ResetToken = &domain.RecoveryCredential{
		Value:     "tok-stale",
		ExpiresAt: time.Now().UTC().Add(-time.Second),
	}

	f.userRepo.On("GetByResetToken", ctx, "tok-stale").Return(u, nil)

	err := f.svc.ResetPassword(ctx, "tok-stale", "newpw1")
	assert.ErrorIs(t, err, apperrors.ErrExpiredResetToken)
	f.userRepo.AssertNotCalled(t, "ConsumeResetToken", ctx, u.ID, "tok-stale", mock.Anything)
}

func TestResetPassword_TokenAlreadyConsumed(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.ResetToken = &domain.RecoveryCredential{
		Value:     "tok-raced",
		ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
	}

	f.userRepo.On("GetByResetToken", ctx, "tok-raced").Return(u, nil)
	f.userRepo.On("ConsumeResetToken", ctx, u.ID, "tok-raced", mock.AnythingOfType("string")).Return(false, nil)

	err := f.svc.ResetPassword(ctx, "tok-raced", "newpw1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidResetToken)
}

// --- Password reset by OTP ---

func TestRequestOTP_Success(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()

	var stored *domain.RecoveryCredential
	f.userRepo.On("GetByPhoneNumber", ctx, u.PhoneNumber).Return(u, nil)
	f.userRepo.On("SetOTP", ctx, u.ID, mock.AnythingOfType("*domain.RecoveryCredential")).
		Run(func(args mock.Arguments) {
			stored = args.Get(2).(*domain.RecoveryCredential)
		}).
		Return(nil)

	before := time.Now().UTC()
	err := f.svc.RequestOTP(ctx, u.PhoneNumber)
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), stored.Value)
	assert.WithinDuration(t, before.Add(5*time.Minute), stored.ExpiresAt, 5*time.Second)
	assert.Equal(t, stored.Value, f.sms.lastCode())
}

func TestRequestOTP_UnknownPhone(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.userRepo.On("GetByPhoneNumber", ctx, "+19990000000").Return(nil, apperrors.ErrNotFound)

	err := f.svc.RequestOTP(ctx, "+19990000000")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.sms.lastCode())
}

func TestVerifyOTPAndReset_Success(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.OTP = &domain.RecoveryCredential{
		Value:     "042137",
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}

	f.userRepo.On("GetByPhoneNumber", ctx, u.PhoneNumber).Return(u, nil)
	f.userRepo.On("ConsumeOTP", ctx, u.ID, "042137", mock.AnythingOfType("string")).Return(true, nil)

	err := f.svc.VerifyOTPAndReset(ctx, u.PhoneNumber, "042137", "newpw1")
	assert.NoError(t, err)
	f.userRepo.AssertExpectations(t)
}

func TestVerifyOTPAndReset_WrongCode(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.OTP = &domain.RecoveryCredential{
		Value:     "042137",
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}

	f.userRepo.On("GetByPhoneNumber", ctx, u.PhoneNumber).Return(u, nil)

	// A single differing digit must fail.
	err := f.svc.VerifyOTPAndReset(ctx, u.PhoneNumber, "042138", "newpw1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}

func TestVerifyOTPAndReset_NoOutstandingOTP(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()

	f.userRepo.On("GetByPhoneNumber", ctx, u.PhoneNumber).Return(u, nil)

	err := f.svc.VerifyOTPAndReset(ctx, u.PhoneNumber, "042137", "newpw1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}

func TestVerifyOTPAndReset_ExpiredCode(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.OTP = &domain.RecoveryCredential{
		Value:     "042137",
		ExpiresAt: time.Now().UTC().Add(-time.Second),
	}

	f.userRepo.On("GetByPhoneNumber", ctx, u.PhoneNumber).Return(u, nil)

	err := f.svc.VerifyOTPAndReset(ctx, u.PhoneNumber, "042137", "newpw1")
	assert.ErrorIs(t, err, apperrors.ErrExpiredOTP)
}

func TestGenerateOTP_AlwaysSixDigits(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 100; i++ {
		code, err := generateOTP()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

// --- Social login ---

func TestLoginWithGoogle_ExistingUser(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	u := existingUser()
	u.GoogleID = "g-123"

	f.google.identity = &social.ExternalIdentity{ID: "g-123", Email: u.Email, Name: "Alice Smith"}
	f.userRepo.On("GetByGoogleID", ctx, "g-123").Return(u, nil)

	session, err := f.svc.LoginWithGoogle(ctx, "provider-token")

	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, u.ID, session.UserID)
	f.userRepo.AssertNotCalled(t, "Create", ctx, mock.Anything)
}

func TestLoginWithGoogle_FirstSignInCreatesUser(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.google.identity = &social.ExternalIdentity{ID: "g-456", Email: "bob@example.com", Name: "Bob Jones"}

	var created *domain.User
	f.userRepo.On("GetByGoogleID", ctx, "g-456").Return(nil, apperrors.ErrNotFound)
	f.userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*domain.User)
		}).
		Return(nil)

	session, err := f.svc.LoginWithGoogle(ctx, "provider-token")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "g-456", created.GoogleID)
	assert.Equal(t, "bob@example.com", created.Email)
	assert.True(t, created.EmailVerified)
	assert.Equal(t, []string{domain.RoleUser}, created.Roles)
	assert.Empty(t, created.PasswordHash)
	assert.Equal(t, created.ID, session.UserID)
}

func TestLoginWithFacebook_InvalidToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.facebook.err = apperrors.InvalidExternalToken(social.ProviderFacebook)

	session, err := f.svc.LoginWithFacebook(ctx, "bad-token")
	assert.Nil(t, session)
	assert.ErrorIs(t, err, apperrors.ErrInvalidExternalToken)
}

// --- End-to-end recovery flow against an in-memory store ---

// memoryUserStore is a minimal in-memory UserRepository used to drive full
// recovery flows without mock choreography.
type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*domain.User)}
}

func (s *memoryUserStore) Create(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memoryUserStore) find(match func(*domain.User) bool) (*domain.User, error) {
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memoryUserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.ID == id })
}

func (s *memoryUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.Email == email })
}

func (s *memoryUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.Username == username })
}

func (s *memoryUserStore) GetByPhoneNumber(ctx context.Context, phone string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.PhoneNumber == phone })
}

func (s *memoryUserStore) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool {
		return u.ResetToken != nil && u.ResetToken.Value == token
	})
}

func (s *memoryUserStore) GetByGoogleID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.GoogleID == id })
}

func (s *memoryUserStore) GetByFacebookID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.FacebookID == id })
}

func (s *memoryUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *memoryUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := s.GetByUsername(ctx, username)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *memoryUserStore) List(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *memoryUserStore) Update(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memoryUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *memoryUserStore) SetResetToken(ctx context.Context, userID string, cred *domain.RecoveryCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	c := *cred
	u.ResetToken = &c
	return nil
}

func (s *memoryUserStore) SetOTP(ctx context.Context, userID string, cred *domain.RecoveryCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	c := *cred
	u.OTP = &c
	return nil
}

func (s *memoryUserStore) ConsumeResetToken(ctx context.Context, userID, token, passwordHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.ResetToken == nil || u.ResetToken.Value != token {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	return true, nil
}

func (s *memoryUserStore) ConsumeOTP(ctx context.Context, userID, code, passwordHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.OTP == nil || u.OTP.Value != code {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.OTP = nil
	return true, nil
}

func newFlowService(store *memoryUserStore, email *fakeEmailSender, sms *fakeSMSSender) *AuthService {
	return NewAuthService(
		store,
		newTestJWTManager(),
		email,
		sms,
		&stubVerifier{provider: social.ProviderGoogle},
		&stubVerifier{provider: social.ProviderFacebook},
		newTestEventProducer(),
		newTestLogger(),
		"https://hotelkalsubai.example.com",
	)
}

func extractToken(t *testing.T, link string) string {
	t.Helper()
	idx := strings.Index(link, "token=")
	require.GreaterOrEqual(t, idx, 0, "reset link %q has no token parameter", link)
	return link[idx+len("token="):]
}

func TestRecoveryFlow_EmailResetEndToEnd(t *testing.T) {
	store := newMemoryUserStore()
	email := &fakeEmailSender{}
	svc := newFlowService(store, email, &fakeSMSSender{})
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Username:    "alice",
		Email:       "a@x.com",
		Password:    "pw123456",
		PhoneNumber: "+15551234567",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	token := extractToken(t, email.lastLink())

	require.NoError(t, svc.ResetPassword(ctx, token, "newpw1"))

	// New password works, old one is rejected.
	_, err = svc.Login(ctx, "a@x.com", "newpw1")
	assert.NoError(t, err)

	_, err = svc.Login(ctx, "a@x.com", "pw123456")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// A replayed token fails once consumed.
	err = svc.ResetPassword(ctx, token, "anotherpw")
	assert.ErrorIs(t, err, apperrors.ErrInvalidResetToken)
}

func TestRecoveryFlow_SecondTokenInvalidatesFirst(t *testing.T) {
	store := newMemoryUserStore()
	email := &fakeEmailSender{}
	svc := newFlowService(store, email, &fakeSMSSender{})
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "a@x.com",
		Password: "pw123456",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	first := extractToken(t, email.lastLink())

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	second := extractToken(t, email.lastLink())
	require.NotEqual(t, first, second)

	err = svc.ResetPassword(ctx, first, "newpw1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidResetToken)

	err = svc.ResetPassword(ctx, second, "newpw1")
	assert.NoError(t, err)
}

func TestRecoveryFlow_OTPEndToEnd(t *testing.T) {
	store := newMemoryUserStore()
	sms := &fakeSMSSender{}
	svc := newFlowService(store, &fakeEmailSender{}, sms)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Username:    "alice",
		Email:       "a@x.com",
		Password:    "pw123456",
		PhoneNumber: "+15551234567",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RequestOTP(ctx, "+15551234567"))
	code := sms.lastCode()
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	require.NoError(t, svc.VerifyOTPAndReset(ctx, "+15551234567", code, "newpw1"))

	_, err = svc.Login(ctx, "a@x.com", "newpw1")
	assert.NoError(t, err)

	// The OTP is single-use.
	err = svc.VerifyOTPAndReset(ctx, "+15551234567", code, "anotherpw")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}
