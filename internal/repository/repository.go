package repository

import (
	"context"

	"github.com/hotelkalsubai/backend/internal/domain"
)

// UserRepository defines persistence for user accounts and their inline
// recovery credentials.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetByPhoneNumber retrieves a user by phone number.
	GetByPhoneNumber(ctx context.Context, phone string) (*domain.User, error)

	// GetByResetToken retrieves the user holding the given outstanding reset
	// token.
	GetByResetToken(ctx context.Context, token string) (*domain.User, error)

	// GetByGoogleID retrieves a user by their Google-scoped identity.
	GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error)

	// GetByFacebookID retrieves a user by their Facebook-scoped identity.
	GetByFacebookID(ctx context.Context, facebookID string) (*domain.User, error)

	// ExistsByEmail reports whether any user has the given email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ExistsByUsername reports whether any user has the given username.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// List returns all users.
	List(ctx context.Context) ([]domain.User, error)

	// Update modifies an existing user.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes a user permanently.
	Delete(ctx context.Context, id string) error

	// SetResetToken stores a new outstanding reset token for the user,
	// replacing any previous one.
	SetResetToken(ctx context.Context, userID string, cred *domain.RecoveryCredential) error

	// SetOTP stores a new outstanding OTP for the user, replacing any
	// previous one.
	SetOTP(ctx context.Context, userID string, cred *domain.RecoveryCredential) error

	// ConsumeResetToken atomically sets the password hash and clears the
	// reset token, guarded on the stored token still matching. It reports
	// false when the token was already consumed or replaced.
	ConsumeResetToken(ctx context.Context, userID, token, passwordHash string) (bool, error)

	// ConsumeOTP atomically sets the password hash and clears the OTP,
	// guarded on the stored code still matching. It reports false when the
	// code was already consumed or replaced.
	ConsumeOTP(ctx context.Context, userID, code, passwordHash string) (bool, error)
}
