package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hotelkalsubai/backend/internal/domain"
	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
)

// DB is the subset of pgxpool.Pool used by the repositories. pgxmock
// implements the same surface for tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, phone_number, password_hash, roles, email_verified, phone_verified, google_id, facebook_id, reset_token, reset_token_expiry, otp_code, otp_expiry, created_at, updated_at`

// Create inserts a new user. Unique violations are mapped to the duplicate
// errors the registration flow reports.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, phone_number, password_hash, roles,
			email_verified, phone_verified, google_id, facebook_id,
			reset_token, reset_token_expiry, otp_code, otp_expiry,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	resetToken, resetExpiry := credFields(u.ResetToken)
	otpCode, otpExpiry := credFields(u.OTP)

	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		nullable(u.PhoneNumber),
		nullable(u.PasswordHash),
		u.Roles,
		u.EmailVerified,
		u.PhoneVerified,
		nullable(u.GoogleID),
		nullable(u.FacebookID),
		resetToken,
		resetExpiry,
		otpCode,
		otpExpiry,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if name, ok := uniqueViolation(err); ok {
			return duplicateError(name, u)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, "username", username)
}

// GetByPhoneNumber retrieves a user by phone number.
func (r *UserRepository) GetByPhoneNumber(ctx context.Context, phone string) (*domain.User, error) {
	return r.getBy(ctx, "phone_number", phone)
}

// GetByResetToken retrieves the user holding the given reset token.
func (r *UserRepository) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	return r.getBy(ctx, "reset_token", token)
}

// GetByGoogleID retrieves a user by their Google-scoped identity.
func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	return r.getBy(ctx, "google_id", googleID)
}

// GetByFacebookID retrieves a user by their Facebook-scoped identity.
func (r *UserRepository) GetByFacebookID(ctx context.Context, facebookID string) (*domain.User, error) {
	return r.getBy(ctx, "facebook_id", facebookID)
}

// ExistsByEmail reports whether any user has the given email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

// ExistsByUsername reports whether any user has the given username.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", username)
}

// List returns all users ordered by creation time.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}

	return users, nil
}

// Update modifies an existing user, including its recovery credential slots.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET username = $1, email = $2, phone_number = $3, password_hash = $4,
		    roles = $5, email_verified = $6, phone_verified = $7,
		    google_id = $8, facebook_id = $9,
		    reset_token = $10, reset_token_expiry = $11,
		    otp_code = $12, otp_expiry = $13, updated_at = $14
		WHERE id = $15`

	resetToken, resetExpiry := credFields(u.ResetToken)
	otpCode, otpExpiry := credFields(u.OTP)

	ct, err := r.db.Exec(ctx, query,
		u.Username,
		u.Email,
		nullable(u.PhoneNumber),
		nullable(u.PasswordHash),
		u.Roles,
		u.EmailVerified,
		u.PhoneVerified,
		nullable(u.GoogleID),
		nullable(u.FacebookID),
		resetToken,
		resetExpiry,
		otpCode,
		otpExpiry,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if name, ok := uniqueViolation(err); ok {
			return duplicateError(name, u)
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}

	return nil
}

// Delete removes a user permanently.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	return nil
}

// SetResetToken stores a new outstanding reset token, replacing any prior one.
func (r *UserRepository) SetResetToken(ctx context.Context, userID string, cred *domain.RecoveryCredential) error {
	query := `
		UPDATE users
		SET reset_token = $1, reset_token_expiry = $2, updated_at = $3
		WHERE id = $4`

	ct, err := r.db.Exec(ctx, query, cred.Value, cred.ExpiresAt, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", userID)
	}

	return nil
}

// SetOTP stores a new outstanding OTP, replacing any prior one.
func (r *UserRepository) SetOTP(ctx context.Context, userID string, cred *domain.RecoveryCredential) error {
	query := `
		UPDATE users
		SET otp_code = $1, otp_expiry = $2, updated_at = $3
		WHERE id = $4`

	ct, err := r.db.Exec(ctx, query, cred.Value, cred.ExpiresAt, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", userID)
	}

	return nil
}

// ConsumeResetToken sets the password hash and clears the reset token in a
// single guarded UPDATE. The WHERE clause re-checks the stored token so two
// concurrent resets cannot both consume it.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, userID, token, passwordHash string) (bool, error) {
	query := `
		UPDATE users
		SET password_hash = $1, reset_token = NULL, reset_token_expiry = NULL, updated_at = $2
		WHERE id = $3 AND reset_token = $4`

	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), userID, token)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// ConsumeOTP sets the password hash and clears the OTP in a single guarded
// UPDATE, with the same at-most-once property as ConsumeResetToken.
func (r *UserRepository) ConsumeOTP(ctx context.Context, userID, code, passwordHash string) (bool, error) {
	query := `
		UPDATE users
		SET password_hash = $1, otp_code = NULL, otp_expiry = NULL, updated_at = $2
		WHERE id = $3 AND otp_code = $4`

	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), userID, code)
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// --- helpers ---

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("query user by %s: %w", column, err)
	}

	return u, nil
}

func (r *UserRepository) exists(ctx context.Context, column, value string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE ` + column + ` = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user %s exists: %w", column, err)
	}

	return exists, nil
}

// row is satisfied by both pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanUser(r row) (*domain.User, error) {
	var (
		u           domain.User
		phone       *string
		hash        *string
		googleID    *string
		facebookID  *string
		resetToken  *string
		resetExpiry *time.Time
		otpCode     *string
		otpExpiry   *time.Time
	)

	err := r.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&phone,
		&hash,
		&u.Roles,
		&u.EmailVerified,
		&u.PhoneVerified,
		&googleID,
		&facebookID,
		&resetToken,
		&resetExpiry,
		&otpCode,
		&otpExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.PhoneNumber = deref(phone)
	u.PasswordHash = deref(hash)
	u.GoogleID = deref(googleID)
	u.FacebookID = deref(facebookID)

	if resetToken != nil && resetExpiry != nil {
		u.ResetToken = &domain.RecoveryCredential{Value: *resetToken, ExpiresAt: *resetExpiry}
	}
	if otpCode != nil && otpExpiry != nil {
		u.OTP = &domain.RecoveryCredential{Value: *otpCode, ExpiresAt: *otpExpiry}
	}

	return &u, nil
}

// nullable maps an empty string to SQL NULL so unique partial indexes on
// optional identities are not tripped by "".
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func credFields(c *domain.RecoveryCredential) (*string, *time.Time) {
	if c == nil {
		return nil, nil
	}
	return &c.Value, &c.ExpiresAt
}

// uniqueViolation reports the constraint name when err is a PostgreSQL
// unique-violation error.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func duplicateError(constraint string, u *domain.User) error {
	switch constraint {
	case "users_username_key":
		return apperrors.DuplicateUsername(u.Username)
	case "users_phone_number_key":
		return apperrors.InvalidInput(fmt.Sprintf("phone number %q is already in use", u.PhoneNumber))
	default:
		return apperrors.DuplicateEmail(u.Email)
	}
}
