package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupForm struct {
	Username string `validate:"required,min=3,max=20"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=40"`
	Phone    string `validate:"omitempty,e164"`
}

func TestValidate_Valid(t *testing.T) {
	form := signupForm{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "pw123456",
		Phone:    "+15551234567",
	}
	assert.NoError(t, Validate(form))
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(signupForm{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Contains(t, fields, "Username")
	assert.Contains(t, fields, "Email")
	assert.Contains(t, fields, "Password")
	assert.Equal(t, "is required", fields["Email"])
}

func TestValidate_BadEmail(t *testing.T) {
	form := signupForm{Username: "alice", Email: "not-an-email", Password: "pw123456"}
	err := Validate(form)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a valid email address", valErr.Fields()["Email"])
}

func TestValidate_PasswordTooShort(t *testing.T) {
	form := signupForm{Username: "alice", Email: "a@x.com", Password: "pw1"}
	err := Validate(form)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password")
}

func TestValidate_BadPhone(t *testing.T) {
	form := signupForm{Username: "alice", Email: "a@x.com", Password: "pw123456", Phone: "555-nope"}
	err := Validate(form)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields(), "Phone")
}
