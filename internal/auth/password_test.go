package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/internal/auth"
	_ "github.com/libris-app/libris/testing"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		username string
		email    string
		want     []error
	}{
		{name: "acceptable", password: "correct-horse-battery", username: "reader", email: "reader@example.com"},
		{name: "too short", password: "pw1", want: []error{auth.ErrPasswordTooShort}},
		{name: "entirely numeric", password: "20240101", want: []error{auth.ErrPasswordNumeric}},
		{name: "common", password: "password1", want: []error{auth.ErrPasswordTooCommon}},
		{name: "contains username", password: "xx_margaret_xx", username: "margaret", want: []error{auth.ErrPasswordTooSimilar}},
		{name: "matches email local part", password: "reader99x", email: "reader99x@example.com", want: []error{auth.ErrPasswordTooSimilar}},
		{
			name:     "short and numeric",
			password: "1234",
			want:     []error{auth.ErrPasswordTooShort, auth.ErrPasswordNumeric},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := auth.ValidatePassword(tc.password, tc.username, tc.email)
			require.Len(t, errs, len(tc.want))
			for i, want := range tc.want {
				assert.ErrorIs(t, errs[i], want)
			}
		})
	}
}

func TestShortUsernameDoesNotTriggerSimilarity(t *testing.T) {
	// Attributes under four characters are too noisy to match against.
	errs := auth.ValidatePassword("abcdefgh", "ab", "ab@example.com")
	assert.Empty(t, errs)
}
