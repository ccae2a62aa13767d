package emailrisk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		email  string
		valid  bool
		reason string
	}{
		{"user@example.com", true, ""},
		{"  User@Example.COM  ", true, ""},
		{"not-an-email", false, "invalid email format"},
		{"missing@domain", false, "invalid email format"},
		{"two@@example.com", false, "invalid email format"},
		{"user..name@example.com", false, "email contains consecutive dots"},
		{".user@example.com", false, "email username cannot start or end with a dot"},
		{"user.@example.com", false, "email username cannot start or end with a dot"},
		{"user@example.c", false, "invalid top-level domain"},
		{"user@example.c0m", false, "invalid top-level domain"},
	}
	for _, tt := range tests {
		res := Validate(tt.email)
		assert.Equal(t, tt.valid, res.IsValid, "email %q", tt.email)
		if !tt.valid {
			assert.Equal(t, tt.reason, res.Reason, "email %q", tt.email)
			assert.Equal(t, 100, res.RiskScore)
		}
	}
}

func TestValidateLengthLimits(t *testing.T) {
	longLocal := strings.Repeat("a", 65) + "@example.com"
	res := Validate(longLocal)
	assert.False(t, res.IsValid)
	assert.Equal(t, "email username is too long", res.Reason)

	longAddr := strings.Repeat("a", 60) + "@" + strings.Repeat("b", 190) + ".example.com"
	res = Validate(longAddr)
	assert.False(t, res.IsValid)
	assert.Equal(t, "email address is too long", res.Reason)
}

func TestTypoSuggestion(t *testing.T) {
	res := Validate("someone@gmial.com")
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"someone@gmail.com"}, res.Suggestions)
	assert.Equal(t, 30, res.RiskScore)

	assert.Equal(t, "someone@gmail.com", DetectTypo("Someone@GMIAL.com"))
	assert.Equal(t, "", DetectTypo("someone@gmail.com"))
}

func TestRiskScoring(t *testing.T) {
	// Trusted domain, ordinary local part.
	assert.Equal(t, 0, Validate("jordan@gmail.com").RiskScore)

	// Disposable domain: +50, plus +20 for not being trusted.
	res := Validate("x1@mailinator.com")
	assert.True(t, res.IsValid)
	assert.True(t, IsDisposable("x1@mailinator.com"))
	assert.Equal(t, 80, res.RiskScore) // 50 + 20 + 10 (short local)

	// Role-based address on an unknown domain.
	res = Validate("admin@smallbiz.org")
	assert.Equal(t, 45, res.RiskScore) // 20 + 25

	// Long digit run.
	res = Validate("user12345@gmail.com")
	assert.Equal(t, 15, res.RiskScore)
}
