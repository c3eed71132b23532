package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 12
	MaxPasswordLen = 72 // bcrypt ignores anything longer
)

// ErrPasswordMismatch is returned when credentials do not match
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordValidationError lists every rule a candidate password broke
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "weak password: " + strings.Join(e.Errors, "; ")
}

var commonPasswords = map[string]bool{
	"password1234":  true,
	"123456789012":  true,
	"qwertyuiop12":  true,
	"administrator": true,
	"letmein12345":  true,
	"changeme1234":  true,
}

// dummyHash is compared against when the username is wrong so both paths cost one bcrypt run
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("loginguard-dummy-password"), BcryptCost)

// HashPassword produces the value expected in ADMIN_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// IsBcryptHash reports whether s looks like a bcrypt hash
func IsBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// VerifyCredentials checks a username/password pair against the configured
// account. It takes the same time whether the username or the password is wrong.
func VerifyCredentials(wantUsername, passwordHash, username, password string) error {
	usernameOK := subtle.ConstantTimeCompare([]byte(wantUsername), []byte(username)) == 1

	hash := []byte(passwordHash)
	if !usernameOK {
		hash = dummyHash
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !usernameOK {
		return ErrPasswordMismatch
	}
	return nil
}

// ValidatePassword enforces the rules for a new admin password
func ValidatePassword(password string) error {
	errs := make([]string, 0)

	if len(password) < MinPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errs = append(errs, "must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "must contain at least one digit")
	}
	if !hasSpecial {
		errs = append(errs, "must contain at least one special character")
	}

	if commonPasswords[strings.ToLower(password)] {
		errs = append(errs, "is too common")
	}

	if len(errs) > 0 {
		return &PasswordValidationError{Errors: errs}
	}
	return nil
}
