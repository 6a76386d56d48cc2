package auth

import (
	"fmt"
	"regexp"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/230701390/feedr/internal/feederr"
)

var pincodeRegexp = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidatePassword enforces the signup password policy: at least 6
// characters, one uppercase letter and one special character.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", feederr.ErrValidation)
	}
	var hasUpper, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("%w: password must contain an uppercase letter", feederr.ErrValidation)
	}
	if !hasSpecial {
		return fmt.Errorf("%w: password must contain a special character", feederr.ErrValidation)
	}
	return nil
}

// ValidatePincode accepts Indian postal codes: six digits, not starting
// with zero.
func ValidatePincode(pincode string) error {
	if !pincodeRegexp.MatchString(pincode) {
		return fmt.Errorf("%w: pincode must be a six digit postal code", feederr.ErrValidation)
	}
	return nil
}
