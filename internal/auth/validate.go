package auth

import (
	"errors"
	"regexp"
	"unicode"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail checks the address shape the server accepts.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailRe.MatchString(email) {
		return errors.New("please enter a valid email address")
	}
	return nil
}

// ValidatePassword requires at least 8 characters with letters and digits.
func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if len(password) < 8 || !letter || !digit {
		return errors.New("password must be at least 8 characters and contain both letters and numbers")
	}
	return nil
}

// ValidatePasswordChange checks a reset form.
func ValidatePasswordChange(oldPassword, newPassword, confirm string) error {
	if err := ValidatePassword(oldPassword); err != nil {
		return errors.New("current " + err.Error())
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if newPassword != confirm {
		return errors.New("passwords do not match")
	}
	if oldPassword == newPassword {
		return errors.New("new password must be different from current password")
	}
	return nil
}
