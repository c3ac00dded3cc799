package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{"a@b.co", true},
		{"first.last@example.com", true},
		{"", false},
		{"no-at.example.com", false},
		{"a@b", false},
		{"a b@c.d", false},
		{"a@@b.c", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"abcdefg1", true},
		{"Passw0rd!", true},
		{"", false},
		{"abc1", false},
		{"abcdefgh", false},
		{"12345678", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidatePasswordChange(t *testing.T) {
	assert.NoError(t, ValidatePasswordChange("oldpass12", "newpass34", "newpass34"))
	assert.EqualError(t, ValidatePasswordChange("oldpass12", "newpass34", "newpass35"), "passwords do not match")
	assert.EqualError(t, ValidatePasswordChange("samepass1", "samepass1", "samepass1"), "new password must be different from current password")
	assert.Error(t, ValidatePasswordChange("short", "newpass34", "newpass34"))
}
