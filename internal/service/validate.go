package service

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/cardauth/internal/apperror"
)

const (
	MaxNameLength   = 100
	MinMobileLength = 10
	MaxMobileLength = 15
	MinPINLength    = 4
	MaxPINLength    = 6

	// bcrypt ignores everything past 72 bytes.
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func normalizeMobile(mobile string) (string, error) {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return "", apperror.ValidationFailed("mobile_number", "mobile number is required")
	}
	if err := validate.Var(mobile, "numeric,min=10,max=15"); err != nil {
		return "", apperror.ValidationFailed("mobile_number", "mobile number must be 10 to 15 digits")
	}
	return mobile, nil
}

func normalizeName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed(field, strings.ReplaceAll(field, "_", " ")+" is required")
	}
	if len(name) > MaxNameLength {
		return "", apperror.ValidationFailed(field, strings.ReplaceAll(field, "_", " ")+" must be 100 characters or fewer")
	}
	return name, nil
}

// normalizeEmail accepts an empty email (it is optional everywhere).
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}

func checkPIN(pin string) error {
	if pin == "" {
		return apperror.ValidationFailed("pin", "pin is required")
	}
	if err := validate.Var(pin, "numeric,min=4,max=6"); err != nil {
		return apperror.ValidationFailed("pin", "pin must be 4 to 6 digits")
	}
	return nil
}

func checkPassword(field, password string) error {
	if password == "" {
		return apperror.ValidationFailed(field, strings.ReplaceAll(field, "_", " ")+" is required")
	}
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return apperror.ValidationFailed(field, "password must be 8 to 72 characters")
	}
	return nil
}

func checkBusinessCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if err := validate.Var(code, "required,numeric,len=6"); err != nil {
		return "", apperror.ValidationFailed("business_id", "business id must be 6 digits")
	}
	return code, nil
}

func checkCardNumber(n int64) error {
	if n <= 0 {
		return apperror.ValidationFailed("card_number", "card number is required")
	}
	return nil
}
