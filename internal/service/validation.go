package service

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"ecoaction/internal/apperror"
)

var (
	validate = validator.New()

	usernamePattern = regexp.MustCompile(`^[a-z0-9]{3,30}$`)
)

func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if err := validate.Var(email, "email,max=254"); err != nil {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	return nil
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperror.ValidationFailed("username", "username must be 3-30 letters or digits")
	}
	return nil
}
