package config

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	nodeIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

func init() {
	validate = validator.New()

	validate.RegisterValidation("nodeid", validateNodeID)
}

// Validate validates a struct using its validate tags.
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// ValidateVar validates a single value against tag.
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

func validateNodeID(fl validator.FieldLevel) bool {
	return nodeIDRegex.MatchString(fl.Field().String())
}
