package services

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	minUsernameLength = 3
	minEmailLength    = 13
	minPasswordLength = 5
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// FieldError is one failed input rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every input rule that failed for a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Message)
	}
	return strings.Join(messages, ", ")
}

var (
	usernameRules = []validation.Rule{
		validation.Required.Error("Username is required"),
		validation.Length(minUsernameLength, 0).Error("Username must be at least 3 characters long"),
	}
	passwordRules = []validation.Rule{
		validation.Required.Error("Password is required"),
		validation.Length(minPasswordLength, 0).Error("Password must be at least 5 characters long"),
		validation.By(maxBytes(maxPasswordBytes, "Password must be at most 72 bytes long")),
	}
	emailRules = []validation.Rule{
		validation.Required.Error("Email is required"),
		is.Email.Error("Invalid email format"),
		validation.Length(minEmailLength, 0).Error("Email must be at least 13 characters long"),
	}
)

func maxBytes(limit int, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > limit {
			return errors.New(message)
		}
		return nil
	}
}

// toValidationError converts ozzo's per-field map into a ValidationError
// with a stable field order.
func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make([]FieldError, 0, len(errs))
	for field, fieldErr := range errs {
		fields = append(fields, FieldError{Field: field, Message: fieldErr.Error()})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return &ValidationError{Fields: fields}
}
