package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalid is wrapped by every validation failure. Invalid input is a
// permanent rejection: retrying it later cannot succeed.
var ErrInvalid = errors.New("invalid input")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ClassInput carries the caller-supplied fields of a class write.
type ClassInput struct {
	Name    string `validate:"required,max=120"`
	Section string `validate:"max=40"`
}

// StudentInput carries the caller-supplied fields of a student write.
type StudentInput struct {
	ClassID string `validate:"required"`
	Name    string `validate:"required,max=120"`
}

// SessionInput carries the fields of a session creation.
type SessionInput struct {
	ClassID string `validate:"required"`
	Date    string `validate:"required,datetime=2006-01-02"`
}

// RecordInput carries the fields of an attendance write.
type RecordInput struct {
	SessionID string `validate:"required"`
	StudentID string `validate:"required"`
	ClassID   string `validate:"required"`
	Status    Status `validate:"required,oneof=present absent"`
}

// Validate checks v's struct tags. Failures wrap ErrInvalid and name every
// offending field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(parts, ", "))
}

// NormalizeName trims surrounding space and applies Unicode NFC so that
// visually identical names ("Ayşe" typed two ways) compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
