package common

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FieldError is one failed rule on one request field.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (e FieldError) Error() string {
	if s, ok := e.Value.(string); ok && utf8.RuneCountInString(s) > 40 {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, fmt.Sprint(e.Value), e.Reason)
}

// Rule checks a single value. A nil result means the value passed.
type Rule func(field string, value any) *FieldError

// Validator gathers field errors for a gRPC request or parse option set.
//
//	err := common.NewValidator().
//		Field("text", req.Text, common.Required, common.MaxLen(MaxTextChars)).
//		Field("mode", req.Mode, common.OneOf(constants.ModesAsStringSlice()...)).
//		Error()
type Validator struct {
	failed []FieldError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field applies rules to value in order, keeping every failure.
func (v *Validator) Field(field string, value any, rules ...Rule) *Validator {
	for _, rule := range rules {
		if fe := rule(field, value); fe != nil {
			v.failed = append(v.failed, *fe)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.failed) > 0 }

func (v *Validator) Errors() []FieldError { return v.failed }

// ErrorMessage joins the failures with "; ".
func (v *Validator) ErrorMessage() string {
	parts := make([]string, len(v.failed))
	for i, fe := range v.failed {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Error wraps ErrValidation, so ToStatusError maps it to InvalidArgument.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, v.ErrorMessage())
}

// text unwraps string and *string values.
func text(value any) (string, bool) {
	switch s := value.(type) {
	case string:
		return s, true
	case *string:
		if s != nil {
			return *s, true
		}
	}
	return "", false
}

// Required rejects nil and blank strings.
func Required(field string, value any) *FieldError {
	if value == nil {
		return &FieldError{Field: field, Reason: "is required"}
	}
	if s, ok := text(value); ok && strings.TrimSpace(s) == "" {
		return &FieldError{Field: field, Value: value, Reason: "is required"}
	}
	if p, ok := value.(*string); ok && p == nil {
		return &FieldError{Field: field, Reason: "is required"}
	}
	return nil
}

// MinLen and MaxLen count runes, so a Chinese clause is measured in characters.
func MinLen(n int) Rule {
	return func(field string, value any) *FieldError {
		if s, ok := text(value); ok && utf8.RuneCountInString(s) < n {
			return &FieldError{Field: field, Value: value, Reason: fmt.Sprintf("must be at least %d characters", n)}
		}
		return nil
	}
}

func MaxLen(n int) Rule {
	return func(field string, value any) *FieldError {
		if s, ok := text(value); ok && utf8.RuneCountInString(s) > n {
			return &FieldError{Field: field, Value: value, Reason: fmt.Sprintf("must be at most %d characters", n)}
		}
		return nil
	}
}

// OneOf accepts strings from a closed set, ignoring case. Empty strings pass so the
// caller's default can apply.
func OneOf(allowed ...string) Rule {
	return func(field string, value any) *FieldError {
		s, ok := text(value)
		if !ok {
			return &FieldError{Field: field, Value: value, Reason: "must be a string"}
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		for _, a := range allowed {
			if strings.EqualFold(s, a) {
				return nil
			}
		}
		return &FieldError{Field: field, Value: value, Reason: "must be one of " + strings.Join(allowed, ", ")}
	}
}

// IntRange accepts ints in [lo, hi]. Zero passes so the caller's default can apply.
func IntRange(lo, hi int) Rule {
	return func(field string, value any) *FieldError {
		n, ok := value.(int)
		if !ok {
			return &FieldError{Field: field, Value: value, Reason: "must be an integer"}
		}
		if n != 0 && (n < lo || n > hi) {
			return &FieldError{Field: field, Value: value, Reason: fmt.Sprintf("must be between %d and %d", lo, hi)}
		}
		return nil
	}
}

// UUID accepts record ids, surrounding blanks allowed.
func UUID(field string, value any) *FieldError {
	s, ok := text(value)
	if !ok {
		return &FieldError{Field: field, Value: value, Reason: "must be a string"}
	}
	if _, err := uuid.Parse(strings.TrimSpace(s)); err != nil {
		return &FieldError{Field: field, Value: value, Reason: "must be a record id (UUID)"}
	}
	return nil
}

// CurrencyCode accepts three upper-case ASCII letters (ISO 4217 shape).
func CurrencyCode(field string, value any) *FieldError {
	s, ok := text(value)
	if !ok {
		return &FieldError{Field: field, Value: value, Reason: "must be a string"}
	}
	if len(s) != 3 {
		return &FieldError{Field: field, Value: value, Reason: "must be a 3 letter ISO 4217 code"}
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsUpper(r) {
			return &FieldError{Field: field, Value: value, Reason: "must be a 3 letter ISO 4217 code"}
		}
	}
	return nil
}
