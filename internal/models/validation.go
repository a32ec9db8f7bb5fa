package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxTitleLength is the longest title accepted, in characters.
	MaxTitleLength = 256
	// MaxMemoLength is the longest memo accepted, in characters.
	MaxMemoLength = 65536
	// MaxLabels is the largest number of labels on one item.
	MaxLabels = 10
	// MaxLabelLength is the longest label name, in characters.
	MaxLabelLength = 50
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("label", func(fl validator.FieldLevel) bool {
		return ValidLabel(fl.Field().String())
	})
}

// FieldError describes one failed rule.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError is returned when input fails the local schema. It is never
// sent to the network.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Rule))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidLabel reports whether name is an acceptable label: 1..50 characters
// with no whitespace, comma or double quote.
func ValidLabel(name string) bool {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxLabelLength {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '"'
	})
}

// ValidateCreate checks a new item before it is sent.
func ValidateCreate(in CreateInput) error {
	return wrap(validate.Struct(in))
}

// ValidateContent checks an editor payload before it is saved.
func ValidateContent(c Content) error {
	return wrap(validate.Struct(c))
}

// ValidatePatch checks the fields a patch sets.
func ValidatePatch(p ItemPatch) error {
	var fields []FieldError
	check := func(name string, value any, tag string) {
		if err := validate.Var(value, tag); err != nil {
			fields = append(fields, toFieldErrors(name, err)...)
		}
	}
	if p.Title != nil {
		check("Title", *p.Title, "required,max=256")
	}
	if p.Memo != nil {
		check("Memo", *p.Memo, "max=65536")
	}
	if p.State != nil {
		check("State", string(*p.State), "oneof=open closed")
	}
	if p.StateReason != nil {
		check("StateReason", string(*p.StateReason), "oneof=completed reopened not_planned")
	}
	if p.Labels != nil {
		check("Labels", *p.Labels, "max=10,unique,dive,label")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Fields: toFieldErrors("", err)}
}

func toFieldErrors(name string, err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: name, Rule: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if name != "" {
			field = name
		}
		out = append(out, FieldError{Field: field, Rule: fe.Tag()})
	}
	return out
}
