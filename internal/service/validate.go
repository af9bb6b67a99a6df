package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/sakif/thoughts/internal/apperror"
)

// Input bounds, counted in runes after trimming.
const (
	NameMinLength        = 3
	NameMaxLength        = 30
	PasswordMinLength    = 8
	PasswordMaxLength    = 30
	DescriptionMinLength = 2
	DescriptionMaxLength = 3000
	CommentMinLength     = 2
	CommentMaxLength     = 2000
)

const (
	msgPasswordLength  = "Password must be at least 8 characters long and not more than 30 characters long"
	msgPasswordCharset = "Password must contain at least one letter (a-z) and one number"
	msgInvalidEmail    = "Invalid email address"
	msgInvalidID       = "Invalid id"
)

var (
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)
)

// fieldCheck pairs one input value with its ozzo rules.
type fieldCheck struct {
	field string
	value any
	rules []validation.Rule
}

func check(field string, value any, rules ...validation.Rule) fieldCheck {
	return fieldCheck{field: field, value: value, rules: rules}
}

// validateFields runs the checks in order and reports the first violation
// as an apperror validation error. Order matters: clients see one message.
func validateFields(checks ...fieldCheck) error {
	for _, c := range checks {
		err := validation.Validate(c.value, c.rules...)
		if err == nil {
			continue
		}
		var internal validation.InternalError
		if errors.As(err, &internal) {
			return fmt.Errorf("validating %s: %w", c.field, internal.InternalError())
		}
		return apperror.ValidationFailed(c.field, err.Error())
	}
	return nil
}

func nameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Name is required"),
		validation.RuneLength(NameMinLength, NameMaxLength).
			Error(fmt.Sprintf("Name must be between %d and %d characters long", NameMinLength, NameMaxLength)),
	}
}

func emailRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Email is required"),
		is.Email.Error(msgInvalidEmail),
	}
}

// passwordRules applies to the whitespace-stripped password.
func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Password is required"),
		validation.RuneLength(PasswordMinLength, PasswordMaxLength).Error(msgPasswordLength),
		validation.Match(hasLetter).Error(msgPasswordCharset),
		validation.Match(hasDigit).Error(msgPasswordCharset),
	}
}

func descriptionRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Post description is required"),
		validation.RuneLength(DescriptionMinLength, DescriptionMaxLength).
			Error(fmt.Sprintf("Post description must be between %d and %d characters long", DescriptionMinLength, DescriptionMaxLength)),
	}
}

func commentRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Comment is required"),
		validation.RuneLength(CommentMinLength, CommentMaxLength).
			Error(fmt.Sprintf("Comment should be minimum %d characters and max %d characters long", CommentMinLength, CommentMaxLength)),
	}
}

// ValidateID rejects ids shorter than minLength.
func ValidateID(field, id string, minLength int) error {
	return validateFields(check(field, id,
		validation.Required.Error(msgInvalidID),
		validation.Length(minLength, 0).Error(msgInvalidID),
	))
}

// stripSpace removes every whitespace rune.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// normalizeEmail strips whitespace and lower-cases, so uniqueness is
// case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(stripSpace(email))
}
