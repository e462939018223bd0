package validate

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

var (
	emailShape = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// Optional leading "+", then digits separated by spaces, dots, dashes or parentheses.
	phoneShape = regexp.MustCompile(`^\+?[0-9 .()\-]+$`)
)

// DefaultPhoneRegion is the region assumed for phone numbers written without a country code.
const DefaultPhoneRegion = "US"

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// FieldRule checks one field of a record and returns an error, or nil when the value is acceptable.
type FieldRule func(r *model.Record) *model.ValidationError

// KeyFunc derives the duplicate-detection key of a record. An empty key is never a duplicate.
type KeyFunc func(r *model.Record) string

// RuleSet is the validation recipe for one entity type.
type RuleSet struct {
	Rules []FieldRule
	// Key is nil for entity types without a uniqueness constraint.
	Key      KeyFunc
	KeyField string
}

// Required flags an empty or whitespace-only value.
func Required(field string) FieldRule {
	return func(r *model.Record) *model.ValidationError {
		if r.Get(field) != "" {
			return nil
		}
		return &model.ValidationError{
			Row:     r.Index,
			Field:   field,
			Kind:    model.KindMissingField,
			Value:   r.Fields[field],
			Message: field + " is required",
		}
	}
}

// Email flags a non-empty value that is not shaped like an email address.
func Email(field string) FieldRule {
	return func(r *model.Record) *model.ValidationError {
		v := r.Get(field)
		if v == "" || emailShape.MatchString(v) {
			return nil
		}
		return &model.ValidationError{
			Row:     r.Index,
			Field:   field,
			Kind:    model.KindInvalidFormat,
			Value:   v,
			Message: "invalid email format",
		}
	}
}

// Phone flags a non-empty value that is not a valid phone number. Numbers without a
// country code are read as numbers of region.
func Phone(field, region string) FieldRule {
	return func(r *model.Record) *model.ValidationError {
		v := r.Get(field)
		if v == "" || ValidPhone(v, region) {
			return nil
		}
		return &model.ValidationError{
			Row:     r.Index,
			Field:   field,
			Kind:    model.KindInvalidFormat,
			Value:   v,
			Message: "invalid phone format",
		}
	}
}

// ValidEmail reports whether s is shaped like an email address.
func ValidEmail(s string) bool {
	return emailShape.MatchString(strings.TrimSpace(s))
}

// ValidPhone reports whether s is a valid number for its country, read as a number of
// region when it has no country code. Values the parser rejects outright fall back to
// the shape check of ValidPhoneShape.
func ValidPhone(s, region string) bool {
	s = strings.TrimSpace(s)
	num, err := phonenumbers.Parse(s, strings.ToUpper(region))
	if err != nil {
		return ValidPhoneShape(s)
	}
	return phonenumbers.IsValidNumber(num)
}

// ValidPhoneShape reports whether s has an optional leading "+" and 7 to 15 digits once
// separators are removed.
func ValidPhoneShape(s string) bool {
	s = strings.TrimSpace(s)
	if !phoneShape.MatchString(s) || strings.Count(s, "+") > 1 {
		return false
	}
	digits := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

// NormalizedKey returns a KeyFunc that trims and lowercases field.
func NormalizedKey(field string) KeyFunc {
	return func(r *model.Record) string {
		return strings.ToLower(r.Get(field))
	}
}

// DefaultRuleSets returns the rules applied to companies, contacts and tickets, with
// phone numbers read in DefaultPhoneRegion.
func DefaultRuleSets() map[model.EntityType]RuleSet {
	return RuleSetsForRegion(DefaultPhoneRegion)
}

// RuleSetsForRegion is DefaultRuleSets with phone numbers read in region.
func RuleSetsForRegion(region string) map[model.EntityType]RuleSet {
	return map[model.EntityType]RuleSet{
		model.EntityCompany: {
			Rules:    []FieldRule{Required(model.FieldName)},
			Key:      NormalizedKey(model.FieldName),
			KeyField: model.FieldName,
		},
		model.EntityContact: {
			Rules:    []FieldRule{Required(model.FieldEmail), Email(model.FieldEmail), Phone(model.FieldPhone, region)},
			Key:      NormalizedKey(model.FieldEmail),
			KeyField: model.FieldEmail,
		},
		model.EntityTicket: {
			Rules: []FieldRule{Required(model.FieldSubject)},
		},
	}
}
