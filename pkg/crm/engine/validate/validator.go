// Package validate checks records before submission: required fields, formats and duplicate keys.
package validate

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// Validator applies a RuleSet per entity type. It holds no state between calls.
type Validator struct {
	ruleSets map[model.EntityType]RuleSet
}

// NewValidator creates a Validator with the default rule sets.
func NewValidator() *Validator {
	return &Validator{ruleSets: DefaultRuleSets()}
}

// NewValidatorForRegion creates a Validator with the default rule sets, reading phone
// numbers without a country code as numbers of region.
func NewValidatorForRegion(region string) *Validator {
	if region == "" {
		region = DefaultPhoneRegion
	}
	return &Validator{ruleSets: RuleSetsForRegion(region)}
}

// NewValidatorWithRules creates a Validator with custom rule sets.
func NewValidatorWithRules(ruleSets map[model.EntityType]RuleSet) *Validator {
	return &Validator{ruleSets: ruleSets}
}

// Validate checks records of the given entity type.
// Field errors come in row order, then rule order; duplicate-key errors follow,
// grouped by key in first-occurrence order. Every row sharing a key is flagged.
func (v *Validator) Validate(entity model.EntityType, records []*model.Record) (bool, []model.ValidationError) {
	rules, ok := v.ruleSets[entity]
	if !ok {
		return false, []model.ValidationError{{
			Row:     -1,
			Kind:    model.KindUnsupportedEntity,
			Value:   string(entity),
			Message: fmt.Sprintf("unsupported entity type %q", entity),
		}}
	}

	errs := make([]model.ValidationError, 0)
	for _, r := range records {
		for _, rule := range rules.Rules {
			if ve := rule(r); ve != nil {
				errs = append(errs, *ve)
			}
		}
	}
	if rules.Key != nil {
		errs = append(errs, duplicates(records, rules)...)
	}
	return len(errs) == 0, errs
}

func duplicates(records []*model.Record, rules RuleSet) []model.ValidationError {
	order := make([]string, 0)
	groups := make(map[string][]*model.Record)
	for _, r := range records {
		key := rules.Key(r)
		if key == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var errs []model.ValidationError
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		rows := make([]string, len(group))
		for i, r := range group {
			rows[i] = fmt.Sprint(r.Index)
		}
		for _, r := range group {
			errs = append(errs, model.ValidationError{
				Row:     r.Index,
				Field:   rules.KeyField,
				Kind:    model.KindDuplicateKey,
				Value:   r.Get(rules.KeyField),
				Message: fmt.Sprintf("duplicate %s %q (rows %s)", rules.KeyField, key, strings.Join(rows, ", ")),
			})
		}
	}
	return errs
}

// Validate checks records with the default rule sets.
func Validate(entity model.EntityType, records []*model.Record) (bool, []model.ValidationError) {
	return NewValidator().Validate(entity, records)
}

// Aggregate folds validation errors into a single error, or nil when errs is empty.
func Aggregate(entity model.EntityType, errs []model.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, e := range errs {
		result = multierror.Append(result, e)
	}
	result.ErrorFormat = func(es []error) string {
		lines := make([]string, len(es))
		for i, e := range es {
			lines[i] = "\t* " + e.Error()
		}
		return fmt.Sprintf("%d validation error(s) in %s:\n%s", len(es), entity, strings.Join(lines, "\n"))
	}
	return result
}
