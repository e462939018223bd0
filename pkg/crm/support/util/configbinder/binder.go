// Package configbinder binds loosely typed configuration sections onto typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes raw (typically a map[string]interface{} from YAML) into target.
// Struct fields are matched by their `yaml` tag and scalar values are weakly typed,
// so "5432" binds to an int field.
func Bind(raw interface{}, target interface{}) error {
	if raw == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindNamed looks up name in sections and binds it to target.
// It returns an error when the section is missing.
func BindNamed(sections map[string]interface{}, name string, target interface{}) error {
	raw, ok := sections[name]
	if !ok {
		return fmt.Errorf("configuration section '%s' not found", name)
	}
	return Bind(raw, target)
}
