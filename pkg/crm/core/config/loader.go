package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

const moduleName = "config"

// APIKeyEnvVar is read when crm.hubspot.api_key is left empty.
const APIKeyEnvVar = "HUBSPOT_API_KEY"

// LoadConfig builds the configuration in this order:
//  1. variables from the .env file at envFilePath (missing file is not an error),
//  2. defaults from NewConfig,
//  3. the embedded YAML with ${VAR} placeholders expanded,
//  4. CRM_* environment overrides derived from yaml tags (CRM_IMPORT_BATCH_SIZE, ...),
//  5. the HUBSPOT_API_KEY fallback.
//
// The result is validated; any failure is returned as a configuration error.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to expand environment placeholders", err)
	}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to unmarshal embedded config", err)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}

	if cfg.CRM.HubSpot.APIKey == "" {
		cfg.CRM.HubSpot.APIKey = os.Getenv(APIKeyEnvVar)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the names listed in retryable_exceptions.
func Validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	var result *multierror.Error
	if err := v.Struct(cfg); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				path := strings.TrimPrefix(fe.Namespace(), "Config.")
				result = multierror.Append(result, fmt.Errorf("%s: failed '%s' constraint (value %v)", path, fe.Tag(), fe.Value()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	for _, name := range cfg.CRM.Import.Retry.RetryableExceptions {
		if !exception.IsErrorTypeRegistered(name) {
			result = multierror.Append(result, fmt.Errorf("crm.import.retry.retryable_exceptions references unknown exception '%s'", name))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return exception.NewConfigurationError(moduleName, "invalid configuration", err)
	}
	return nil
}

// loadStructFromEnv recursively overrides struct fields from environment variables.
// The variable name is the uppercased yaml tag path joined by underscores.
//
// Parameters:
//
//	val: The reflect.Value of the struct to populate.
//	prefix: The prefix for environment variable names (e.g., "CRM_IMPORT_").
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.SplitN(fieldType.Tag.Get("yaml"), ",", 2)[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map:
			// Raw adaptor sections and mappings are configured through YAML only.
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField converts value to the field's kind and assigns it.
// Slices of strings are read as comma-separated lists.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element kind %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}

// MaskValue returns value unchanged unless key is listed in security.masked_keys.
func (c *Config) MaskValue(key, value string) string {
	for _, k := range c.CRM.Security.MaskedKeys {
		if strings.EqualFold(k, key) {
			if value == "" {
				return ""
			}
			return "********"
		}
	}
	return value
}
