// Package config provides the configuration structures of the import engine and
// the loader that assembles them from defaults, embedded YAML and environment variables.
package config

import "time"

// EmbeddedConfig holds the raw bytes of the embedded application.yaml.
type EmbeddedConfig []byte

// Validation policies.
const (
	// PolicySkip submits valid rows and skips flagged ones.
	PolicySkip = "skip"
	// PolicyAbort withholds the whole entity batch when any row is flagged.
	PolicyAbort = "abort"
)

// UnlimitedSkips disables the skip limit of the skip policy.
const UnlimitedSkips = -1

// PlaceholderAPIKey is the sample key shipped in templates; it selects demo mode.
const PlaceholderAPIKey = "YOUR_API_KEY_HERE"

// RetryConfig holds the chunk retry settings. Intervals are in milliseconds.
type RetryConfig struct {
	// MaxAttempts is the total number of sends per chunk, first send included.
	MaxAttempts     int     `yaml:"max_attempts" validate:"gte=1,lte=10"`
	InitialInterval int     `yaml:"initial_interval" validate:"gte=0"`
	MaxInterval     int     `yaml:"max_interval" validate:"gte=0"`
	Factor          float64 `yaml:"factor" validate:"gte=1"`
	// RateLimitInterval is the wait used after a 429 that carries no Retry-After hint.
	RateLimitInterval   int      `yaml:"rate_limit_interval" validate:"gte=0"`
	RetryableExceptions []string `yaml:"retryable_exceptions"`
}

// ValidationConfig selects what happens to rows flagged by the validator.
type ValidationConfig struct {
	Policy string `yaml:"policy" validate:"oneof=skip abort"`
	// SkipLimit bounds the number of skipped rows per entity type; -1 means unlimited.
	SkipLimit int `yaml:"skip_limit" validate:"gte=-1"`
	// PhoneRegion is the ISO 3166-1 region assumed for phone numbers without a country code.
	PhoneRegion string `yaml:"phone_region" validate:"omitempty,len=2"`
}

// ImportConfig holds engine settings.
type ImportConfig struct {
	BatchSize int `yaml:"batch_size" validate:"gte=1,lte=100"`
	// DelayBetweenBatches is the fixed pause between chunks, in milliseconds.
	DelayBetweenBatches    int              `yaml:"delay_between_batches" validate:"gte=0"`
	Retry                  RetryConfig      `yaml:"retry"`
	Validation             ValidationConfig `yaml:"validation"`
	SearchExistingContacts bool             `yaml:"search_existing_contacts"`
	TicketTextFields       []string         `yaml:"ticket_text_fields" validate:"min=1"`
}

// HubSpotConfig holds the remote CRM connection settings.
type HubSpotConfig struct {
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	APIKey            string  `yaml:"api_key"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"gte=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	// PropertyMappings maps entity type to (source column -> CRM property).
	// An entity without a mapping sends every non-empty field unchanged.
	PropertyMappings map[string]map[string]string `yaml:"property_mappings"`
	// AssociationTypes maps relation kind to the CRM association type id.
	AssociationTypes map[string]int `yaml:"association_types"`
}

// SimulationConfig configures the in-memory demo store.
type SimulationConfig struct {
	Enabled     bool    `yaml:"enabled"`
	SuccessRate float64 `yaml:"success_rate" validate:"gte=0,lte=1"`
	Seed        int64   `yaml:"seed"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// MetricsConfig selects the metric recorder backend.
type MetricsConfig struct {
	// Backend is "prometheus", "otel" or "none".
	Backend string `yaml:"backend" validate:"oneof=prometheus otel none"`
	// ListenAddr exposes the Prometheus registry over HTTP when set (e.g. ":9090").
	ListenAddr string `yaml:"listen_addr"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	Protocol      string  `yaml:"protocol" validate:"oneof=grpc http"`
	Insecure      bool    `yaml:"insecure"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio" validate:"gte=0,lte=1"`
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
	// DatabaseRef names an entry under crm.database.
	DatabaseRef string `yaml:"database_ref"`
	// Migrate applies the embedded schema migrations on startup.
	Migrate bool `yaml:"migrate"`
}

// ExportConfig configures the Parquet export of record outcomes.
type ExportConfig struct {
	Enabled bool `yaml:"enabled"`
	// StorageRef names an entry under crm.storage.
	StorageRef  string `yaml:"storage_ref"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression" validate:"oneof=SNAPPY GZIP NONE"`
}

// InputConfig names the CSV files read by the command.
type InputConfig struct {
	Companies string `yaml:"companies"`
	Contacts  string `yaml:"contacts"`
	Tickets   string `yaml:"tickets"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedKeys lists config keys whose values are masked in logs.
	MaskedKeys []string `yaml:"masked_keys"`
}

// CRMConfig holds everything under the "crm" top-level key.
type CRMConfig struct {
	Import     ImportConfig     `yaml:"import"`
	HubSpot    HubSpotConfig    `yaml:"hubspot"`
	Simulation SimulationConfig `yaml:"simulation"`
	System     SystemConfig     `yaml:"system"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Journal    JournalConfig    `yaml:"journal"`
	Export     ExportConfig     `yaml:"export"`
	Input      InputConfig      `yaml:"input"`
	Security   SecurityConfig   `yaml:"security"`
	// Databases holds raw database connection sections, decoded by the adapters.
	Databases map[string]interface{} `yaml:"database"`
	// Storages holds raw storage connection sections, decoded by the adapters.
	Storages map[string]interface{} `yaml:"storage"`
}

// Config is the root configuration value. It is threaded explicitly through constructors.
type Config struct {
	CRM CRMConfig `yaml:"crm"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		CRM: CRMConfig{
			Import: ImportConfig{
				BatchSize:           100,
				DelayBetweenBatches: 100,
				Retry: RetryConfig{
					MaxAttempts:       3,
					InitialInterval:   2000,
					MaxInterval:       30000,
					Factor:            2.0,
					RateLimitInterval: 10000,
					RetryableExceptions: []string{
						"RateLimited",
						"TransientRemoteError",
						"io.ErrUnexpectedEOF",
					},
				},
				Validation: ValidationConfig{
					Policy:      PolicySkip,
					SkipLimit:   UnlimitedSkips,
					PhoneRegion: "US",
				},
				TicketTextFields: []string{"subject", "content"},
			},
			HubSpot: HubSpotConfig{
				BaseURL:           "https://api.hubapi.com",
				TimeoutSeconds:    30,
				RequestsPerSecond: 10,
				PropertyMappings:  DefaultPropertyMappings(),
				AssociationTypes: map[string]int{
					"contact_to_company": 1,
					"ticket_to_contact":  16,
					"ticket_to_company":  26,
				},
			},
			Simulation: SimulationConfig{SuccessRate: 0.95},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "console"},
			},
			Metrics: MetricsConfig{Backend: "none"},
			Telemetry: TelemetryConfig{
				Protocol:      "grpc",
				ServiceName:   "crmimport",
				SamplingRatio: 1.0,
			},
			Journal: JournalConfig{DatabaseRef: "journal", Migrate: true},
			Export:  ExportConfig{StorageRef: "export", Prefix: "crmimport", Compression: "SNAPPY"},
			Security: SecurityConfig{
				MaskedKeys: []string{"api_key", "password", "credentials_file"},
			},
			Databases: map[string]interface{}{},
			Storages:  map[string]interface{}{},
		},
	}
}

// DefaultPropertyMappings returns the column whitelist for each entity type.
func DefaultPropertyMappings() map[string]map[string]string {
	identity := func(cols ...string) map[string]string {
		m := make(map[string]string, len(cols))
		for _, c := range cols {
			m[c] = c
		}
		return m
	}
	return map[string]map[string]string{
		"companies": identity("name", "domain", "industry", "city", "state", "country", "phone",
			"numberofemployees", "annualrevenue", "lifecyclestage", "hs_lead_status"),
		"contacts": identity("firstname", "lastname", "email", "phone", "company", "jobtitle",
			"lifecyclestage", "hs_lead_status"),
		"tickets": identity("subject", "content", "hs_ticket_priority", "hs_pipeline_stage",
			"hs_ticket_category", "source_type", "createdate", "closed_date"),
	}
}

// DelayBetweenBatchesDuration returns the inter-chunk delay as a duration.
func (c ImportConfig) DelayBetweenBatchesDuration() time.Duration {
	return time.Duration(c.DelayBetweenBatches) * time.Millisecond
}

// Timeout returns the HTTP client timeout.
func (c HubSpotConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DemoMode reports whether the simulated store should be used instead of the CRM.
func (c *Config) DemoMode() bool {
	key := c.CRM.HubSpot.APIKey
	return c.CRM.Simulation.Enabled || key == "" || key == PlaceholderAPIKey
}
