// Package config holds the storage settings decoded from crm.storage.<name>.
package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Default bucket when a call passes none.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for GCS.
	ProjectID       string `yaml:"project_id"`
	BaseDir         string `yaml:"base_dir"` // Root directory for local storage.
}
