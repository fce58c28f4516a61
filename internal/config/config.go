// Package config loads the pipeline configuration: a YAML file describing
// groups (search keywords, password candidates, destination folders) plus
// environment variables for credentials and collaborator targets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/okozlov/mailvault/internal/domain"
)

// GroupConfig declares one logical bucket of attachments.
type GroupConfig struct {
	Key       string   `yaml:"key"`
	Keywords  []string `yaml:"keywords"`
	Passwords []string `yaml:"passwords,omitempty"`
	Folder    string   `yaml:"folder,omitempty"`
}

// Config is the full runtime configuration.
type Config struct {
	// DestinationRoot is the fixed root folder in the storage collaborator.
	DestinationRoot string `yaml:"destination_root"`

	// SpreadsheetID targets the report spreadsheet. Overridable via
	// MAILVAULT_SPREADSHEET_ID.
	SpreadsheetID string `yaml:"spreadsheet_id,omitempty"`

	// Storage selects the storage backend: "drive" (default) or "gcs".
	Storage string `yaml:"storage,omitempty"`

	// Bucket is the GCS bucket when Storage is "gcs". Overridable via
	// MAILVAULT_BUCKET.
	Bucket string `yaml:"bucket,omitempty"`

	// StateDir holds the ledger and session files. Overridable via
	// MAILVAULT_STATE_DIR.
	StateDir string `yaml:"state_dir,omitempty"`

	Workers        int           `yaml:"workers,omitempty"`
	MaxRetries     int           `yaml:"max_retries,omitempty"`
	CallTimeout    time.Duration `yaml:"call_timeout,omitempty"`
	MaxMailResults int64         `yaml:"max_mail_results,omitempty"`

	Ledger LedgerConfig `yaml:"ledger,omitempty"`

	Groups []GroupConfig `yaml:"groups"`
}

// LedgerConfig selects where processed fingerprints are recorded. The default
// file backend suits a single machine; bigquery lets several machines share
// one ledger.
type LedgerConfig struct {
	Backend string `yaml:"backend,omitempty"` // "file" (default) or "bigquery"
	Project string `yaml:"project,omitempty"`
	Dataset string `yaml:"dataset,omitempty"`
	Table   string `yaml:"table,omitempty"`
}

// Load reads the YAML config at path, applying .env (best effort), env var
// overrides and defaults.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parsing %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MAILVAULT_SPREADSHEET_ID"); v != "" {
		c.SpreadsheetID = v
	}
	if v := os.Getenv("MAILVAULT_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("MAILVAULT_BUCKET"); v != "" {
		c.Bucket = v
	}
}

func (c *Config) applyDefaults() {
	if c.DestinationRoot == "" {
		c.DestinationRoot = "Bank Statements"
	}
	if c.Storage == "" {
		c.Storage = "drive"
	}
	if c.StateDir == "" {
		c.StateDir = ".mailvault"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Minute
	}
	if c.MaxMailResults <= 0 {
		c.MaxMailResults = 100
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "file"
	}
	if c.Ledger.Table == "" {
		c.Ledger.Table = "processed_attachments"
	}
}

func (c *Config) validate() error {
	if len(c.Groups) == 0 {
		return fmt.Errorf("at least one group is required")
	}
	seen := make(map[string]bool, len(c.Groups))
	for i, g := range c.Groups {
		if g.Key == "" {
			return fmt.Errorf("group %d: key is required", i)
		}
		if g.Key == domain.ContentMatchGroup {
			return fmt.Errorf("group %d: %q is a reserved group key", i, g.Key)
		}
		if seen[g.Key] {
			return fmt.Errorf("group %d: duplicate key %q", i, g.Key)
		}
		seen[g.Key] = true
		if len(g.Keywords) == 0 {
			return fmt.Errorf("group %q: at least one keyword is required", g.Key)
		}
	}
	if c.Storage != "drive" && c.Storage != "gcs" {
		return fmt.Errorf("storage must be \"drive\" or \"gcs\", got %q", c.Storage)
	}
	if c.Storage == "gcs" && c.Bucket == "" {
		return fmt.Errorf("bucket is required when storage is \"gcs\"")
	}
	switch c.Ledger.Backend {
	case "file":
	case "bigquery":
		if c.Ledger.Project == "" || c.Ledger.Dataset == "" {
			return fmt.Errorf("ledger project and dataset are required when backend is \"bigquery\"")
		}
	default:
		return fmt.Errorf("ledger backend must be \"file\" or \"bigquery\", got %q", c.Ledger.Backend)
	}
	return nil
}

// DomainGroups converts the configured groups to domain values.
func (c *Config) DomainGroups() []domain.Group {
	out := make([]domain.Group, 0, len(c.Groups))
	for _, g := range c.Groups {
		out = append(out, domain.Group{Key: g.Key, Keywords: g.Keywords, Folder: g.Folder})
	}
	return out
}

// PasswordSets builds the per-group candidate password pools, including the
// reserved content-match group.
func (c *Config) PasswordSets() map[string]*domain.PasswordSet {
	sets := make(map[string]*domain.PasswordSet, len(c.Groups)+1)
	for _, g := range c.Groups {
		sets[g.Key] = domain.NewPasswordSet(g.Passwords...)
	}
	sets[domain.ContentMatchGroup] = domain.NewPasswordSet()
	return sets
}
