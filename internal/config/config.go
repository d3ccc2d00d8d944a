// Package config provides configuration loading and management for the
// view-sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for the server's environment variables.
const EnvPrefix = "VIEWSYNC"

const (
	// DefaultStalenessWindow bounds how long a SYNCING status is trusted
	// before it is treated as abandoned by a crashed process.
	DefaultStalenessWindow = 30 * time.Minute

	// DefaultLoadBatchSize is the number of rows transferred per INSERT
	// during a reload.
	DefaultLoadBatchSize = 500
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Bindings are the upstream source database registrations
	Bindings []BindingConfig `yaml:"bindings"`

	// Views is the allow-list of syncable views. Every sync operation is
	// gated on membership; requests for non-listed views fail closed.
	Views []ViewConfig `yaml:"views"`

	// Warehouse is the destination warehouse configuration
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// MetadataDB is the Postgres database holding sync metadata
	MetadataDB *DatabaseConfig `yaml:"metadataDb"`

	// SyncPolicy controls the optional background sync schedule
	SyncPolicy *SyncPolicyConfig `yaml:"syncPolicy,omitempty"`

	// StalenessWindow overrides DefaultStalenessWindow (Go duration string)
	StalenessWindow string `yaml:"stalenessWindow,omitempty"`

	// LoadBatchSize overrides DefaultLoadBatchSize
	LoadBatchSize int `yaml:"loadBatchSize,omitempty"`
}

// BindingConfig identifies one upstream source database.
type BindingConfig struct {
	Name     string          `yaml:"name"`
	Database *DatabaseConfig `yaml:"database"`
}

// ViewConfig is one allow-listed (binding, schema, view) tuple and its
// destination table name.
type ViewConfig struct {
	Binding   string `yaml:"binding"`
	Schema    string `yaml:"schema"`
	View      string `yaml:"view"`
	DestTable string `yaml:"destTable"`
}

// WarehouseConfig selects and configures the destination warehouse.
type WarehouseConfig struct {
	// Driver is "duckdb" or "postgres"
	Driver string `yaml:"driver"`

	// Path is the DuckDB database file (driver: duckdb)
	Path string `yaml:"path,omitempty"`

	// Database is the warehouse connection (driver: postgres)
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// SyncPolicyConfig controls the background sync schedule.
type SyncPolicyConfig struct {
	// Interval is a Go duration string (e.g. "30m"). Empty disables the
	// background loop; syncs then run only when triggered.
	Interval string `yaml:"interval,omitempty"`
}

// DatabaseConfig defines a Postgres connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslMode,omitempty"`

	// Password resolution, in priority order: file, env var, inline value
	PasswordFile string `yaml:"passwordFile,omitempty"`
	PasswordEnv  string `yaml:"passwordEnv,omitempty"`
	Password     string `yaml:"password,omitempty"`

	MaxConns int `yaml:"maxConns,omitempty"`
}

// GetPassword resolves the database password using the configured priority
// order (file -> env -> inline).
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(d.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if d.PasswordEnv != "" {
		if val, ok := os.LookupEnv(d.PasswordEnv); ok {
			return val, nil
		}
		return "", fmt.Errorf("password environment variable %s is not set", d.PasswordEnv)
	}
	return d.Password, nil
}

// ConnectionString builds a URL-form connection string for pgx and the
// migration tooling. The scheme is caller-provided ("postgres" or "pgx5").
func (d *DatabaseConfig) ConnectionString(scheme string) (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String(), nil
}

// validate checks a database block for required fields.
func (d *DatabaseConfig) validate(section string) error {
	if d == nil {
		return fmt.Errorf("%s: database configuration is required", section)
	}
	if d.Host == "" {
		return fmt.Errorf("%s: host is required", section)
	}
	if d.Port == 0 {
		return fmt.Errorf("%s: port is required", section)
	}
	if d.User == "" {
		return fmt.Errorf("%s: user is required", section)
	}
	if d.Database == "" {
		return fmt.Errorf("%s: database name is required", section)
	}
	return nil
}

// LoadConfig loads configuration using the given options.
func LoadConfig(opts ...Option) (*Config, error) {
	loader := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loader); err != nil {
			return nil, err
		}
	}
	if loader.path == "" {
		return nil, fmt.Errorf("no configuration source provided")
	}

	data, err := os.ReadFile(loader.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Bindings) == 0 {
		return fmt.Errorf("at least one source binding is required")
	}

	bindingNames := make(map[string]struct{}, len(c.Bindings))
	for i, b := range c.Bindings {
		if b.Name == "" {
			return fmt.Errorf("binding %d: name is required", i)
		}
		if _, dup := bindingNames[b.Name]; dup {
			return fmt.Errorf("duplicate binding name %q", b.Name)
		}
		bindingNames[b.Name] = struct{}{}
		if err := b.Database.validate(fmt.Sprintf("binding %q", b.Name)); err != nil {
			return err
		}
	}

	destTables := make(map[string]string, len(c.Views))
	for i, v := range c.Views {
		if v.Binding == "" || v.Schema == "" || v.View == "" {
			return fmt.Errorf("view %d: binding, schema and view are required", i)
		}
		if _, ok := bindingNames[v.Binding]; !ok {
			return fmt.Errorf("view %s.%s references unknown binding %q", v.Schema, v.View, v.Binding)
		}
		if v.DestTable == "" {
			return fmt.Errorf("view %s.%s: destTable is required", v.Schema, v.View)
		}
		if prev, dup := destTables[v.DestTable]; dup {
			return fmt.Errorf("views %s and %s.%s share destination table %q", prev, v.Schema, v.View, v.DestTable)
		}
		destTables[v.DestTable] = v.Schema + "." + v.View
	}

	switch c.Warehouse.Driver {
	case "duckdb":
		if c.Warehouse.Path == "" {
			return fmt.Errorf("warehouse: path is required for the duckdb driver")
		}
	case "postgres":
		if err := c.Warehouse.Database.validate("warehouse"); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("warehouse: driver is required")
	default:
		return fmt.Errorf("warehouse: unsupported driver %q", c.Warehouse.Driver)
	}

	if err := c.MetadataDB.validate("metadataDb"); err != nil {
		return err
	}

	if c.SyncPolicy != nil && c.SyncPolicy.Interval != "" {
		if _, err := time.ParseDuration(c.SyncPolicy.Interval); err != nil {
			return fmt.Errorf("syncPolicy: invalid interval: %w", err)
		}
	}
	if c.StalenessWindow != "" {
		if _, err := time.ParseDuration(c.StalenessWindow); err != nil {
			return fmt.Errorf("invalid stalenessWindow: %w", err)
		}
	}
	if c.LoadBatchSize < 0 {
		return fmt.Errorf("loadBatchSize must be positive")
	}

	return nil
}

// FindView returns the allow-listed view config for the tuple, or false when
// the view is not listed.
func (c *Config) FindView(binding, schema, view string) (*ViewConfig, bool) {
	for i := range c.Views {
		v := &c.Views[i]
		if v.Binding == binding && v.Schema == schema && v.View == view {
			return v, true
		}
	}
	return nil, false
}

// ViewsForBinding returns the allow-listed views of one binding, in list
// order.
func (c *Config) ViewsForBinding(binding string) []ViewConfig {
	var out []ViewConfig
	for _, v := range c.Views {
		if v.Binding == binding {
			out = append(out, v)
		}
	}
	return out
}

// FindBinding returns the binding config by name.
func (c *Config) FindBinding(name string) (*BindingConfig, bool) {
	for i := range c.Bindings {
		if c.Bindings[i].Name == name {
			return &c.Bindings[i], true
		}
	}
	return nil, false
}

// Staleness returns the configured staleness window.
func (c *Config) Staleness() time.Duration {
	if c.StalenessWindow == "" {
		return DefaultStalenessWindow
	}
	d, err := time.ParseDuration(c.StalenessWindow)
	if err != nil {
		return DefaultStalenessWindow
	}
	return d
}

// BatchSize returns the configured load batch size.
func (c *Config) BatchSize() int {
	if c.LoadBatchSize <= 0 {
		return DefaultLoadBatchSize
	}
	return c.LoadBatchSize
}

// SyncInterval returns the background sync interval, or zero when the
// background loop is disabled.
func (c *Config) SyncInterval() time.Duration {
	if c.SyncPolicy == nil || c.SyncPolicy.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.SyncPolicy.Interval)
	if err != nil {
		return 0
	}
	return d
}
