package extension

import "github.com/xraph/ident"

// Config holds the ident extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.ident" or "ident" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for ident routes (default: none, routes
	// live under "/v1").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// UpdatePolicy is "strict" or "upsert" (default: "strict").
	UpdatePolicy string `json:"update_policy" mapstructure:"update_policy" yaml:"update_policy"`

	// BulkConcurrency bounds parallel writes of a bulk create (default: 8).
	BulkConcurrency int `json:"bulk_concurrency" mapstructure:"bulk_concurrency" yaml:"bulk_concurrency"`

	// DefaultDomain is assigned to principals created without a domain
	// outside any forge org scope.
	DefaultDomain string `json:"default_domain" mapstructure:"default_domain" yaml:"default_domain"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UpdatePolicy:    string(ident.UpdateStrict),
		BulkConcurrency: ident.DefaultConfig().BulkConcurrency,
	}
}

// engineConfig converts the extension settings into the engine's Config.
func (c Config) engineConfig() (ident.Config, error) {
	policy, err := ident.ParseUpdatePolicy(c.UpdatePolicy)
	if err != nil {
		return ident.Config{}, err
	}
	cfg := ident.DefaultConfig()
	cfg.UpdatePolicy = policy
	if c.BulkConcurrency > 0 {
		cfg.BulkConcurrency = c.BulkConcurrency
	}
	return cfg, nil
}
