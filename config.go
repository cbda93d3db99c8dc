package ident

import (
	"fmt"

	"github.com/xraph/ident/principal"
)

// UpdatePolicy selects how UpdatePartitions treats a connector the principal
// holds no partition for.
type UpdatePolicy string

const (
	// UpdateStrict fails the whole batch with ErrNotFound.
	UpdateStrict UpdatePolicy = "strict"

	// UpdateUpsert inserts the missing partition, stamped with the
	// principal's existing domain and Config.UpsertStoreKind.
	UpdateUpsert UpdatePolicy = "upsert"
)

// ParseUpdatePolicy parses "strict" or "upsert". The empty string is strict.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch UpdatePolicy(s) {
	case "", UpdateStrict:
		return UpdateStrict, nil
	case UpdateUpsert:
		return UpdateUpsert, nil
	default:
		return "", fmt.Errorf("ident: unknown update policy %q", s)
	}
}

// Config holds configuration for the ident engine.
type Config struct {
	// UpdatePolicy is the missing-row policy of UpdatePartitions.
	// Defaults to UpdateStrict.
	UpdatePolicy UpdatePolicy `json:"update_policy,omitempty"`

	// UpsertStoreKind is the store kind of partitions inserted under
	// UpdateUpsert. Defaults to CREDENTIAL.
	UpsertStoreKind principal.StoreKind `json:"upsert_store_kind,omitempty"`

	// BulkConcurrency bounds the principals CreateMany writes in parallel.
	// Defaults to 8.
	BulkConcurrency int `json:"bulk_concurrency,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UpdatePolicy:    UpdateStrict,
		UpsertStoreKind: principal.StoreCredential,
		BulkConcurrency: 8,
	}
}

// validate fills zero values with defaults and rejects unknown settings.
func (c *Config) validate() error {
	policy, err := ParseUpdatePolicy(string(c.UpdatePolicy))
	if err != nil {
		return err
	}
	c.UpdatePolicy = policy

	if c.UpsertStoreKind == "" {
		c.UpsertStoreKind = principal.StoreCredential
	}
	if !c.UpsertStoreKind.Valid() {
		return fmt.Errorf("ident: unknown upsert store kind %q", c.UpsertStoreKind)
	}

	if c.BulkConcurrency <= 0 {
		c.BulkConcurrency = DefaultConfig().BulkConcurrency
	}
	return nil
}

func (c Config) updateMode() principal.UpdateMode {
	if c.UpdatePolicy == UpdateUpsert {
		return principal.UpdateUpsert
	}
	return principal.UpdateStrict
}
