package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config is the top-level YAML structure. Account provisioning and organ
// registry population happen outside the core; this file is the validated
// handoff.
type Config struct {
	Version    string            `yaml:"version"`
	Engine     EngineConf        `yaml:"engine"`
	Billing    BillingConf       `yaml:"billing"`
	Organs     map[string]Organ  `yaml:"organs"`
	Security   SecurityConf      `yaml:"security"`
	Settlement SettlementConf    `yaml:"settlement"`
	Store      StoreConf         `yaml:"store"`
	Audit      AuditConf         `yaml:"audit"`
	Transfer   TransferConf      `yaml:"transfer"`
	Aliases    map[string]string `yaml:"aliases"`  // identifier → address, seeds the in-memory store
	Keystore   map[string]string `yaml:"keystore"` // identifier → derived address, seeds sender credentials
}

// EngineConf holds tunable concurrency settings for the call gateway.
type EngineConf struct {
	CallWorkers   int `yaml:"call_workers"`
	QueueDepth    int `yaml:"queue_depth"`
	CallTimeoutMs int `yaml:"call_timeout_ms"`
}

// BillingConf sets the billing currency and cost defaults.
type BillingConf struct {
	Currency        string `yaml:"currency"`          // e.g. "WND"
	Scale           int32  `yaml:"scale"`             // minor-unit decimal scale, e.g. 12
	DefaultBaseRate string `yaml:"default_base_rate"` // major units, for unknown organs
}

// Organ configures one capability endpoint.
type Organ struct {
	BaseRate  string `yaml:"base_rate"`  // major units per call
	RateLimit int    `yaml:"rate_limit"` // calls per hour
	Endpoint  string `yaml:"endpoint"`
}

// SecurityConf carries the ordered blocked-pattern list.
type SecurityConf struct {
	BlockedPatterns []string `yaml:"blocked_patterns"`
}

// SettlementConf points at the settlement-network gateway.
type SettlementConf struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// StoreConf selects the persistent store. An empty DSN runs in-memory.
type StoreConf struct {
	DSN string `yaml:"dsn"`
}

// AuditConf selects the durable audit sink. An empty path keeps the trail
// in memory only.
type AuditConf struct {
	Path string `yaml:"path"`
}

// TransferConf bounds the settlement confirmation wait.
type TransferConf struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// BaseRates parses every organ's base rate into exact decimals.
func (c *Config) BaseRates() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.Organs))
	for name, o := range c.Organs {
		r, err := decimal.NewFromString(o.BaseRate)
		if err != nil {
			return nil, fmt.Errorf("organ %s: base_rate %q: %w", name, o.BaseRate, err)
		}
		out[name] = r
	}
	return out, nil
}

// DefaultRate parses the fallback base rate.
func (c *Config) DefaultRate() (decimal.Decimal, error) {
	r, err := decimal.NewFromString(c.Billing.DefaultBaseRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("default_base_rate %q: %w", c.Billing.DefaultBaseRate, err)
	}
	return r, nil
}
