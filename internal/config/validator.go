package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Validate checks the config for missing fields, unparseable rates, and
// uncompilable security patterns. It is run on startup and before every
// hot reload; an invalid config never replaces a valid one.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Version == "" {
		errs = append(errs, "version is required")
	}
	if cfg.Billing.Scale < 0 || cfg.Billing.Scale > 18 {
		errs = append(errs, fmt.Sprintf("billing.scale %d out of range [0, 18]", cfg.Billing.Scale))
	}
	if _, err := cfg.DefaultRate(); err != nil {
		errs = append(errs, err.Error())
	}

	for name, o := range cfg.Organs {
		if name == "" {
			errs = append(errs, "organs: empty organ name")
			continue
		}
		if o.BaseRate == "" {
			errs = append(errs, fmt.Sprintf("organ %s: base_rate is required", name))
		}
		if o.RateLimit <= 0 {
			errs = append(errs, fmt.Sprintf("organ %s: rate_limit must be positive", name))
		}
		if o.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("organ %s: endpoint is required", name))
		}
	}
	if _, err := cfg.BaseRates(); err != nil {
		errs = append(errs, err.Error())
	}

	for i, p := range cfg.Security.BlockedPatterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			errs = append(errs, fmt.Sprintf("security.blocked_patterns[%d] %q: %v", i, p, err))
		}
	}

	for identifier, address := range cfg.Keystore {
		if identifier == "" {
			errs = append(errs, "keystore: empty identifier")
		}
		if address == "" {
			errs = append(errs, fmt.Sprintf("keystore %s: address is required", identifier))
		}
	}

	if cfg.Settlement.Endpoint == "" {
		errs = append(errs, "settlement.endpoint is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
