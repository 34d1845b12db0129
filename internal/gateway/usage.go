package gateway

import (
	"time"

	"github.com/borglife/wealthd/internal/audit"
)

// OrganUsage aggregates one organ's billed calls for an account.
type OrganUsage struct {
	Calls     int64 `json:"calls"`
	TotalCost int64 `json:"total_cost"` // minor units
}

// UsageSummary is the per-account billing rollup over a time range.
type UsageSummary struct {
	Account   string                `json:"account"`
	Since     time.Time             `json:"since"`
	Calls     int64                 `json:"calls"`
	TotalCost int64                 `json:"total_cost"`
	ByOrgan   map[string]OrganUsage `json:"by_organ"`
}

// Usage summarizes an account's billed organ calls since the given time,
// derived from the billing audit trail.
func (g *Gateway) Usage(account string, since time.Time) UsageSummary {
	summary := UsageSummary{
		Account: account,
		Since:   since,
		ByOrgan: make(map[string]OrganUsage),
	}
	for ev := range g.audit.Events(audit.Filter{Category: audit.CategoryBilling, Since: since}) {
		if ev.Message != "organ call billed" {
			continue
		}
		if acct, _ := ev.Payload["account"].(string); acct != account {
			continue
		}
		organ, _ := ev.Payload["organ"].(string)
		costMinor, _ := ev.Payload["cost"].(int64)

		u := summary.ByOrgan[organ]
		u.Calls++
		u.TotalCost += costMinor
		summary.ByOrgan[organ] = u
		summary.Calls++
		summary.TotalCost += costMinor
	}
	return summary
}
