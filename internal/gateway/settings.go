package gateway

import (
	"time"

	"github.com/borglife/wealthd/internal/config"
	"github.com/borglife/wealthd/internal/cost"
)

// BuildSettings turns a validated config into pipeline settings: the cost
// model and an organ registry with one HTTP invoker per endpoint. Used at
// startup and on every hot reload.
func BuildSettings(cfg *config.Config) (*Settings, error) {
	rates, err := cfg.BaseRates()
	if err != nil {
		return nil, err
	}
	defaultRate, err := cfg.DefaultRate()
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	for name, o := range cfg.Organs {
		reg.Register(Organ{
			Name:      name,
			RateLimit: o.RateLimit,
			Invoker:   NewHTTPInvoker(o.Endpoint, time.Duration(cfg.Engine.CallTimeoutMs)*time.Millisecond),
		})
	}

	return &Settings{
		Model:    cost.NewModel(rates, defaultRate),
		Registry: reg,
		Currency: cfg.Billing.Currency,
		Scale:    cfg.Billing.Scale,
	}, nil
}
