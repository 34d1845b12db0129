package settle

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/borglife/wealthd/internal/keystore"
	"github.com/borglife/wealthd/internal/metrics"
)

// Breaker wraps an Adapter with a circuit breaker so a flapping settlement
// network fails fast instead of tying up transfer workers. Submission
// latency is observed here since every adapter call funnels through.
type Breaker struct {
	inner Adapter
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps inner. The breaker opens after 5 consecutive failures
// and probes again after 30 seconds.
func NewBreaker(inner Adapter) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "settlement-network",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Breaker{inner: inner, cb: cb}
}

func (b *Breaker) ExternalBalance(ctx context.Context, address string) (int64, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.ExternalBalance(ctx, address)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *Breaker) EstimateFee(ctx context.Context, from, to string, amount int64) (int64, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.EstimateFee(ctx, from, to, amount)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *Breaker) SubmitTransfer(ctx context.Context, from keystore.Credential, to string, amount int64) (SubmitResult, error) {
	start := time.Now()
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.SubmitTransfer(ctx, from, to, amount)
	})
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return SubmitResult{}, err
	}
	return v.(SubmitResult), nil
}

func (b *Breaker) HealthCheck(ctx context.Context) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.HealthCheck(ctx)
	})
	return err
}
