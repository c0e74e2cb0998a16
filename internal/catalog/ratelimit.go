// File: internal/catalog/ratelimit.go
package catalog

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/luminark/rudder/api/schemas"
)

// RateLimitedRegistry wraps a connector registry so that execution calls stay
// under a configured rate. Waiting honors the caller's context deadline, so a
// throttled call can still time out as a normal step timeout.
type RateLimitedRegistry struct {
	inner   schemas.ConnectorRegistry
	limiter *rate.Limiter
}

var _ schemas.ConnectorRegistry = (*RateLimitedRegistry)(nil)

// NewRateLimitedRegistry wraps inner with a token bucket of callsPerSecond
// and burst. A non-positive rate disables limiting and returns inner as-is.
func NewRateLimitedRegistry(inner schemas.ConnectorRegistry, callsPerSecond float64, burst int) schemas.ConnectorRegistry {
	if callsPerSecond <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedRegistry{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

func (r *RateLimitedRegistry) ListCapabilities(ctx context.Context, category schemas.IntentCategory) ([]schemas.Capability, error) {
	return r.inner.ListCapabilities(ctx, category)
}

func (r *RateLimitedRegistry) Execute(ctx context.Context, capabilityID string, params map[string]string) (schemas.CallResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return schemas.CallResult{}, fmt.Errorf("rate limit wait for %s: %w", capabilityID, err)
	}
	return r.inner.Execute(ctx, capabilityID, params)
}
