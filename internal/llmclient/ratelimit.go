package llmclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

// RateLimitedClient throttles calls to an underlying client.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps next with a token bucket of the given rate and burst.
// A burst below one is raised to one.
func NewRateLimitedClient(next schemas.LLMClient, rps float64, burst int) *RateLimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Generate waits for a token, then delegates. A cancelled context while
// waiting is reported as a failure without calling the provider.
func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return c.next.Generate(ctx, req)
}

func (c *RateLimitedClient) Close() error {
	return c.next.Close()
}
