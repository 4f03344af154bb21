package contingency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-nfe/pkg/response"
	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

type countingProber struct {
	mu    sync.Mutex
	calls int
	resp  *soap.AuthorityResponse
	err   error
}

func (p *countingProber) CheckStatus(context.Context, string) (*soap.AuthorityResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.resp, p.err
}

func TestAvailabilityCachesWithinTTL(t *testing.T) {
	prober := &countingProber{resp: &soap.AuthorityResponse{Code: 107}}
	cache := NewAvailabilityCache(prober, response.NewInterpreter(), time.Minute)

	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		require.True(t, cache.Available(context.Background(), "33"))
	}
	assert.Equal(t, 1, prober.calls, "repeated checks inside the TTL reuse the probe")

	now = now.Add(2 * time.Minute)
	require.True(t, cache.Available(context.Background(), "33"))
	assert.Equal(t, 2, prober.calls, "an expired entry probes again")
}

func TestAvailabilityPerState(t *testing.T) {
	prober := &countingProber{resp: &soap.AuthorityResponse{Code: 107}}
	cache := NewAvailabilityCache(prober, response.NewInterpreter(), time.Minute)

	cache.Available(context.Background(), "33")
	cache.Available(context.Background(), "35")
	assert.Equal(t, 2, prober.calls, "states are cached independently")
}

func TestAvailabilityProbeFailureMeansDown(t *testing.T) {
	prober := &countingProber{err: &soap.UnavailableError{Endpoint: "x", Err: context.DeadlineExceeded}}
	cache := NewAvailabilityCache(prober, response.NewInterpreter(), time.Minute)

	assert.False(t, cache.Available(context.Background(), "33"))
}

func TestAvailabilityPausedServiceMeansDown(t *testing.T) {
	prober := &countingProber{resp: &soap.AuthorityResponse{Code: 108}}
	cache := NewAvailabilityCache(prober, response.NewInterpreter(), time.Minute)

	assert.False(t, cache.Available(context.Background(), "33"))
}

func TestAvailabilityInvalidate(t *testing.T) {
	prober := &countingProber{resp: &soap.AuthorityResponse{Code: 107}}
	cache := NewAvailabilityCache(prober, response.NewInterpreter(), time.Minute)

	cache.Available(context.Background(), "33")
	cache.Invalidate("33")
	cache.Available(context.Background(), "33")
	assert.Equal(t, 2, prober.calls)
}
