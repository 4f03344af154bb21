package contingency

import (
	"context"
	"sync"
	"time"

	"github.com/sirosfoundation/go-nfe/pkg/response"
	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

// Prober answers authority status probes. *soap.Client satisfies it.
type Prober interface {
	CheckStatus(ctx context.Context, stateCode string) (*soap.AuthorityResponse, error)
}

// AvailabilityCache memoizes per-state heartbeat probes so a
// reconciliation pass over many records for the same state costs one
// probe, not one per record.
type AvailabilityCache struct {
	prober  Prober
	interp  *response.Interpreter
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]availabilityEntry
}

type availabilityEntry struct {
	available bool
	checkedAt time.Time
}

// NewAvailabilityCache builds a cache over the prober with the given
// result lifetime.
func NewAvailabilityCache(prober Prober, interp *response.Interpreter, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AvailabilityCache{
		prober:  prober,
		interp:  interp,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]availabilityEntry),
	}
}

// Available reports whether the state authority answered its last
// heartbeat within the cache lifetime. Probe transport failures
// count as unavailable.
func (a *AvailabilityCache) Available(ctx context.Context, stateCode string) bool {
	a.mu.Lock()
	entry, ok := a.entries[stateCode]
	if ok && a.now().Sub(entry.checkedAt) < a.ttl {
		a.mu.Unlock()
		return entry.available
	}
	a.mu.Unlock()

	available := false
	if resp, err := a.prober.CheckStatus(ctx, stateCode); err == nil && resp != nil {
		available = a.interp.Classify(resp.Code) == response.Accepted
	}

	a.mu.Lock()
	a.entries[stateCode] = availabilityEntry{available: available, checkedAt: a.now()}
	a.mu.Unlock()
	return available
}

// Invalidate drops the cached result for a state, forcing the next
// Available call to probe.
func (a *AvailabilityCache) Invalidate(stateCode string) {
	a.mu.Lock()
	delete(a.entries, stateCode)
	a.mu.Unlock()
}
