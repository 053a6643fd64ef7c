package web

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiters hands out one token bucket per host so concurrent jobs
// hitting the same site stay polite.
type hostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newHostLimiters(rps float64, burst int) *hostLimiters {
	return &hostLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// wait blocks until the host's bucket allows a request or ctx is done.
func (h *hostLimiters) wait(ctx context.Context, host string) error {
	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(h.rps), h.burst)
		h.limiters[host] = lim
	}
	h.mu.Unlock()

	return lim.Wait(ctx)
}
