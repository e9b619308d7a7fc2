package application

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type peerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter is a token bucket per peer.
type rateLimiter struct {
	limit rate.Limit
	burst int

	lock  sync.Mutex
	peers map[string]*peerLimiter
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limit: limit,
		burst: burst,
		peers: make(map[string]*peerLimiter),
	}
}

func (r *rateLimiter) allow(peer string, now time.Time) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	p, ok := r.peers[peer]
	if !ok {
		p = &peerLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.peers[peer] = p
	}
	p.lastSeen = now
	return p.limiter.AllowN(now, 1)
}

// prune drops the buckets of peers idle for longer than idle.
func (r *rateLimiter) prune(now time.Time, idle time.Duration) int {
	r.lock.Lock()
	defer r.lock.Unlock()

	count := 0
	for peer, p := range r.peers {
		if now.Sub(p.lastSeen) > idle {
			delete(r.peers, peer)
			count++
		}
	}
	return count
}
