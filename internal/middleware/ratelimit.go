package middleware

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/mmynk/kriskindle/internal/metrics"
)

// ErrRateLimited is returned to callers that exceed their request budget.
var ErrRateLimited = errors.New("too many requests, slow down")

// RateLimiter keeps one token bucket per peer host.
// Buckets idle for longer than idleTTL are dropped on the next sweep.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	peers     map[string]*peerBucket
	lastSweep time.Time
}

type peerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per peer with the given
// burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int, m *metrics.Metrics) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limit:   limit,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		metrics: m,
		now:     time.Now,
		peers:   make(map[string]*peerBucket),
	}
}

// Allow reports whether peer may make one more request now.
func (l *RateLimiter) Allow(peer string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for key, b := range l.peers {
			if now.Sub(b.lastSeen) > l.idleTTL {
				delete(l.peers, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.peers[peer]
	if !ok {
		b = &peerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.peers[peer] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Interceptor rejects calls over budget with CodeResourceExhausted.
func (l *RateLimiter) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !l.Allow(peerHost(req.Peer().Addr)) {
				l.metrics.IncRateLimited()
				return nil, connect.NewError(connect.CodeResourceExhausted, ErrRateLimited)
			}
			return next(ctx, req)
		}
	}
}

func peerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
