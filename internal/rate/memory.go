package rate

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	xrate "golang.org/x/time/rate"
)

// MemoryLimiter es un token bucket por clave, local al proceso.
// Con Max requests por Window, el bucket arranca lleno y se recarga de a poco.
type MemoryLimiter struct {
	Max    int
	Window time.Duration

	mu      sync.Mutex
	buckets *gocache.Cache
	now     func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		Max:     max,
		Window:  window,
		buckets: gocache.New(2*window, window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) bucket(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		b := v.(*xrate.Limiter)
		l.buckets.SetDefault(key, b)
		return b
	}
	every := xrate.Every(l.Window / time.Duration(l.Max))
	b := xrate.NewLimiter(every, l.Max)
	l.buckets.SetDefault(key, b)
	return b
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	b := l.bucket(key)
	now := l.now()
	r := b.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay, CurrentHits: int64(l.Max)}, nil
	}
	remaining := int64(b.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, CurrentHits: int64(l.Max) - remaining}, nil
}

// Len cuenta las claves con bucket vivo.
func (l *MemoryLimiter) Len() int { return l.buckets.ItemCount() }
