package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Profile names a fixed-window limit. Two are wired: a tight one for the
// credential endpoints and a loose one for everything else.
type Profile struct {
	Name        string
	MaxRequests int64
	Window      time.Duration
}

var (
	// AuthProfile guards login, register and refresh: 5 requests per minute
	// per client.
	AuthProfile = Profile{Name: "auth", MaxRequests: 5, Window: time.Minute}
	// GeneralProfile is the loose default: 100 requests per minute per client.
	GeneralProfile = Profile{Name: "general", MaxRequests: 100, Window: time.Minute}
)

const bucketIdleTTL = 5 * time.Minute

// window is immutable except for its counter; a window reset installs a whole
// new window object, so late increments against the old one are harmless.
type window struct {
	start int64 // unix nanos
	count atomic.Int64
}

type bucket struct {
	win      atomic.Pointer[window]
	lastSeen atomic.Int64
}

// Gate admits or denies requests per client key with a fixed-window counter.
// Buckets live in a concurrent map and are created lazily on first sight of a
// key; an eviction loop drops buckets idle longer than bucketIdleTTL.
type Gate struct {
	profile  Profile
	buckets  sync.Map // clientKey -> *bucket
	stop     chan struct{}
	stopOnce sync.Once

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

func NewGate(p Profile) *Gate {
	g := &Gate{profile: p, stop: make(chan struct{})}
	go g.evictLoop()
	return g
}

// Close stops the eviction loop. The gate itself stays usable; only the idle
// bucket cleanup ends. Safe to call more than once.
func (g *Gate) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *Gate) Profile() Profile { return g.profile }

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// TryConsume counts one request against the client's current window. When the
// window has elapsed, the caller that wins the compare-and-swap resets the
// counter; losers increment against the fresh window rather than resetting
// again, so concurrent legitimate increments are never discarded. Denials
// return how long the client should wait before retrying.
func (g *Gate) TryConsume(clientKey string) (bool, time.Duration) {
	now := g.now().UnixNano()
	windowNanos := g.profile.Window.Nanoseconds()

	v, _ := g.buckets.LoadOrStore(clientKey, newBucket(now))
	b := v.(*bucket)
	b.lastSeen.Store(now)

	w := b.win.Load()
	if now-w.start > windowNanos {
		// Only the CAS winner installs the fresh window; losers fall through
		// and increment the window the winner installed.
		b.win.CompareAndSwap(w, &window{start: now})
		w = b.win.Load()
	}

	n := w.count.Add(1)
	if n <= g.profile.MaxRequests {
		return true, 0
	}

	retryAfter := time.Duration(w.start + windowNanos - now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter
}

func newBucket(now int64) *bucket {
	b := &bucket{}
	b.win.Store(&window{start: now})
	b.lastSeen.Store(now)
	return b
}

func (g *Gate) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			cutoff := g.now().Add(-bucketIdleTTL).UnixNano()
			g.buckets.Range(func(key, v any) bool {
				if v.(*bucket).lastSeen.Load() < cutoff {
					g.buckets.Delete(key)
				}
				return true
			})
		}
	}
}
