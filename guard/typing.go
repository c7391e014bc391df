package guard

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxConsecutiveTypingFailures = 2
	typingTTL                    = 60 * time.Second
)

// TypingStartGuard is a circuit breaker around typing-indicator API calls.
// After maxConsecutiveTypingFailures consecutive failures it trips and
// silently skips further attempts until Reset is called. A successful call
// also arms a TTL timer matching the platform's auto-stop window so a
// phantom "typing..." state is never left hanging past it.
type TypingStartGuard struct {
	consecutiveFailures atomic.Int32
	tripped             atomic.Bool
	log                 *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewTypingStartGuard creates a guard. log may be nil.
func NewTypingStartGuard(log *slog.Logger) *TypingStartGuard {
	if log == nil {
		log = slog.Default()
	}
	return &TypingStartGuard{log: log}
}

// Start attempts to send a typing indicator via sendFn. If the guard is
// already tripped, sendFn is not called. A panic inside sendFn is treated
// as a failed send.
func (g *TypingStartGuard) Start(sendFn func() bool) {
	if g.tripped.Load() {
		return
	}

	ok := g.invoke(sendFn)

	if ok {
		g.consecutiveFailures.Store(0)
		g.armTTL()
		return
	}

	failures := g.consecutiveFailures.Add(1)
	if failures >= maxConsecutiveTypingFailures {
		g.tripped.Store(true)
		g.log.Warn("typing start guard tripped", "consecutive_failures", failures)
	}
}

func (g *TypingStartGuard) invoke(sendFn func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return sendFn()
}

func (g *TypingStartGuard) armTTL() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(typingTTL, func() {})
}

// Reset clears the failure counter and tripped flag, and cancels any
// pending TTL timer. Call at the start of a new reply cycle.
func (g *TypingStartGuard) Reset() {
	g.consecutiveFailures.Store(0)
	g.tripped.Store(false)
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.mu.Unlock()
}

// IsTripped reports whether the guard has tripped.
func (g *TypingStartGuard) IsTripped() bool { return g.tripped.Load() }

// FailureCount reports the current consecutive failure count.
func (g *TypingStartGuard) FailureCount() int { return int(g.consecutiveFailures.Load()) }
