package client

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ConnState is the connection lifecycle phase of a Reconnector.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	maxReconnectAttempts = 5
	reconnectDelay       = 1 * time.Second
	// intentionalGrace is how long after a requested disconnect an observed
	// close is still treated as intentional.
	intentionalGrace = 1 * time.Second
)

// ErrReconnectExhausted is reported to the terminal callback once the retry
// budget runs out.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Reconnector redials a dropped connection with a fixed delay between
// attempts. A successful open resets the attempt counter; an intentional
// disconnect suppresses retries entirely.
type Reconnector struct {
	dial       func() error
	onTerminal func(error)
	schedule   func(time.Duration, func())
	logger     *slog.Logger

	mu          sync.Mutex
	state       ConnState
	attempts    int
	intentional bool
}

type ReconnectorOption func(*Reconnector)

// WithScheduler replaces the timer used between attempts. Tests use this to
// run retries synchronously.
func WithScheduler(schedule func(time.Duration, func())) ReconnectorOption {
	return func(r *Reconnector) {
		if schedule != nil {
			r.schedule = schedule
		}
	}
}

func WithReconnectorLogger(logger *slog.Logger) ReconnectorOption {
	return func(r *Reconnector) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewReconnector(dial func() error, onTerminal func(error), opts ...ReconnectorOption) *Reconnector {
	r := &Reconnector{
		dial:       dial,
		onTerminal: onTerminal,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		logger: slog.Default(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect dials immediately. A failed dial enters the same retry path as an
// unexpected close.
func (r *Reconnector) Connect() {
	r.mu.Lock()
	r.state = StateConnecting
	r.intentional = false
	r.mu.Unlock()

	r.tryConnect()
}

func (r *Reconnector) tryConnect() {
	if err := r.dial(); err != nil {
		r.logger.Warn("dial failed", "error", err)
		r.HandleClosed()
		return
	}

	r.mu.Lock()
	r.state = StateOpen
	r.attempts = 0
	r.mu.Unlock()
}

// HandleClosed is called whenever the underlying connection drops, whether
// the dial failed or an established link broke.
func (r *Reconnector) HandleClosed() {
	r.mu.Lock()

	if r.state == StateClosed {
		r.mu.Unlock()
		return
	}
	if r.intentional {
		r.state = StateIdle
		r.mu.Unlock()
		return
	}
	if r.attempts >= maxReconnectAttempts {
		r.state = StateClosed
		onTerminal := r.onTerminal
		r.mu.Unlock()
		if onTerminal != nil {
			onTerminal(ErrReconnectExhausted)
		}
		return
	}

	r.attempts++
	r.state = StateBackoff
	attempt := r.attempts
	r.mu.Unlock()

	r.logger.Info("scheduling reconnect", "attempt", attempt, "delay", reconnectDelay)
	r.schedule(reconnectDelay, func() {
		r.mu.Lock()
		if r.state != StateBackoff {
			r.mu.Unlock()
			return
		}
		r.state = StateConnecting
		r.mu.Unlock()

		r.tryConnect()
	})
}

// Disconnect marks the next observed close as intentional so no retries are
// scheduled for it. The mark expires after a short grace period.
func (r *Reconnector) Disconnect() {
	r.mu.Lock()
	r.intentional = true
	r.mu.Unlock()

	r.schedule(intentionalGrace, func() {
		r.mu.Lock()
		r.intentional = false
		r.mu.Unlock()
	})
}

func (r *Reconnector) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
