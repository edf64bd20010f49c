// Package supervisor watches the radio link with a heartbeat counter and
// forces a reconnect when the link goes silent.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meshmon/logger"
	"meshmon/radio"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	}
	return "UNKNOWN"
}

// Notifier receives link lifecycle callbacks. All methods are invoked
// from the supervisor's goroutine.
type Notifier interface {
	// LinkUp fires after every successful connect; reconnect is false
	// only for the first connect of the process.
	LinkUp(reconnect bool)
	// LinkSilent fires exactly once per silence episode, just before
	// the link is forced closed.
	LinkSilent(silentTicks int)
	LinkDown()
}

// NopNotifier ignores all callbacks.
type NopNotifier struct{}

func (NopNotifier) LinkUp(bool)    {}
func (NopNotifier) LinkSilent(int) {}
func (NopNotifier) LinkDown()      {}

// Supervisor drives the connect/heartbeat/reconnect state machine. One
// tick (default 60s) sends a heartbeat and advances the silence counter;
// traffic observed between ticks resets it. At the silence threshold the
// link is closed and reconnection is retried on every following tick,
// unconditionally.
type Supervisor struct {
	mu sync.Mutex

	rdo       radio.Radio
	notifier  Notifier
	interval  time.Duration
	threshold int

	state        State
	silentTicks  int
	traffic      bool
	warned       bool
	everUp       bool
	reconnects   int
	connectedAt  time.Time
	onTick       func(now time.Time)

	stopChan chan struct{}
	doneChan chan struct{}
}

func New(rdo radio.Radio, notifier Notifier, interval time.Duration, threshold int) *Supervisor {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Supervisor{
		rdo:       rdo,
		notifier:  notifier,
		interval:  interval,
		threshold: threshold,
		state:     StateDisconnected,
	}
}

// SetOnTick installs a hook run on every tick while the link is up.
// Must be called before Start.
func (s *Supervisor) SetOnTick(fn func(now time.Time)) { s.onTick = fn }

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// MarkTraffic records that a packet arrived since the last tick.
func (s *Supervisor) MarkTraffic() {
	s.mu.Lock()
	s.traffic = true
	s.mu.Unlock()
}

// Start connects immediately and runs the tick loop until Stop.
func (s *Supervisor) Start(ctx context.Context) {
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	go func() {
		defer close(s.doneChan)
		s.Tick(ctx, time.Now())
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				s.Tick(ctx, now)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Supervisor) Stop() {
	if s.stopChan != nil {
		close(s.stopChan)
		<-s.doneChan
		s.stopChan = nil
	}
	s.mu.Lock()
	wasUp := s.state == StateConnected
	s.state = StateDisconnected
	s.mu.Unlock()
	if wasUp {
		s.rdo.Close()
	}
}

// Tick advances the state machine once. Exposed so the engine and tests
// can drive it directly.
func (s *Supervisor) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateConnected:
		s.tickConnected(now)
	default:
		s.tryConnect(ctx)
	}
}

func (s *Supervisor) tickConnected(now time.Time) {
	s.mu.Lock()
	if s.traffic {
		s.silentTicks = 0
		s.warned = false
		s.traffic = false
	} else {
		s.silentTicks++
	}
	silent := s.silentTicks
	warned := s.warned
	if silent >= s.threshold {
		s.warned = true
	}
	s.mu.Unlock()

	if silent >= s.threshold {
		if !warned {
			logger.Warnf("supervisor: no traffic for %d ticks, forcing reconnect", silent)
			s.notifier.LinkSilent(silent)
		}
		s.rdo.Close()
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.notifier.LinkDown()
		return
	}

	if err := s.rdo.SendHeartbeat(); err != nil {
		logger.Warnf("supervisor: heartbeat: %v", err)
	}
	if s.onTick != nil {
		s.onTick(now)
	}
}

func (s *Supervisor) tryConnect(ctx context.Context) {
	s.mu.Lock()
	if s.everUp {
		s.state = StateReconnecting
	} else {
		s.state = StateConnecting
	}
	s.mu.Unlock()

	if err := s.rdo.Connect(ctx); err != nil {
		// Connect errors are logged, never raised; the next tick retries.
		logger.Warnf("supervisor: connect: %v", err)
		s.mu.Lock()
		s.state = StateReconnecting
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	reconnect := s.everUp
	if reconnect {
		s.reconnects++
	}
	s.everUp = true
	s.state = StateConnected
	s.silentTicks = 0
	s.warned = false
	s.traffic = false
	s.connectedAt = time.Now()
	s.mu.Unlock()

	logger.Infof("supervisor: link up (reconnect=%v)", reconnect)
	s.notifier.LinkUp(reconnect)
}

// Describe renders the current state for health endpoints.
func (s *Supervisor) Describe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s (silent=%d reconnects=%d)", s.state, s.silentTicks, s.reconnects)
}
