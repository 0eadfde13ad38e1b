package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/obentoo/buildwatch/internal/common/logger"
)

// Transport carries the session's traffic. Lifecycle requests are answered
// asynchronously through events returned by Poll.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	LogOnAnonymous() error
	LogOff() error
	// Poll waits up to wait for pending events and returns them
	Poll(ctx context.Context, wait time.Duration) ([]Event, error)
	// ProductInfo fetches the metadata trees for ids in a single request
	ProductInfo(ctx context.Context, ids []AppID) (map[AppID]*KeyValue, error)
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithPollInterval sets how long each pump iteration waits for events
func WithPollInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithStateHook registers a function called after every state change
func WithStateHook(fn func(from, to State)) SessionOption {
	return func(s *Session) {
		s.hooks = append(s.hooks, fn)
	}
}

// WithLogger sets the session logger
func WithLogger(l *logger.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// Session owns the lifecycle of one connection to the metadata service.
// The pump goroutine is the only caller of HandleEvent in production; tests
// may feed synthetic events directly.
type Session struct {
	transport    Transport
	pollInterval time.Duration
	hooks        []func(from, to State)
	log          *logger.Logger

	mu       sync.Mutex
	state    State
	cause    error
	changed  chan struct{}
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSession creates a disconnected session over transport
func NewSession(transport Transport, opts ...SessionOption) *Session {
	s := &Session{
		transport:    transport,
		pollInterval: DefaultPollInterval,
		log:          logger.Named("session"),
		state:        StateDisconnected,
		changed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PollInterval returns the pump cadence
func (s *Session) PollInterval() time.Duration {
	return s.pollInterval
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause of a Failed state, or nil
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// IsUsable reports whether dependent calls may be issued
func (s *Session) IsUsable() bool {
	return s.State() == StateAuthenticated
}

// Start opens the transport and spawns the pump goroutine. The pump runs
// until Stop is called, ctx ends or the session fails.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, state)
	}
	s.stopping = false
	s.setLocked(StateConnecting, nil)
	s.mu.Unlock()
	s.notify(StateDisconnected, StateConnecting)

	if err := s.transport.Connect(ctx); err != nil {
		err = fmt.Errorf("%w: connect: %v", ErrTransportFailure, err)
		s.fail(err)
		return err
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.pump(pumpCtx, done)
	return nil
}

func (s *Session) pump(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		events, err := s.transport.Poll(ctx, s.pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(fmt.Errorf("%w: poll: %v", ErrTransportFailure, err))
			return
		}
		for _, ev := range events {
			if s.HandleEvent(ev) == StateFailed {
				return
			}
		}
	}
}

// HandleEvent applies one transport event and returns the resulting state.
// Events that do not apply to the current state are ignored.
func (s *Session) HandleEvent(ev Event) State {
	s.mu.Lock()
	from := s.state
	if s.stopping {
		s.mu.Unlock()
		return from
	}
	s.mu.Unlock()

	s.log.Debug("event %s in state %s", ev, from)

	switch ev.Kind {
	case EventConnected:
		if from != StateConnecting {
			return from
		}
		if !s.transition(StateConnecting, StateConnected, nil) {
			return s.State()
		}
		s.transition(StateConnected, StateAuthPending, nil)
		if err := s.transport.LogOnAnonymous(); err != nil {
			return s.fail(fmt.Errorf("%w: logon request: %v", ErrTransportFailure, err))
		}
		return s.State()

	case EventLoggedOn:
		if from != StateAuthPending {
			return from
		}
		if ev.Result != ResultOK {
			s.log.Error("Unable to logon to the metadata service: %s", ev.Result)
			return s.fail(fmt.Errorf("%w: %s", ErrAuthFailure, ev.Result))
		}
		s.transition(StateAuthPending, StateAuthenticated, nil)
		s.log.Debug("Logged on anonymously")
		return s.State()

	case EventLoggedOff:
		if from != StateAuthenticated {
			return from
		}
		s.log.Warn("Logged off from the metadata service: %s", ev.Result)
		return s.fail(fmt.Errorf("%w: logged off: %s", ErrSessionUnavailable, ev.Result))

	case EventDisconnected:
		if from == StateDisconnected || from == StateFailed {
			return from
		}
		s.log.Warn("Disconnected from the metadata service")
		return s.fail(fmt.Errorf("%w: disconnected", ErrTransportFailure))
	}
	return from
}

// transition moves from -> to if the session is still in from
func (s *Session) transition(from, to State, cause error) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.setLocked(to, cause)
	s.mu.Unlock()
	s.notify(from, to)
	return true
}

// fail moves to Failed from any state and records cause
func (s *Session) fail(cause error) State {
	s.mu.Lock()
	from := s.state
	if from == StateFailed {
		s.mu.Unlock()
		return StateFailed
	}
	s.setLocked(StateFailed, cause)
	s.mu.Unlock()
	s.notify(from, StateFailed)
	return StateFailed
}

func (s *Session) setLocked(to State, cause error) {
	s.state = to
	s.cause = cause
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) notify(from, to State) {
	for _, hook := range s.hooks {
		hook(from, to)
	}
}

// WaitReady blocks until the session is authenticated, has failed or ctx ends
func (s *Session) WaitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		state, cause, changed := s.state, s.cause, s.changed
		s.mu.Unlock()

		switch state {
		case StateAuthenticated:
			return nil
		case StateFailed:
			return fmt.Errorf("%w: %v", ErrSessionUnavailable, cause)
		case StateDisconnected:
			return fmt.Errorf("%w: not started", ErrSessionUnavailable)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ProductInfo requests metadata for ids in one batch. It fails fast with
// ErrSessionUnavailable unless the session is authenticated. A transport
// failure moves the session to Failed; a cancelled ctx does not.
func (s *Session) ProductInfo(ctx context.Context, ids []AppID) (map[AppID]*KeyValue, error) {
	if state := s.State(); state != StateAuthenticated {
		return nil, fmt.Errorf("%w: state %s", ErrSessionUnavailable, state)
	}
	info, err := s.transport.ProductInfo(ctx, ids)
	if err != nil && errors.Is(err, ErrTransportFailure) && ctx.Err() == nil {
		s.log.Warn("Product info request failed: %v", err)
		s.fail(err)
	}
	return info, err
}

// Stop logs off when authenticated, disconnects and waits for the pump to
// exit. A failed session stays Failed; otherwise it returns to Disconnected.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopping || s.state == StateDisconnected || (s.state == StateFailed && s.cancel == nil) {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	state := s.state
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if state == StateAuthenticated {
		if err := s.transport.LogOff(); err != nil {
			s.log.Debug("log off: %v", err)
		}
	}
	if err := s.transport.Disconnect(); err != nil {
		s.log.Debug("disconnect: %v", err)
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	from := s.state
	if from != StateFailed {
		s.setLocked(StateDisconnected, nil)
	}
	s.stopping = false
	s.mu.Unlock()
	if from != StateFailed {
		s.notify(from, StateDisconnected)
	}
}
