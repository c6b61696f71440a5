package router

import (
	"log/slog"
	"sync"
	"time"

	"salonbot/internal/domain"
	"salonbot/internal/metrics"
)

const defaultReconnectDelay = 2 * time.Second

// PairingDisplay renders a pairing artifact for the operator.
type PairingDisplay interface {
	ShowPairingCode(code string)
}

// Supervisor reacts to connection lifecycle signals. It owns exactly one
// decision: whether to request a reconnect after a close. It never touches
// session state itself; it only invokes the restart callback.
type Supervisor struct {
	restart func()
	display PairingDisplay
	logger  *slog.Logger
	delay   time.Duration

	mu       sync.Mutex
	state    domain.ConnectionState
	failures int
}

// SupervisorConfig holds the supervisor's collaborators.
type SupervisorConfig struct {
	// Restart is invoked once per non-terminal close, fire-and-forget.
	Restart func()
	Display PairingDisplay
	Logger  *slog.Logger
	// ReconnectDelay spaces restart attempts. Default 2s.
	ReconnectDelay time.Duration
}

// NewSupervisor creates a supervisor in the Connecting state.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Supervisor{
		restart: cfg.Restart,
		display: cfg.Display,
		logger:  cfg.Logger,
		delay:   cfg.ReconnectDelay,
		state:   domain.StateConnecting,
	}
}

// State returns the last observed connection state.
func (s *Supervisor) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connecting records that a connection attempt started.
func (s *Supervisor) Connecting() {
	s.setState(domain.StateConnecting)
	s.logger.Info("connecting")
}

// Opened records a successful connection.
func (s *Supervisor) Opened() {
	s.mu.Lock()
	s.state = domain.StateOpen
	s.failures = 0
	s.mu.Unlock()
	metrics.ConnectionUp.Set(1)
	s.logger.Info("connected")
}

// Closed records a disconnect and, unless the session was logged out,
// schedules exactly one restart. Logout is terminal: the stored
// credentials are gone and only re-pairing can recover.
func (s *Supervisor) Closed(reason domain.CloseReason) {
	s.mu.Lock()
	s.state = domain.StateClosed
	s.failures++
	failures := s.failures
	s.mu.Unlock()
	metrics.ConnectionUp.Set(0)

	if reason.LoggedOut {
		s.logger.Error("session logged out, re-pairing required", "code", reason.Code)
		return
	}

	s.logger.Warn("connection closed, reconnecting",
		"code", reason.Code,
		"err", reason.Err,
		"consecutive_failures", failures,
	)
	if s.restart == nil {
		return
	}
	metrics.ReconnectsTotal.Inc()
	delay := s.delay
	restart := s.restart
	go func() {
		time.Sleep(delay)
		restart()
	}()
}

// PairingCode surfaces a pairing artifact received while connecting.
func (s *Supervisor) PairingCode(code string) {
	s.logger.Info("pairing code received, link the device to continue")
	if s.display != nil {
		s.display.ShowPairingCode(code)
	}
}

func (s *Supervisor) setState(state domain.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
