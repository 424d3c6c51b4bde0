package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"auto_trader/internal/core"
)

// State is one node of the trading state machine.
type State string

// Trading states
const (
	StateIdle                State = "idle"
	StateInitializing        State = "initializing"
	StateLoginRequired       State = "login_required"
	StateLoggingIn           State = "logging_in"
	StateLoginFailed         State = "login_failed"
	StateCheckingResources   State = "checking_resources"
	StateInsufficientFunds   State = "insufficient_funds"
	StateWithdrawingFromBank State = "withdrawing_from_bank"
	StateCheckingInventory   State = "checking_inventory"
	StateDepositingToStorage State = "depositing_to_storage"
	StateSpaceFull           State = "space_full"
	StateMarketScanning      State = "market_scanning"
	StateBuying              State = "buying"
	StateSelling             State = "selling"
	StateWaitingNormal       State = "waiting_normal"
	StateWaitingBlocked      State = "waiting_blocked"
	StateError               State = "error"
	StateCriticalError       State = "critical_error"
)

// validTransitions is the full transition table. Critical error is reachable
// from every state except itself.
var validTransitions = map[State][]State{
	StateIdle:                {StateInitializing, StateError},
	StateInitializing:        {StateLoginRequired, StateCheckingResources, StateError},
	StateLoginRequired:       {StateLoggingIn, StateCheckingResources, StateError},
	StateLoggingIn:           {StateCheckingResources, StateLoginFailed, StateLoginRequired, StateError},
	StateLoginFailed:         {StateLoginRequired, StateWaitingNormal, StateWaitingBlocked},
	StateCheckingResources:   {StateInsufficientFunds, StateWithdrawingFromBank, StateCheckingInventory, StateMarketScanning, StateSelling, StateWaitingNormal, StateError},
	StateInsufficientFunds:   {StateWithdrawingFromBank, StateWaitingBlocked, StateError},
	StateWithdrawingFromBank: {StateCheckingResources, StateInsufficientFunds, StateError},
	StateCheckingInventory:   {StateDepositingToStorage, StateSpaceFull, StateMarketScanning, StateSelling, StateError},
	StateDepositingToStorage: {StateCheckingInventory, StateSpaceFull, StateMarketScanning, StateBuying, StateError},
	StateSpaceFull:           {StateWaitingBlocked, StateCheckingInventory, StateSelling, StateError},
	StateMarketScanning:      {StateBuying, StateSelling, StateWaitingNormal, StateCheckingResources, StateCheckingInventory, StateError},
	StateBuying:              {StateMarketScanning, StateCheckingResources, StateCheckingInventory, StateSelling, StateError},
	StateSelling:             {StateMarketScanning, StateCheckingResources, StateSpaceFull, StateWaitingNormal, StateWaitingBlocked, StateError},
	StateWaitingNormal:       {StateIdle, StateMarketScanning, StateCheckingResources, StateLoginRequired, StateError},
	StateWaitingBlocked:      {StateIdle, StateCheckingResources, StateCheckingInventory, StateLoginRequired, StateError},
	StateError:               {StateCheckingResources, StateLoginRequired, StateCriticalError, StateIdle, StateWaitingNormal, StateWaitingBlocked},
	StateCriticalError:       {StateIdle},
}

// Machine tracks the current state and validates transitions.
type Machine struct {
	mu         sync.Mutex
	current    State
	previous   State
	enteredAt  time.Time
	retryCount int
	logger     core.ILogger
	now        func() time.Time
}

// NewMachine creates a machine in the idle state.
func NewMachine(logger core.ILogger) *Machine {
	return &Machine{
		current:   StateIdle,
		enteredAt: time.Now(),
		logger:    logger.WithField("component", "state_machine"),
		now:       time.Now,
	}
}

// Current returns the active state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Previous returns the state before the last transition.
func (m *Machine) Previous() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previous
}

// RetryCount returns the error retry counter.
func (m *Machine) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// CanTransition reports whether the table allows moving to target.
func (m *Machine) CanTransition(target State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canTransitionLocked(target)
}

func (m *Machine) canTransitionLocked(target State) bool {
	if target == StateCriticalError {
		return m.current != StateCriticalError
	}
	for _, allowed := range validTransitions[m.current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Transition moves to target, failing on an invalid edge. The retry counter
// resets on any transition into a non-error state.
func (m *Machine) Transition(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.canTransitionLocked(target) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, target)
	}
	duration := m.now().Sub(m.enteredAt)
	m.logger.Info("state transition",
		"from", m.current, "to", target, "duration", duration.Round(time.Millisecond))

	m.previous = m.current
	m.current = target
	m.enteredAt = m.now()
	if target != StateError && target != StateCriticalError {
		m.retryCount = 0
	}
	return nil
}

// RecordError bumps the retry counter and moves into the error state.
// Returns false once the retry budget is exhausted and the machine has
// entered critical error.
func (m *Machine) RecordError(maxRetries int) bool {
	m.mu.Lock()
	exhausted := false
	m.retryCount++
	if m.retryCount > maxRetries {
		exhausted = true
	}
	m.mu.Unlock()
	if exhausted {
		_ = m.Transition(StateCriticalError)
		return false
	}
	_ = m.Transition(StateError)
	return true
}

// Reset returns the machine to idle, keeping nothing but the logger.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("resetting state machine", "from", m.current)
	m.previous = m.current
	m.current = StateIdle
	m.enteredAt = m.now()
	m.retryCount = 0
}
