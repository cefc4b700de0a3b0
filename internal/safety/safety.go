// Package safety implements the arm/disarm gate, the latched
// emergency stop and the communications-loss failsafe watchdog. It is
// the authoritative gate on motor motion.
package safety

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the safety gate state.
type State string

const (
	StateDisarmed State = "disarmed"
	StateArmed    State = "armed"
	StateEStop    State = "estop"
)

// Event names the cause of a state transition.
type Event string

const (
	EventArm             Event = "arm"
	EventDisarm          Event = "disarm"
	EventEStop           Event = "e_stop"
	EventWatchdogTimeout Event = "watchdog_timeout"
)

// StateChange describes a completed transition.
type StateChange struct {
	From  State
	To    State
	Event Event
}

// StateChangeCallback is called when state changes.
type StateChangeCallback func(change StateChange)

// ErrEStopLatched indicates disarm was rejected because the e-stop
// latch is set. Only an arm command clears the latch.
var ErrEStopLatched = errors.New("e-stop latched: arm to clear")

// MotorStopper commands immediate motor quiescence.
type MotorStopper interface {
	EmergencyStop() error
}

// Monitor is the safety state machine plus failsafe watchdog. All
// operations are safe for concurrent use; the watchdog loop runs
// independently of the control tick so a stalled tick still results
// in a disarm.
type Monitor struct {
	timeout time.Duration
	motor   MotorStopper
	logger  *zap.Logger

	mu           sync.Mutex
	state        State
	lastWatchdog time.Time
	callback     StateChangeCallback
}

// NewMonitor creates a monitor in the disarmed state.
func NewMonitor(timeout time.Duration, motor MotorStopper, logger *zap.Logger) *Monitor {
	return &Monitor{
		timeout:      timeout,
		motor:        motor,
		logger:       logger,
		state:        StateDisarmed,
		lastWatchdog: time.Now(),
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsArmed returns true iff the state is exactly armed.
func (m *Monitor) IsArmed() bool {
	return m.State() == StateArmed
}

// OnStateChange registers a callback for state changes. The callback
// runs synchronously under the monitor lock; it must not call back
// into the monitor.
func (m *Monitor) OnStateChange(cb StateChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

// Arm enables motor motion. From a latched e-stop this is the single
// deliberate "resume" gesture: it clears the latch and arms. The
// watchdog tick is reset in every state.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastWatchdog = time.Now()
	if m.state == StateArmed {
		return
	}
	m.transition(StateArmed, EventArm)
	m.logger.Info("system armed")
}

// Disarm disables motor motion and commands a motor stop. Rejected
// while the e-stop latch is set.
func (m *Monitor) Disarm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateEStop:
		m.logger.Warn("disarm rejected: e-stop latched")
		return ErrEStopLatched
	case StateDisarmed:
		return nil
	}

	m.disarmLocked(EventDisarm)
	m.logger.Info("system disarmed")
	return nil
}

// EmergencyStop latches the e-stop state and commands immediate motor
// quiescence. Idempotent: repeated calls re-command the motor stop
// but transition only once.
func (m *Monitor) EmergencyStop() {
	m.mu.Lock()
	if m.state != StateEStop {
		m.transition(StateEStop, EventEStop)
		m.logger.Error("emergency stop latched, arm to clear")
	}
	m.mu.Unlock()

	m.stopMotors()
}

// UpdateWatchdog refreshes the failsafe tick. Called by the control
// tick while an input source is live.
func (m *Monitor) UpdateWatchdog() {
	m.mu.Lock()
	m.lastWatchdog = time.Now()
	m.mu.Unlock()
}

// Run polls the failsafe watchdog until the context is cancelled.
// When armed and no refresh arrived within the timeout, the system is
// force-disarmed. Other states do not time out.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkWatchdog()
		}
	}
}

func (m *Monitor) checkWatchdog() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateArmed {
		return
	}
	elapsed := time.Since(m.lastWatchdog)
	if elapsed <= m.timeout {
		return
	}

	m.logger.Warn("watchdog timeout, auto-disarming",
		zap.Duration("elapsed", elapsed),
		zap.Duration("timeout", m.timeout))
	m.disarmLocked(EventWatchdogTimeout)
}

// disarmLocked performs the ARMED -> DISARMED transition and commands
// a motor stop. Must be called with the lock held and state armed.
func (m *Monitor) disarmLocked(event Event) {
	m.transition(StateDisarmed, event)

	// The motor stage has its own lock; taking it here is bounded
	// and cannot deadlock because motors never call into safety.
	if err := m.motor.EmergencyStop(); err != nil {
		m.logger.Error("motor stop failed during disarm", zap.Error(err))
	}
}

func (m *Monitor) stopMotors() {
	if err := m.motor.EmergencyStop(); err != nil {
		m.logger.Error("motor stop failed", zap.Error(err))
	}
}

// transition updates state and fires the callback. Lock must be held.
func (m *Monitor) transition(to State, event Event) {
	from := m.state
	m.state = to
	if m.callback != nil {
		m.callback(StateChange{From: from, To: to, Event: event})
	}
}
