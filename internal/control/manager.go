// Package control implements the multi-source arbitration manager:
// it owns the single active control frame and runs the 50 Hz tick
// that wires safety, mixer and motors together.
package control

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joachimth/trackbot/internal/metrics"
	"github.com/joachimth/trackbot/pkg/frame"
)

// TickPeriod is the control loop period (50 Hz).
const TickPeriod = 20 * time.Millisecond

// Safety is the gate consulted on every tick.
type Safety interface {
	Arm()
	EmergencyStop()
	UpdateWatchdog()
	IsArmed() bool
}

// Mixer converts a control frame's axes into track speeds.
type Mixer interface {
	Mix(throttle, steering float64, slow bool) (left, right float64)
}

// Motors receives the tick's speed targets.
type Motors interface {
	SetTarget(left, right float64)
}

// Manager arbitrates between input sources with an owner-lock model:
// the last source to submit is the active source until it times out.
// The (source, frame, last update) triple is guarded by one mutex,
// held by Submit, ActiveSource and the entire tick body.
type Manager struct {
	timeout time.Duration
	safety  Safety
	mixer   Mixer
	motors  Motors
	rec     *metrics.Recorder
	logger  *zap.Logger

	mu         sync.Mutex
	active     frame.Source
	current    frame.Frame
	lastUpdate time.Time
}

// NewManager creates the arbitration manager.
func NewManager(
	timeout time.Duration,
	safety Safety,
	mixer Mixer,
	motors Motors,
	rec *metrics.Recorder,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		timeout: timeout,
		safety:  safety,
		mixer:   mixer,
		motors:  motors,
		rec:     rec,
		logger:  logger,
	}
}

// Submit latches a control frame from a source. The last writer wins
// regardless of the prior owner; only source changes are logged. It
// never blocks beyond the manager critical section.
func (m *Manager) Submit(src frame.Source, f frame.Frame) {
	m.mu.Lock()
	if src != m.active {
		m.logger.Info("control source changed",
			zap.Stringer("from", m.active),
			zap.Stringer("to", src))
		m.rec.SourceSwitch()
	}
	m.active = src
	m.current = f
	m.lastUpdate = time.Now()
	m.mu.Unlock()

	m.rec.Frame(src)
}

// ActiveSource returns a snapshot of the current active source.
func (m *Manager) ActiveSource() frame.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Run executes the control tick at 50 Hz until the context is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(time.Now())
		}
	}
}

// tick runs one arbitration cycle. Steps, in order: expire a stale
// source, apply the e-stop edge (which short-circuits the rest of the
// tick so e-stop has the shortest path to motor quiescence), apply
// the arm edge, refresh the failsafe watchdog, then drive or idle.
func (m *Manager) tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != frame.SourceNone && now.Sub(m.lastUpdate) > m.timeout {
		m.logger.Warn("control source timed out",
			zap.Stringer("source", m.active),
			zap.Duration("silence", now.Sub(m.lastUpdate)))
		m.rec.Timeout()
		m.active = frame.SourceNone
		m.current = frame.Frame{}
	}

	// E-stop wins over everything else in the same frame, including
	// a simultaneous arm request.
	if m.current.EStop {
		m.safety.EmergencyStop()
		return
	}

	if m.current.Arm {
		m.safety.Arm()
	}

	// A source is live as long as frames keep arriving, regardless
	// of their content.
	if m.active != frame.SourceNone {
		m.safety.UpdateWatchdog()
	}

	if m.safety.IsArmed() {
		left, right := m.mixer.Mix(m.current.Throttle, m.current.Steering, m.current.SlowMode)
		m.motors.SetTarget(left, right)
	} else {
		m.motors.SetTarget(0, 0)
	}
}
