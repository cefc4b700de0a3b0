// Package gamepad adapts wireless gamepad events into control
// frames. The Bluetooth HID stack is an external collaborator that
// invokes HandleState and HandleDisconnect from its own goroutine.
package gamepad

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joachimth/trackbot/pkg/frame"
)

// axisCenter is the rest position of the native [0, 255] analog range.
const axisCenter = 128

// State is a snapshot of the controller inputs as delivered by the
// transport callback.
type State struct {
	LeftStickY  uint8 // native [0, 255], 0 = stick fully up
	RightStickX uint8 // native [0, 255], 255 = stick fully right
	Cross       bool  // e-stop
	Start       bool  // arm
	Triangle    bool  // slow mode toggle (press edge)
}

// Submitter receives the normalized frames.
type Submitter interface {
	Submit(src frame.Source, f frame.Frame)
}

// Adapter translates gamepad state snapshots into control frames.
// Slow mode is adapter-local state: it toggles on the triangle press
// edge and does not follow the operator across a source switch.
type Adapter struct {
	mgr    Submitter
	logger *zap.Logger

	mu           sync.Mutex
	slowMode     bool
	lastTriangle bool
}

// New creates a gamepad adapter.
func New(mgr Submitter, logger *zap.Logger) *Adapter {
	return &Adapter{mgr: mgr, logger: logger}
}

// HandleState converts one controller snapshot into a frame and
// submits it. Called by the transport on every stick or button event.
func (a *Adapter) HandleState(s State) {
	a.mu.Lock()
	if s.Triangle && !a.lastTriangle {
		a.slowMode = !a.slowMode
		a.logger.Info("slow mode toggled", zap.Bool("enabled", a.slowMode))
	}
	a.lastTriangle = s.Triangle
	slow := a.slowMode
	a.mu.Unlock()

	f := frame.Frame{
		// Stick up is a smaller native value; invert so up means
		// forward.
		Throttle:  -mapAxis(s.LeftStickY),
		Steering:  mapAxis(s.RightStickX),
		EStop:     s.Cross,
		Arm:       s.Start,
		SlowMode:  slow,
		Timestamp: time.Now(),
	}
	a.mgr.Submit(frame.SourceGamepad, f)
}

// HandleDisconnect submits a zeroed frame so the manager sees
// quiescence and the failsafe chain can take over. Slow mode resets;
// a reconnecting pad starts from the default.
func (a *Adapter) HandleDisconnect() {
	a.mu.Lock()
	a.slowMode = false
	a.lastTriangle = false
	a.mu.Unlock()

	a.logger.Warn("gamepad disconnected")
	a.mgr.Submit(frame.SourceGamepad, frame.Frame{Timestamp: time.Now()})
}

// mapAxis maps a native [0, 255] axis centered at 128 to [-1, +1].
func mapAxis(v uint8) float64 {
	return frame.Clamp((float64(v) - axisCenter) / axisCenter)
}
