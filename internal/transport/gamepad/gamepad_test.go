package gamepad

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joachimth/trackbot/pkg/frame"
)

type captureSubmitter struct {
	mu     sync.Mutex
	frames []frame.Frame
	srcs   []frame.Source
}

func (c *captureSubmitter) Submit(src frame.Source, f frame.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.srcs = append(c.srcs, src)
	c.frames = append(c.frames, f)
}

func (c *captureSubmitter) last() frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[len(c.frames)-1]
}

func newTestAdapter() (*Adapter, *captureSubmitter) {
	sub := &captureSubmitter{}
	return New(sub, zap.NewNop()), sub
}

func TestHandleState_CenteredSticksAreNearZero(t *testing.T) {
	a, sub := newTestAdapter()

	a.HandleState(State{LeftStickY: 128, RightStickX: 128})

	require.Len(t, sub.frames, 1)
	assert.Equal(t, frame.SourceGamepad, sub.srcs[0])
	assert.Zero(t, sub.last().Throttle)
	assert.Zero(t, sub.last().Steering)
}

func TestHandleState_AxisMapping(t *testing.T) {
	a, sub := newTestAdapter()

	// Stick fully up (0) means full forward throttle; stick fully
	// right (255) maps to 127/128, just short of full right steering.
	a.HandleState(State{LeftStickY: 0, RightStickX: 255})

	f := sub.last()
	assert.Equal(t, 1.0, f.Throttle)
	assert.InDelta(t, 127.0/128.0, f.Steering, 1e-9)

	// Stick fully down means full reverse.
	a.HandleState(State{LeftStickY: 255, RightStickX: 128})
	assert.InDelta(t, -127.0/128.0, sub.last().Throttle, 1e-9)
}

func TestHandleState_Buttons(t *testing.T) {
	a, sub := newTestAdapter()

	a.HandleState(State{LeftStickY: 128, RightStickX: 128, Cross: true, Start: true})

	f := sub.last()
	assert.True(t, f.EStop)
	assert.True(t, f.Arm)
}

func TestHandleState_SlowModeTogglesOnPressEdge(t *testing.T) {
	a, sub := newTestAdapter()

	// Press: toggles on.
	a.HandleState(State{LeftStickY: 128, RightStickX: 128, Triangle: true})
	assert.True(t, sub.last().SlowMode)

	// Held: no further toggle.
	a.HandleState(State{LeftStickY: 128, RightStickX: 128, Triangle: true})
	assert.True(t, sub.last().SlowMode)

	// Release then press again: toggles off.
	a.HandleState(State{LeftStickY: 128, RightStickX: 128})
	a.HandleState(State{LeftStickY: 128, RightStickX: 128, Triangle: true})
	assert.False(t, sub.last().SlowMode)
}

func TestHandleDisconnect_SubmitsZeroFrame(t *testing.T) {
	a, sub := newTestAdapter()

	a.HandleState(State{LeftStickY: 0, RightStickX: 255, Triangle: true})
	a.HandleDisconnect()

	f := sub.last()
	assert.Zero(t, f.Throttle)
	assert.Zero(t, f.Steering)
	assert.False(t, f.EStop)
	assert.False(t, f.Arm)
	assert.False(t, f.SlowMode)
	assert.False(t, f.Timestamp.IsZero())
}

func TestHandleDisconnect_ResetsSlowMode(t *testing.T) {
	a, sub := newTestAdapter()

	a.HandleState(State{LeftStickY: 128, RightStickX: 128, Triangle: true})
	require.True(t, sub.last().SlowMode)

	a.HandleDisconnect()

	// A reconnecting pad starts from the default.
	a.HandleState(State{LeftStickY: 128, RightStickX: 128})
	assert.False(t, sub.last().SlowMode)
}
