package motor

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePin records every duty written to it.
type fakePin struct {
	mu     sync.Mutex
	duties []uint32
	err    error
}

func (p *fakePin) SetDuty(duty uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.duties = append(p.duties, duty)
	return nil
}

func (p *fakePin) last() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.duties) == 0 {
		return 0
	}
	return p.duties[len(p.duties)-1]
}

type fakePins struct {
	lf, lr, rf, rr *fakePin
}

func newFakePins() fakePins {
	return fakePins{&fakePin{}, &fakePin{}, &fakePin{}, &fakePin{}}
}

func (f fakePins) pins() Pins {
	return Pins{
		LeftForward:  f.lf,
		LeftReverse:  f.lr,
		RightForward: f.rf,
		RightReverse: f.rr,
	}
}

func newTestDrive(t *testing.T, cfg Config, f fakePins) *Drive {
	t.Helper()
	d, err := New(cfg, f.pins(), zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	f := newFakePins()

	_, err := New(Config{Resolution: 0}, f.pins(), zap.NewNop())
	assert.Error(t, err)

	_, err = New(Config{Resolution: 10, RampRate: -time.Second}, f.pins(), zap.NewNop())
	assert.Error(t, err)

	_, err = New(Config{Resolution: 10}, Pins{}, zap.NewNop())
	assert.Error(t, err)
}

func TestSetTarget_ClampsInput(t *testing.T) {
	f := newFakePins()
	d := newTestDrive(t, Config{Resolution: 10}, f)

	d.SetTarget(4.2, -7)
	d.tick() // no ramp configured: snap to target

	left, right := d.Current()
	assert.Equal(t, 1.0, left)
	assert.Equal(t, -1.0, right)
}

func TestTick_SnapWithoutRamp(t *testing.T) {
	f := newFakePins()
	d := newTestDrive(t, Config{Resolution: 8}, f)

	d.SetTarget(0.5, -0.5)
	d.tick()

	// 0.5 * 255 rounds to 128.
	assert.Equal(t, uint32(128), f.lf.last())
	assert.Equal(t, uint32(0), f.lr.last())
	assert.Equal(t, uint32(0), f.rf.last())
	assert.Equal(t, uint32(128), f.rr.last())
}

func TestTick_RampBound(t *testing.T) {
	f := newFakePins()
	d := newTestDrive(t, Config{Resolution: 10, RampRate: 200 * time.Millisecond}, f)

	d.SetTarget(1, -1)

	step := float64(tickPeriod) / float64(200*time.Millisecond) // 0.1 per tick
	prevLeft, prevRight := 0.0, 0.0
	for i := 0; i < 15; i++ {
		d.tick()
		left, right := d.Current()
		assert.LessOrEqual(t, math.Abs(left-prevLeft), step+1e-9)
		assert.LessOrEqual(t, math.Abs(right-prevRight), step+1e-9)
		prevLeft, prevRight = left, right
	}

	// 15 ticks at 0.1 per tick is more than enough to converge.
	left, right := d.Current()
	assert.InDelta(t, 1.0, left, 1e-9)
	assert.InDelta(t, -1.0, right, 1e-9)
}

func TestTick_RampClampsAtTarget(t *testing.T) {
	f := newFakePins()
	d := newTestDrive(t, Config{Resolution: 10, RampRate: 100 * time.Millisecond}, f)

	d.SetTarget(0.25, 0.25)
	for i := 0; i < 10; i++ {
		d.tick()
	}

	left, right := d.Current()
	assert.InDelta(t, 0.25, left, 1e-9)
	assert.InDelta(t, 0.25, right, 1e-9)
}

func TestTick_OneChannelPerSide(t *testing.T) {
	f := newFakePins()
	d := newTestDrive(t, Config{Resolution: 10}, f)

	d.SetTarget(0.7, 0.7)
	d.tick()
	d.SetTarget(-0.7, -0.7)
	d.tick()

	// After a direction flip the forward channel must have been
	// zeroed; at no point are both channels left non-zero.
	assert.Equal(t, uint32(0), f.lf.last())
	assert.NotZero(t, f.lr.last())
	assert.Equal(t, uint32(0), f.rf.last())
	assert.NotZero(t, f.rr.last())
}

func TestTick_Inversion(t *testing.T) {
	f := newFakePins()
	d := newTestDrive(t, Config{Resolution: 8, InvertLeft: true}, f)

	d.SetTarget(1, 1)
	d.tick()

	// Inverted left drives the reverse channel.
	assert.Equal(t, uint32(0), f.lf.last())
	assert.Equal(t, uint32(255), f.lr.last())
	assert.Equal(t, uint32(255), f.rf.last())
	assert.Equal(t, uint32(0), f.rr.last())
}

func TestEmergencyStop_BypassesRamp(t *testing.T) {
	f := newFakePins()
	d := newTestDrive(t, Config{Resolution: 10, RampRate: time.Second}, f)

	d.SetTarget(1, 1)
	for i := 0; i < 5; i++ {
		d.tick()
	}
	left, _ := d.Current()
	require.NotZero(t, left)

	require.NoError(t, d.EmergencyStop())

	left, right := d.Current()
	assert.Zero(t, left)
	assert.Zero(t, right)
	assert.Equal(t, uint32(0), f.lf.last())
	assert.Equal(t, uint32(0), f.lr.last())
	assert.Equal(t, uint32(0), f.rf.last())
	assert.Equal(t, uint32(0), f.rr.last())

	// A further tick must not revive motion from stale targets.
	d.tick()
	left, right = d.Current()
	assert.Zero(t, left)
	assert.Zero(t, right)
}

func TestEmergencyStop_ReportsHardwareFault(t *testing.T) {
	f := newFakePins()
	f.lf.err = errors.New("pwm bus gone")
	d := newTestDrive(t, Config{Resolution: 10}, f)

	assert.Error(t, d.EmergencyStop())
}

func TestTick_PWMFailureDoesNotStopLoop(t *testing.T) {
	f := newFakePins()
	f.rf.err = errors.New("pwm bus gone")
	d := newTestDrive(t, Config{Resolution: 10}, f)

	d.SetTarget(0.5, 0.5)
	// Must not panic; left side still driven.
	d.tick()
	assert.Equal(t, uint32(512), f.lf.last())
}
