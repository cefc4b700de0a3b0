// Package motor implements the dual H-bridge output stage: signed
// normalized speed in, rate-limited PWM duty out.
package motor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/joachimth/trackbot/pkg/frame"
)

// tickPeriod is the period of the ramp loop.
const tickPeriod = 20 * time.Millisecond

// PWMPin is the hardware primitive the output stage drives. Duty is
// expressed in the stage's own resolution, 0 to 2^resolution-1.
type PWMPin interface {
	SetDuty(duty uint32) error
}

// Pins binds the four PWM channels of the dual H-bridge. Each side
// has a forward and a reverse channel; the stage never drives both
// channels of a side at the same time.
type Pins struct {
	LeftForward  PWMPin
	LeftReverse  PWMPin
	RightForward PWMPin
	RightReverse PWMPin
}

// Config holds the immutable motor stage parameters.
type Config struct {
	// Resolution is the PWM duty resolution in bits.
	Resolution int

	// RampRate is the time to slew across one unit of normalized
	// speed. Zero disables ramping (targets are applied directly).
	RampRate time.Duration

	// InvertLeft and InvertRight flip the polarity of a side before
	// direction mapping.
	InvertLeft  bool
	InvertRight bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Resolution < 1 || c.Resolution > 24 {
		return errors.Errorf("pwm resolution must be in [1, 24] bits, got %d", c.Resolution)
	}
	if c.RampRate < 0 {
		return errors.Errorf("ramp rate must not be negative, got %v", c.RampRate)
	}
	return nil
}

// Drive is the motor output stage. Targets are set by the control
// tick; the ramp loop advances the current speeds toward them and
// writes PWM duties.
type Drive struct {
	cfg     Config
	pins    Pins
	logger  *zap.Logger
	maxDuty uint32

	mu           sync.Mutex
	currentLeft  float64
	currentRight float64
	targetLeft   float64
	targetRight  float64
}

// New creates the output stage.
func New(cfg Config, pins Pins, logger *zap.Logger) (*Drive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "motor config")
	}
	if pins.LeftForward == nil || pins.LeftReverse == nil ||
		pins.RightForward == nil || pins.RightReverse == nil {
		return nil, errors.New("motor config: all four PWM pins are required")
	}
	return &Drive{
		cfg:     cfg,
		pins:    pins,
		logger:  logger,
		maxDuty: (1 << cfg.Resolution) - 1,
	}, nil
}

// SetTarget stores new target speeds, clamped to [-1, +1]. It never
// blocks beyond the state mutex and never fails.
func (d *Drive) SetTarget(left, right float64) {
	left = frame.Clamp(left)
	right = frame.Clamp(right)

	d.mu.Lock()
	d.targetLeft = left
	d.targetRight = right
	d.mu.Unlock()
}

// EmergencyStop zeroes targets and currents and commands zero duty on
// all four channels immediately, bypassing the ramp. Idempotent.
func (d *Drive) EmergencyStop() error {
	d.mu.Lock()
	d.targetLeft = 0
	d.targetRight = 0
	d.currentLeft = 0
	d.currentRight = 0
	d.mu.Unlock()

	err := multierr.Combine(
		d.pins.LeftForward.SetDuty(0),
		d.pins.LeftReverse.SetDuty(0),
		d.pins.RightForward.SetDuty(0),
		d.pins.RightReverse.SetDuty(0),
	)
	if err != nil {
		d.logger.Error("emergency stop: pwm write failed", zap.Error(err))
		return errors.Wrap(err, "emergency stop")
	}
	return nil
}

// Run drives the ramp loop until the context is cancelled. PWM
// failures are logged and dropped; the loop never exits on a
// hardware fault.
func (d *Drive) Run(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

// tick advances current speeds toward the targets by at most the
// ramp step, then applies them to the hardware.
func (d *Drive) tick() {
	d.mu.Lock()
	if d.cfg.RampRate > 0 {
		step := float64(tickPeriod) / float64(d.cfg.RampRate)
		d.currentLeft = ramp(d.currentLeft, d.targetLeft, step)
		d.currentRight = ramp(d.currentRight, d.targetRight, step)
	} else {
		d.currentLeft = d.targetLeft
		d.currentRight = d.targetRight
	}
	left, right := d.currentLeft, d.currentRight
	d.mu.Unlock()

	// Hardware writes happen outside the critical section.
	d.apply(left, right)
}

// ramp moves current toward target by at most step.
func ramp(current, target, step float64) float64 {
	diff := target - current
	if math.Abs(diff) <= step {
		return target
	}
	if diff > 0 {
		return current + step
	}
	return current - step
}

// apply maps the signed speeds to unipolar duties on the forward or
// reverse channel of each side, the other channel driven to zero.
func (d *Drive) apply(left, right float64) {
	if d.cfg.InvertLeft {
		left = -left
	}
	if d.cfg.InvertRight {
		right = -right
	}

	if err := d.applySide(left, d.pins.LeftForward, d.pins.LeftReverse); err != nil {
		d.logger.Error("left pwm write failed", zap.Error(err))
	}
	if err := d.applySide(right, d.pins.RightForward, d.pins.RightReverse); err != nil {
		d.logger.Error("right pwm write failed", zap.Error(err))
	}
}

func (d *Drive) applySide(v float64, forward, reverse PWMPin) error {
	duty := uint32(math.Round(math.Abs(v) * float64(d.maxDuty)))
	if v >= 0 {
		return multierr.Combine(reverse.SetDuty(0), forward.SetDuty(duty))
	}
	return multierr.Combine(forward.SetDuty(0), reverse.SetDuty(duty))
}

// Current returns the speeds currently applied to the PWM outputs.
func (d *Drive) Current() (left, right float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentLeft, d.currentRight
}
