// Package mixer converts throttle/steering input into left/right
// track speeds for a differential drive.
package mixer

import (
	"math"

	"github.com/pkg/errors"

	"github.com/joachimth/trackbot/pkg/frame"
)

// Config holds the mixer tuning parameters. Immutable after init.
type Config struct {
	Deadzone       float64 // input band mapped to zero, 0.0 to 0.2
	Expo           float64 // cubic shaping amount, 0.0 to 1.0
	MaxSpeed       float64 // output speed limit, 0.0 to 1.0
	SlowModeFactor float64 // slow mode multiplier, 0.0 to 1.0
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.Deadzone < 0 || c.Deadzone > 0.2 {
		return errors.Errorf("deadzone must be in [0, 0.2], got %v", c.Deadzone)
	}
	if c.Expo < 0 || c.Expo > 1 {
		return errors.Errorf("expo must be in [0, 1], got %v", c.Expo)
	}
	if c.MaxSpeed < 0 || c.MaxSpeed > 1 {
		return errors.Errorf("max speed must be in [0, 1], got %v", c.MaxSpeed)
	}
	if c.SlowModeFactor < 0 || c.SlowModeFactor > 1 {
		return errors.Errorf("slow mode factor must be in [0, 1], got %v", c.SlowModeFactor)
	}
	return nil
}

// Mixer maps (throttle, steering, slow) to (left, right). It has no
// state beyond its configuration and never fails after construction.
type Mixer struct {
	cfg Config
}

// New creates a mixer, rejecting out-of-range configuration.
func New(cfg Config) (*Mixer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "mixer config")
	}
	return &Mixer{cfg: cfg}, nil
}

// Mix converts throttle and steering into left/right track speeds.
//
// Stages, in order: deadzone, expo, differential mix, clamp, max
// speed scale, slow mode scale. The clamp precedes scaling so that
// MaxSpeed bounds the actual output instead of being absorbed by
// saturation.
func (m *Mixer) Mix(throttle, steering float64, slow bool) (left, right float64) {
	throttle = frame.Clamp(throttle)
	steering = frame.Clamp(steering)

	throttle = applyExpo(applyDeadzone(throttle, m.cfg.Deadzone), m.cfg.Expo)
	steering = applyExpo(applyDeadzone(steering, m.cfg.Deadzone), m.cfg.Expo)

	left = frame.Clamp(throttle + steering)
	right = frame.Clamp(throttle - steering)

	left *= m.cfg.MaxSpeed
	right *= m.cfg.MaxSpeed

	if slow {
		left *= m.cfg.SlowModeFactor
		right *= m.cfg.SlowModeFactor
	}

	return left, right
}

// applyDeadzone zeroes inputs inside the deadzone and rescales the
// remaining travel so full deflection still reaches 1.
func applyDeadzone(v, deadzone float64) float64 {
	if math.Abs(v) < deadzone {
		return 0
	}
	sign := 1.0
	if v < 0 {
		sign = -1.0
	}
	return sign * (math.Abs(v) - deadzone) / (1 - deadzone)
}

// applyExpo softens small-input response while preserving full-scale
// travel: expo*v^3 + (1-expo)*v.
func applyExpo(v, expo float64) float64 {
	return expo*v*v*v + (1-expo)*v
}
