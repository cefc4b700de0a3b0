// Package board binds the motor stage and status LED to real GPIO
// hardware through periph.io. Everything above this package talks to
// pins through narrow interfaces; this is the only file that knows
// the host's pin registry.
package board

import (
	"github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// Init loads the periph host drivers. Must be called once before any
// pin lookup.
func Init() error {
	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "periph host init")
	}
	return nil
}

// PWMOut drives one H-bridge channel. Duty values arrive in the motor
// stage's resolution and are rescaled to periph's duty range.
type PWMOut struct {
	pin     gpio.PinIO
	freq    physic.Frequency
	maxDuty uint32
}

// NewPWMOut resolves a pin by name (e.g. "GPIO18") and prepares it
// for PWM at freqHz with the given duty resolution in bits.
func NewPWMOut(name string, freqHz int, resolution int) (*PWMOut, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no such pin %q", name)
	}
	return &PWMOut{
		pin:     pin,
		freq:    physic.Frequency(freqHz) * physic.Hertz,
		maxDuty: (1 << resolution) - 1,
	}, nil
}

// SetDuty applies the duty cycle. duty is clamped to the configured
// resolution before rescaling.
func (p *PWMOut) SetDuty(duty uint32) error {
	if duty > p.maxDuty {
		duty = p.maxDuty
	}
	scaled := gpio.Duty(uint64(duty) * uint64(gpio.DutyMax) / uint64(p.maxDuty))
	if err := p.pin.PWM(scaled, p.freq); err != nil {
		return errors.Wrapf(err, "pwm %s", p.pin.Name())
	}
	return nil
}

// LED is a plain on/off output for the status blinker.
type LED struct {
	pin gpio.PinIO
}

// NewLED resolves the status LED pin by name.
func NewLED(name string) (*LED, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no such pin %q", name)
	}
	return &LED{pin: pin}, nil
}

// Out sets the LED level.
func (l *LED) Out(on bool) error {
	return l.pin.Out(gpio.Level(on))
}
