// Package config handles robot configuration. Everything is read
// once at boot from the environment; nothing persists across reboots.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/joachimth/trackbot/internal/mixer"
	"github.com/joachimth/trackbot/internal/motor"
)

// Config holds all robot configuration.
type Config struct {
	// Safety
	FailsafeTimeoutMS int

	// Mixer tuning, in percent
	MixerDeadzonePct int
	MixerExpoPct     int
	MixerMaxSpeedPct int
	MixerSlowModePct int

	// Motor / PWM
	MotorLeftForwardPin  string
	MotorLeftReversePin  string
	MotorRightForwardPin string
	MotorRightReversePin string
	PWMFreqHz            int
	PWMResolutionBits    int
	RampRateMS           int
	InvertLeftMotor      bool
	InvertRightMotor     bool

	// Adapters
	HTTPEnabled    bool
	HTTPAddr       string
	SerialEnabled  bool
	SerialPort     string
	SerialBaud     int
	GamepadEnabled bool

	// Status LED; empty disables the blinker
	StatusLEDPin string
}

// Load reads configuration from environment variables, falling back
// to defaults for a Raspberry Pi with a BTS7960 driver board.
func Load() (*Config, error) {
	cfg := &Config{
		FailsafeTimeoutMS: 1000,

		MixerDeadzonePct: 5,
		MixerExpoPct:     30,
		MixerMaxSpeedPct: 100,
		MixerSlowModePct: 30,

		MotorLeftForwardPin:  "GPIO18",
		MotorLeftReversePin:  "GPIO19",
		MotorRightForwardPin: "GPIO12",
		MotorRightReversePin: "GPIO13",
		PWMFreqHz:            20000,
		PWMResolutionBits:    10,
		RampRateMS:           500,

		HTTPEnabled:    true,
		HTTPAddr:       ":8080",
		SerialEnabled:  false,
		SerialPort:     "/dev/ttyAMA0",
		SerialBaud:     115200,
		GamepadEnabled: true,
	}

	cfg.FailsafeTimeoutMS = envInt("FAILSAFE_TIMEOUT_MS", cfg.FailsafeTimeoutMS)

	cfg.MixerDeadzonePct = envInt("MIXER_DEADZONE_PCT", cfg.MixerDeadzonePct)
	cfg.MixerExpoPct = envInt("MIXER_EXPO_PCT", cfg.MixerExpoPct)
	cfg.MixerMaxSpeedPct = envInt("MIXER_MAX_SPEED_PCT", cfg.MixerMaxSpeedPct)
	cfg.MixerSlowModePct = envInt("MIXER_SLOW_MODE_PCT", cfg.MixerSlowModePct)

	cfg.MotorLeftForwardPin = envStr("MOTOR_LEFT_FWD_PIN", cfg.MotorLeftForwardPin)
	cfg.MotorLeftReversePin = envStr("MOTOR_LEFT_REV_PIN", cfg.MotorLeftReversePin)
	cfg.MotorRightForwardPin = envStr("MOTOR_RIGHT_FWD_PIN", cfg.MotorRightForwardPin)
	cfg.MotorRightReversePin = envStr("MOTOR_RIGHT_REV_PIN", cfg.MotorRightReversePin)
	cfg.PWMFreqHz = envInt("PWM_FREQ_HZ", cfg.PWMFreqHz)
	cfg.PWMResolutionBits = envInt("PWM_RESOLUTION_BITS", cfg.PWMResolutionBits)
	cfg.RampRateMS = envInt("RAMP_RATE_MS", cfg.RampRateMS)
	cfg.InvertLeftMotor = envBool("INVERT_LEFT_MOTOR", cfg.InvertLeftMotor)
	cfg.InvertRightMotor = envBool("INVERT_RIGHT_MOTOR", cfg.InvertRightMotor)

	cfg.HTTPEnabled = envBool("HTTP_ENABLED", cfg.HTTPEnabled)
	cfg.HTTPAddr = envStr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.SerialEnabled = envBool("SERIAL_ENABLED", cfg.SerialEnabled)
	cfg.SerialPort = envStr("SERIAL_PORT", cfg.SerialPort)
	cfg.SerialBaud = envInt("SERIAL_BAUD", cfg.SerialBaud)
	cfg.GamepadEnabled = envBool("GAMEPAD_ENABLED", cfg.GamepadEnabled)

	cfg.StatusLEDPin = envStr("STATUS_LED_PIN", cfg.StatusLEDPin)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks all boot-time parameters. Any violation is fatal.
func (c *Config) Validate() error {
	if c.FailsafeTimeoutMS <= 0 {
		return errors.Errorf("failsafe timeout must be positive, got %d ms", c.FailsafeTimeoutMS)
	}
	if err := c.Mixer().Validate(); err != nil {
		return err
	}
	if err := c.Motor().Validate(); err != nil {
		return err
	}
	if c.PWMFreqHz <= 0 {
		return errors.Errorf("pwm frequency must be positive, got %d Hz", c.PWMFreqHz)
	}
	if c.HTTPEnabled && c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required when the http adapter is enabled")
	}
	if c.SerialEnabled {
		if c.SerialPort == "" {
			return errors.New("SERIAL_PORT is required when the serial adapter is enabled")
		}
		if c.SerialBaud <= 0 {
			return errors.Errorf("serial baud must be positive, got %d", c.SerialBaud)
		}
	}
	return nil
}

// FailsafeTimeout returns the source/watchdog timeout as a duration.
func (c *Config) FailsafeTimeout() time.Duration {
	return time.Duration(c.FailsafeTimeoutMS) * time.Millisecond
}

// Mixer converts the percentage tuning into a mixer configuration.
func (c *Config) Mixer() mixer.Config {
	return mixer.Config{
		Deadzone:       float64(c.MixerDeadzonePct) / 100,
		Expo:           float64(c.MixerExpoPct) / 100,
		MaxSpeed:       float64(c.MixerMaxSpeedPct) / 100,
		SlowModeFactor: float64(c.MixerSlowModePct) / 100,
	}
}

// Motor returns the motor stage configuration.
func (c *Config) Motor() motor.Config {
	return motor.Config{
		Resolution:  c.PWMResolutionBits,
		RampRate:    time.Duration(c.RampRateMS) * time.Millisecond,
		InvertLeft:  c.InvertLeftMotor,
		InvertRight: c.InvertRightMotor,
	}
}

// envStr returns the env var, or the default if unset.
func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envInt returns the env var as int, or the default if unset or
// invalid.
func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envBool returns the env var as bool, or the default if unset or
// invalid.
func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
