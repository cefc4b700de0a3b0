// Package main is the entry point for the tracked robot firmware
// core. It wires the input adapters, the arbitration manager, the
// safety monitor and the motor output stage together at boot; there
// are no ambient singletons.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	goserial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/joachimth/trackbot/config"
	"github.com/joachimth/trackbot/internal/board"
	"github.com/joachimth/trackbot/internal/control"
	"github.com/joachimth/trackbot/internal/metrics"
	"github.com/joachimth/trackbot/internal/mixer"
	"github.com/joachimth/trackbot/internal/motor"
	"github.com/joachimth/trackbot/internal/safety"
	"github.com/joachimth/trackbot/internal/statusled"
	"github.com/joachimth/trackbot/internal/transport/gamepad"
	"github.com/joachimth/trackbot/internal/transport/httpapi"
	"github.com/joachimth/trackbot/internal/transport/serialline"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting trackbot",
		zap.Duration("failsafe_timeout", cfg.FailsafeTimeout()),
		zap.Bool("http", cfg.HTTPEnabled),
		zap.Bool("serial", cfg.SerialEnabled),
		zap.Bool("gamepad", cfg.GamepadEnabled))

	a := newAgent(cfg, logger)
	if err := a.run(ctx, cancel); err != nil {
		logger.Fatal("trackbot failed", zap.Error(err))
	}
}

// agent coordinates all subsystems.
type agent struct {
	cfg    *config.Config
	logger *zap.Logger

	rec     *metrics.Recorder
	motors  *motor.Drive
	safety  *safety.Monitor
	manager *control.Manager
	httpSrv *httpapi.Server
	serial  *serialline.Reader
	pad     *gamepad.Adapter
	led     *statusled.Blinker

	serialPort io.Closer
}

func newAgent(cfg *config.Config, logger *zap.Logger) *agent {
	return &agent{
		cfg:    cfg,
		logger: logger,
		rec:    metrics.NewRecorder(),
	}
}

func (a *agent) run(ctx context.Context, cancel context.CancelFunc) error {
	if err := a.initComponents(); err != nil {
		return err
	}

	go a.motors.Run(ctx)
	go a.safety.Run(ctx)
	go a.manager.Run(ctx)

	if a.led != nil {
		go a.led.Run(ctx)
	}
	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.Run(ctx); err != nil {
				a.logger.Error("http adapter failed", zap.Error(err))
				cancel()
			}
		}()
	}
	if a.serial != nil {
		go func() {
			if err := a.serial.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("serial adapter failed", zap.Error(err))
			}
		}()
	}

	a.logger.Info("all subsystems running, state disarmed")
	if a.led != nil {
		a.led.SetPattern(statusled.PatternDisarmed)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	cancel()
	return a.shutdown()
}

func (a *agent) initComponents() error {
	if err := board.Init(); err != nil {
		return err
	}

	pins, err := a.motorPins()
	if err != nil {
		return err
	}
	a.motors, err = motor.New(a.cfg.Motor(), pins, a.logger)
	if err != nil {
		return err
	}

	a.safety = safety.NewMonitor(a.cfg.FailsafeTimeout(), a.motors, a.logger)
	a.safety.OnStateChange(a.onSafetyChange)

	mix, err := mixer.New(a.cfg.Mixer())
	if err != nil {
		return err
	}

	a.manager = control.NewManager(
		a.cfg.FailsafeTimeout(), a.safety, mix, a.motors, a.rec, a.logger)

	if a.cfg.HTTPEnabled {
		a.httpSrv = httpapi.New(a.cfg.HTTPAddr, a.manager, a.safety, a.rec, a.logger)
	}

	if a.cfg.SerialEnabled {
		port, err := goserial.Open(goserial.OpenOptions{
			PortName:        a.cfg.SerialPort,
			BaudRate:        uint(a.cfg.SerialBaud),
			DataBits:        8,
			StopBits:        1,
			MinimumReadSize: 1,
		})
		if err != nil {
			return err
		}
		a.serialPort = port
		a.serial = serialline.NewReader(port, a.manager, a.logger)
	}

	if a.cfg.GamepadEnabled {
		// The Bluetooth HID stack is an external collaborator; it
		// delivers events through HandleState and HandleDisconnect.
		a.pad = gamepad.New(a.manager, a.logger)
	}

	if a.cfg.StatusLEDPin != "" {
		led, err := board.NewLED(a.cfg.StatusLEDPin)
		if err != nil {
			return err
		}
		a.led = statusled.New(led, a.logger)
	}

	a.logger.Info("components initialized")
	return nil
}

func (a *agent) motorPins() (motor.Pins, error) {
	var pins motor.Pins
	var err error

	freq := a.cfg.PWMFreqHz
	res := a.cfg.PWMResolutionBits

	if pins.LeftForward, err = board.NewPWMOut(a.cfg.MotorLeftForwardPin, freq, res); err != nil {
		return pins, err
	}
	if pins.LeftReverse, err = board.NewPWMOut(a.cfg.MotorLeftReversePin, freq, res); err != nil {
		return pins, err
	}
	if pins.RightForward, err = board.NewPWMOut(a.cfg.MotorRightForwardPin, freq, res); err != nil {
		return pins, err
	}
	if pins.RightReverse, err = board.NewPWMOut(a.cfg.MotorRightReversePin, freq, res); err != nil {
		return pins, err
	}
	return pins, nil
}

// onSafetyChange mirrors safety transitions onto the LED and the
// counters. Runs under the safety lock: no calls back into safety.
func (a *agent) onSafetyChange(change safety.StateChange) {
	switch change.Event {
	case safety.EventEStop:
		a.rec.EStop()
	case safety.EventWatchdogTimeout:
		a.rec.WatchdogDisarm()
	}

	if a.led == nil {
		return
	}
	switch change.To {
	case safety.StateArmed:
		a.led.SetPattern(statusled.PatternArmed)
	case safety.StateEStop:
		a.led.SetPattern(statusled.PatternEStop)
	default:
		a.led.SetPattern(statusled.PatternDisarmed)
	}
}

func (a *agent) shutdown() error {
	a.logger.Info("initiating shutdown")

	// Motors first: quiescence before anything else goes away.
	err := a.motors.EmergencyStop()

	if a.serialPort != nil {
		err = multierr.Append(err, a.serialPort.Close())
	}

	a.logger.Info("shutdown complete")
	return err
}
