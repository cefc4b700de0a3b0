// Package statusled blinks the status LED according to the safety
// state. Lowest priority in the system; purely an observer.
package statusled

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pattern selects a blink cadence.
type Pattern int

const (
	PatternBoot     Pattern = iota // fast blink while booting
	PatternDisarmed                // slow blink
	PatternArmed                   // solid on
	PatternEStop                   // very fast blink
)

// Pin is the output primitive the blinker drives.
type Pin interface {
	Out(on bool) error
}

// Blinker drives the status LED. Pattern changes take effect on the
// next blink phase.
type Blinker struct {
	pin    Pin
	logger *zap.Logger

	mu      sync.Mutex
	pattern Pattern
}

// New creates a blinker in the boot pattern.
func New(pin Pin, logger *zap.Logger) *Blinker {
	return &Blinker{pin: pin, logger: logger, pattern: PatternBoot}
}

// SetPattern selects the blink pattern.
func (b *Blinker) SetPattern(p Pattern) {
	b.mu.Lock()
	b.pattern = p
	b.mu.Unlock()
}

// Run blinks until the context is cancelled, then turns the LED off.
func (b *Blinker) Run(ctx context.Context) {
	defer b.set(false)

	for {
		on, off := b.phase()
		if !b.sleepOn(ctx, on, off) {
			return
		}
	}
}

// phase returns the on and off durations of the current pattern. An
// off duration of zero means solid on.
func (b *Blinker) phase() (on, off time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.pattern {
	case PatternArmed:
		return 100 * time.Millisecond, 0
	case PatternEStop:
		return 50 * time.Millisecond, 50 * time.Millisecond
	case PatternDisarmed:
		return 1000 * time.Millisecond, 1000 * time.Millisecond
	default: // boot
		return 100 * time.Millisecond, 100 * time.Millisecond
	}
}

// sleepOn runs one on/off cycle; false means the context ended.
func (b *Blinker) sleepOn(ctx context.Context, on, off time.Duration) bool {
	b.set(true)
	if !sleep(ctx, on) {
		return false
	}
	if off > 0 {
		b.set(false)
		if !sleep(ctx, off) {
			return false
		}
	}
	return true
}

func (b *Blinker) set(on bool) {
	if err := b.pin.Out(on); err != nil {
		b.logger.Debug("status led write failed", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
