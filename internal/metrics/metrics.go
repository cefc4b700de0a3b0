// Package metrics collects lightweight counters about the control
// pipeline for the HTTP status surface.
package metrics

import (
	"sync"

	"github.com/joachimth/trackbot/pkg/frame"
)

// Recorder accumulates control pipeline counters. A nil Recorder is
// valid and records nothing.
type Recorder struct {
	mu              sync.Mutex
	frames          map[frame.Source]uint64
	sourceSwitches  uint64
	timeouts        uint64
	estops          uint64
	watchdogDisarms uint64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{frames: make(map[frame.Source]uint64)}
}

// Frame counts a submitted control frame.
func (r *Recorder) Frame(src frame.Source) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.frames[src]++
	r.mu.Unlock()
}

// SourceSwitch counts an active-source change.
func (r *Recorder) SourceSwitch() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.sourceSwitches++
	r.mu.Unlock()
}

// Timeout counts a source expiry by the control tick.
func (r *Recorder) Timeout() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.timeouts++
	r.mu.Unlock()
}

// EStop counts an emergency stop latch.
func (r *Recorder) EStop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.estops++
	r.mu.Unlock()
}

// WatchdogDisarm counts a failsafe watchdog disarm.
func (r *Recorder) WatchdogDisarm() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.watchdogDisarms++
	r.mu.Unlock()
}

// Snapshot is the JSON shape served on GET /metrics.
type Snapshot struct {
	Frames          map[string]uint64 `json:"frames"`
	SourceSwitches  uint64            `json:"source_switches"`
	Timeouts        uint64            `json:"timeouts"`
	EStops          uint64            `json:"estops"`
	WatchdogDisarms uint64            `json:"watchdog_disarms"`
}

// Snapshot returns a copy of the current counters.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{Frames: map[string]uint64{}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := make(map[string]uint64, len(r.frames))
	for src, n := range r.frames {
		frames[src.String()] = n
	}
	return Snapshot{
		Frames:          frames,
		SourceSwitches:  r.sourceSwitches,
		Timeouts:        r.timeouts,
		EStops:          r.estops,
		WatchdogDisarms: r.watchdogDisarms,
	}
}
