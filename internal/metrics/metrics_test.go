package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joachimth/trackbot/pkg/frame"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.Frame(frame.SourceSerial)
	r.Frame(frame.SourceSerial)
	r.Frame(frame.SourceHTTP)
	r.SourceSwitch()
	r.Timeout()
	r.EStop()
	r.WatchdogDisarm()

	snap := r.Snapshot()
	assert.Equal(t, uint64(2), snap.Frames["serial"])
	assert.Equal(t, uint64(1), snap.Frames["http"])
	assert.Equal(t, uint64(1), snap.SourceSwitches)
	assert.Equal(t, uint64(1), snap.Timeouts)
	assert.Equal(t, uint64(1), snap.EStops)
	assert.Equal(t, uint64(1), snap.WatchdogDisarms)
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder

	r.Frame(frame.SourceHTTP)
	r.SourceSwitch()
	r.Timeout()
	r.EStop()
	r.WatchdogDisarm()

	snap := r.Snapshot()
	assert.Empty(t, snap.Frames)
}

func TestRecorder_ConcurrentUse(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Frame(frame.SourceGamepad)
				r.SourceSwitch()
			}
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, uint64(800), snap.Frames["gamepad"])
	assert.Equal(t, uint64(800), snap.SourceSwitches)
}
