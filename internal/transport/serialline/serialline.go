// Package serialline adapts a line-oriented text channel into control
// frames: one JSON object per LF- or CR-terminated line.
package serialline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/joachimth/trackbot/pkg/frame"
)

// Submitter receives the normalized frames.
type Submitter interface {
	Submit(src frame.Source, f frame.Frame)
}

// Reader consumes JSON lines from a byte stream and submits control
// frames. The underlying transport (a UART opened in cmd, a pipe in
// tests) is just an io.Reader.
type Reader struct {
	r      io.Reader
	mgr    Submitter
	logger *zap.Logger
}

// NewReader creates a serial line adapter.
func NewReader(r io.Reader, mgr Submitter, logger *zap.Logger) *Reader {
	return &Reader{r: r, mgr: mgr, logger: logger}
}

// Run reads lines until the stream ends or the context is cancelled.
// Malformed lines are logged and dropped; they never stop the loop.
// Cancellation relies on the caller closing the underlying transport,
// which unblocks the pending read.
func (r *Reader) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.r)
	scanner.Split(scanLines)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.handleLine(scanner.Bytes(), time.Now())
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// handleLine parses a single line and submits the resulting frame.
func (r *Reader) handleLine(line []byte, now time.Time) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var msg frame.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		r.logger.Warn("dropping malformed control line",
			zap.ByteString("line", line),
			zap.Error(err))
		return
	}

	f := msg.Frame(now)
	r.mgr.Submit(frame.SourceSerial, f)
	r.logger.Debug("serial frame",
		zap.Float64("throttle", f.Throttle),
		zap.Float64("steering", f.Steering),
		zap.Bool("estop", f.EStop),
		zap.Bool("arm", f.Arm))
}

// scanLines splits on LF or CR so either terminator ends a command.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
