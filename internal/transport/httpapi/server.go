// Package httpapi exposes the local HTTP control surface: REST
// endpoints for the web UI plus a WebSocket channel for low-latency
// browser control.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/joachimth/trackbot/internal/metrics"
	"github.com/joachimth/trackbot/pkg/frame"
)

// Manager is the arbitration surface the adapter submits to.
type Manager interface {
	Submit(src frame.Source, f frame.Frame)
	ActiveSource() frame.Source
}

// Safety exposes the armed gate for the status endpoint.
type Safety interface {
	IsArmed() bool
}

// Server is the HTTP input adapter.
type Server struct {
	mgr    Manager
	safety Safety
	rec    *metrics.Recorder
	logger *zap.Logger
	srv    *http.Server
}

// New creates the HTTP adapter listening on addr.
func New(addr string, mgr Manager, safety Safety, rec *metrics.Recorder, logger *zap.Logger) *Server {
	s := &Server{
		mgr:    mgr,
		safety: safety,
		rec:    rec,
		logger: logger,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.handleControl)
	mux.HandleFunc("/estop", s.handleEStop)
	mux.HandleFunc("/arm", s.handleArm)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	s.logger.Info("http control surface listening", zap.String("addr", s.srv.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// handleControl accepts {"throttle":, "steering":, "slow_mode":} and
// submits a motion frame. E-stop and arm have their own endpoints.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg frame.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.logger.Warn("dropping malformed control body", zap.Error(err))
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	f := frame.Frame{Timestamp: time.Now()}
	if msg.Throttle != nil {
		f.Throttle = frame.Clamp(*msg.Throttle)
	}
	if msg.Steering != nil {
		f.Steering = frame.Clamp(*msg.Steering)
	}
	if msg.SlowMode != nil {
		f.SlowMode = *msg.SlowMode
	}
	s.mgr.Submit(frame.SourceHTTP, f)

	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleEStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mgr.Submit(frame.SourceHTTP, frame.Frame{EStop: true, Timestamp: time.Now()})
	writeJSON(w, map[string]string{"status": "estop"})
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mgr.Submit(frame.SourceHTTP, frame.Frame{Arm: true, Timestamp: time.Now()})
	writeJSON(w, map[string]string{"status": "armed"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, frame.Status{
		Armed:  s.safety.IsArmed(),
		Source: int(s.mgr.ActiveSource()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.rec.Snapshot())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
