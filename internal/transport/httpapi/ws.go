package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/joachimth/trackbot/pkg/frame"
)

// statusPushPeriod is how often the armed/source snapshot is pushed
// to connected WebSocket clients.
const statusPushPeriod = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	// The control surface lives on the robot's own network; the
	// browser page is served from the same origin but tools like
	// wscat are legitimate clients too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and consumes the same JSON frame
// objects the serial line accepts, one per WebSocket message. A
// status snapshot is pushed periodically on the same connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("websocket control client connected",
		zap.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})
	go s.pushStatus(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleWSMessage(data)
	}
	close(done)

	// Quiescence on disconnect: the manager sees a zero frame so the
	// failsafe chain takes over immediately instead of waiting for
	// the source timeout.
	s.mgr.Submit(frame.SourceHTTP, frame.Frame{Timestamp: time.Now()})
	s.logger.Info("websocket control client disconnected")
}

func (s *Server) handleWSMessage(data []byte) {
	var msg frame.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("dropping malformed websocket frame", zap.Error(err))
		return
	}
	s.mgr.Submit(frame.SourceHTTP, msg.Frame(time.Now()))
}

// pushStatus is the connection's sole writer.
func (s *Server) pushStatus(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(statusPushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			status := frame.Status{
				Armed:  s.safety.IsArmed(),
				Source: int(s.mgr.ActiveSource()),
			}
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		}
	}
}
