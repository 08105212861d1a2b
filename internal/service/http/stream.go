package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vladislavdragonenkov/canteen/internal/service/projection"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// streamProjections отдаёт срезы проекций по websocket: текущий сразу, затем каждый новый.
// Поток завершается при отключении клиента или остановке Hub.
func (s *Server) streamProjections(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	updates, unsubscribe := s.hub.Subscribe()
	s.logger.WithField("subscribers", s.hub.Subscribers()).Debug("projection stream opened")

	s.streams.Add(2)
	go func() {
		defer s.streams.Done()
		s.writePump(conn, updates)
	}()
	go func() {
		defer s.streams.Done()
		s.readPump(conn, unsubscribe)
	}()
}

// readPump читает управляющие кадры до ошибки и отписывает клиента.
func (s *Server) readPump(conn *websocket.Conn, unsubscribe func()) {
	defer unsubscribe()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Warn("projection stream read failed")
			}
			return
		}
	}
}

// writePump владеет записью в соединение и закрывает его при выходе.
func (s *Server) writePump(conn *websocket.Conn, updates <-chan projection.Snapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
