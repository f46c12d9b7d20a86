package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Marketplace frontends embed the widget from any origin
	},
}

// subscribeMessage lets a connected client follow additional subjects
// without opening more connections.
type subscribeMessage struct {
	Type      string `json:"type"`
	SubjectID string `json:"subjectId"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	subjectID := c.Param("subject")
	if subjectID == "" {
		return c.String(http.StatusBadRequest, "subject id is required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	connID, err := s.hub.Subscribe(subjectID, conn)
	if err != nil {
		// Subscribe already closed the connection on rejection.
		return nil
	}

	// Read pump. Blocks until the connection closes; incoming subscribe
	// messages attach this connection to further subjects.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var sub subscribeMessage
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != "subscribe" || sub.SubjectID == "" {
			continue
		}
		if err := s.hub.Attach(connID, sub.SubjectID); err != nil {
			slog.Warn("Subject attach rejected", "subjectId", sub.SubjectID, "error", err)
		}
	}

	s.hub.Disconnect(connID)
	return nil
}
