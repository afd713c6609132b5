package session

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// monitorInterval is the frame rate of the websocket feed.
const monitorInterval = time.Second

// The host serves a closed rig network; origins are not checked.
var monitorUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Monitor handles GET /sessions/{session_id}/monitor: a websocket feed
// pushing one MonitorFrame per second until the client disconnects or the
// session is removed.
func (h *Handler) Monitor(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := monitorUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("monitor upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(closed)
				return
			}
		}
	}()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		frame, err := eng.Monitor()
		if err != nil {
			return
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
