package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/log"
)

// Submitter accepts landmark bundles.
type Submitter interface {
	Submit(b landmark.Bundle) bool
}

// FramesHandler ingests landmark bundles over WebSocket, one JSON bundle per
// text message.
type FramesHandler struct {
	sink Submitter
}

// NewFramesHandler creates a FramesHandler feeding sink.
func NewFramesHandler(sink Submitter) *FramesHandler {
	return &FramesHandler{sink: sink}
}

type frameError struct {
	Error string `json:"error"`
}

// ServeHTTP implements http.Handler.
func (h *FramesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "path", r.URL.Path, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	log.Info("frame source connected", "remote", r.RemoteAddr)
	var frames, rejected int
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("frame source read failed", "remote", r.RemoteAddr, "error", err)
			}
			break
		}
		if kind != websocket.TextMessage {
			continue
		}

		var b landmark.Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			rejected++
			conn.WriteJSON(frameError{Error: "invalid bundle: " + err.Error()})
			continue
		}
		frames++
		h.sink.Submit(b)
	}
	log.Info("frame source disconnected", "remote", r.RemoteAddr, "frames", frames, "rejected", rejected)
}
