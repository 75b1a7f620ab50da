package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// cameraMaxFrameSize bounds one JPEG frame from the camera board.
const cameraMaxFrameSize = 4 << 20

// cameraWriteWait bounds a reply to the camera.
const cameraWriteWait = 5 * time.Second

// handleCameraLink accepts the camera board's WebSocket. The board cannot
// carry a user token, so this endpoint is unauthenticated; it only ever
// receives frames and status and answers with mode changes.
func (s *Server) handleCameraLink(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("camera websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(cameraMaxFrameSize)
	s.logger.Info("camera connected", "remote", r.RemoteAddr)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("camera read error", "error", err)
			} else {
				s.logger.Info("camera disconnected", "error", err)
			}
			return
		}

		reply := s.camera.HandleDeviceMessage(data, msgType == websocket.TextMessage)
		if reply == nil {
			continue
		}
		//nolint:errcheck // Best-effort deadline; write error caught below
		conn.SetWriteDeadline(time.Now().Add(cameraWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			s.logger.Warn("camera reply failed", "error", err)
			return
		}
	}
}
