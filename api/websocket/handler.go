package websocket

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/slyxzy/collab-code-editor/internal/errors"
	"github.com/slyxzy/collab-code-editor/internal/logger"
	ws "github.com/slyxzy/collab-code-editor/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     ws.CheckOrigin,
}

// handles WebSocket connections for real-time collaboration. The
// connection starts unjoined; a session_id query parameter is treated
// as an immediate join-session message.
func WebSocketHandler(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params ConnectParams
		if err := c.ShouldBindQuery(&params); err != nil {
			errors.BadRequest(c, "invalid parameters", err)
			return
		}

		// check connection limits before accepting new connection
		ipAddress := c.ClientIP()
		canAccept, reason := hub.CanAcceptConnection(ipAddress)

		if !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		clientID, err := ws.GenerateClientID()
		if err != nil {
			errors.InternalError(c, "failed to generate client ID", err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection",
				"ip", ipAddress,
			)
			return
		}

		// track IP connection only after successful upgrade
		hub.TrackIPConnection(ipAddress)

		client := ws.NewClient(clientID, ipAddress, conn, hub)
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		if params.SessionID != "" {
			joinMsg, err := ws.NewMessage(ws.TypeJoinSession, params.SessionID, clientID, ws.JoinSessionPayload{
				SessionID: params.SessionID,
			})
			if err == nil {
				joinMsg.ClientID = clientID
				hub.Broadcast <- joinMsg
			}
		}

		logger.Info("websocket connection established",
			"client_id", clientID,
			"ip", ipAddress,
		)
	}
}
