package websocket

import (
	"github.com/gin-gonic/gin"

	ws "github.com/slyxzy/collab-code-editor/internal/websocket"
)

func RegisterRoutes(router *gin.RouterGroup, hub *ws.Hub) {
	router.GET("/ws", WebSocketHandler(hub))
}
