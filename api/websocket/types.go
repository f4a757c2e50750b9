package websocket

// optional query parameters on the upgrade request. Joining a session
// happens over the socket itself via a join-session message.
type ConnectParams struct {
	SessionID string `form:"session_id" binding:"max=128"`
}
