package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slyxzy/collab-code-editor/internal/registry"
)

// message type constants for websocket communication
const (
	// inbound: sent by a client to join (or switch to) a session
	TypeJoinSession = "join-session"

	// inbound: sent by a client when the buffer changes
	TypeCodeChange = "code-change"

	// inbound: sent by a client when the language tag changes
	TypeLanguageChange = "language-change"

	// inbound: sent by a client when its cursor moves
	TypeCursorMove = "cursor-move"

	// is sent to the joining client with the full session state
	TypeSessionInit = "session-init"

	// is sent to other members when a user joins
	TypeUserJoined = "user-joined"

	// is sent to all members with the refreshed presence list
	TypeUsersUpdate = "users-update"

	// is sent to other members when the buffer changes
	TypeCodeUpdate = "code-update"

	// is sent to other members when the language tag changes
	TypeLanguageUpdate = "language-update"

	// is sent to other members when a cursor moves
	TypeCursorUpdate = "cursor-update"

	// is sent to remaining members when a user leaves
	TypeUserLeft = "user-left"

	// is sent when an error occurs
	TypeError = "error"

	// is sent by clients to keep the connection alive
	TypePing = "ping"

	// is sent by server in response to ping
	TypePong = "pong"

	// is sent by server before shutdown
	TypeServerShutdown = "server-shutdown"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512 KB

	// maximum code updates per second per client
	maxCodeUpdatesPerSecond = 10

	// maximum buffer size accepted in a code-change
	maxCodeSize = 100 * 1024 // 100 KB
)

// hub connection limit constants
const (
	maxConnectionsPerIP = 10
)

// name persisted when an event carries no session name
const fallbackSessionName = "Untitled"

// errors
var (
	ErrInvalidPayload    = errors.New("invalid message payload")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// represents a websocket message with typed payload
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	ClientID  string          `json:"-"` // internal only, not sent to clients
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  uint64          `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// inbound payloads

// identifies the session a client wants to join
type JoinSessionPayload struct {
	SessionID string `json:"session_id"`
}

// carries the full replacement buffer for a session
type CodeChangePayload struct {
	Code        string `json:"code"`
	SessionName string `json:"session_name,omitempty"`
}

// carries the new language tag for a session
type LanguageChangePayload struct {
	Language    string `json:"language"`
	SessionName string `json:"session_name,omitempty"`
}

// carries an opaque cursor position; the server relays it unparsed
type CursorMovePayload struct {
	Position json.RawMessage `json:"position"`
}

// outbound payloads

// contains the full session state sent to a joining client
type SessionInitPayload struct {
	Code     string              `json:"code"`
	Language string              `json:"language"`
	Users    []registry.Presence `json:"users"`
}

// announces a newly joined user to existing members
type UserJoinedPayload struct {
	User registry.Presence `json:"user"`
}

// carries the authoritative roster after any membership change
type UsersUpdatePayload struct {
	Users []registry.Presence `json:"users"`
}

// contains the replacement buffer broadcast to other members
type CodeUpdatePayload struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

// contains the new language tag broadcast to other members
type LanguageUpdatePayload struct {
	Language string `json:"language"`
}

// contains a relayed cursor position
type CursorUpdatePayload struct {
	UserID   string          `json:"user_id"`
	Position json.RawMessage `json:"position"`
}

// identifies a departed user
type UserLeftPayload struct {
	ID string `json:"id"`
}

// contains information about server shutdown
type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// describes a processing failure reported back to the sender
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// represents a websocket client connection
type Client struct {
	// unique identifier for this connection; doubles as the user id in
	// broadcasts and activity logs
	ID string

	// IP address of the client (for connection tracking)
	IPAddress string

	// websocket connection
	conn *websocket.Conn

	// hub reference for message forwarding
	hub *Hub

	// buffered channel of outbound messages
	send chan []byte

	// mutex for thread-safe operations
	mu sync.RWMutex

	// session this connection has joined; empty while unjoined
	sessionID string

	// flag indicating if client is closed
	closed bool

	// rate limiting: code update timestamps (sliding window)
	codeUpdateTimestamps []time.Time
}

// maintains the set of connected clients, per-session membership and
// session-scoped broadcasts
type Hub struct {
	// all connected clients by client ID, joined or not
	clients map[string]*Client

	// joined clients by session ID and client ID
	sessions map[string]map[string]*Client

	// register requests from clients
	Register chan *Client

	// unregister requests from clients
	Unregister chan *Client

	// inbound messages forwarded by client read pumps
	Broadcast chan *Message

	// mutex for thread-safe access to membership maps
	mu sync.RWMutex

	// message handlers for different message types
	handlers map[string]MessageHandler

	// flag indicating if hub is running
	running bool

	// channel to signal shutdown
	shutdown chan struct{}

	// connection tracking: IP address -> count of connections
	ipConnections map[string]int

	// sequence numbers per session for message ordering
	sessionSequences map[string]uint64

	// callback for client disconnect (removes presence, broadcasts).
	// Receives the session the client was joined to at disconnect time.
	onClientDisconnect func(clientID, sessionID string)
}

// processes a specific message type
type MessageHandler func(hub *Hub, client *Client, msg *Message) error
