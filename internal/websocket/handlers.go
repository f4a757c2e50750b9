package websocket

import (
	"context"
	"time"

	"github.com/slyxzy/collab-code-editor/internal/logger"
	"github.com/slyxzy/collab-code-editor/internal/persist"
	"github.com/slyxzy/collab-code-editor/internal/registry"
	"github.com/slyxzy/collab-code-editor/internal/store"
)

const ensureTimeout = 5 * time.Second

// handles join-session messages. A client joined elsewhere is detached
// and announced as departed there before the new join proceeds, so a
// session switch never leaves a stale presence behind.
func JoinSessionHandler(reg *registry.Registry, persister *persist.Persister) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		var payload JoinSessionPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		if payload.SessionID == "" {
			client.SendError("validation_error", "session_id is required", "")
			return nil
		}

		// rejoining the current session is a no-op
		if client.Session() == payload.SessionID {
			return nil
		}

		if prev := client.Session(); prev != "" {
			hub.DetachFromSession(client)
			announceLeave(hub, reg, persister, client.ID, prev)
		}

		ctx, cancel := context.WithTimeout(context.Background(), ensureTimeout)
		defer cancel()

		if err := reg.Ensure(ctx, payload.SessionID); err != nil {
			client.SendError("server_error", "failed to load session", err.Error())
			return nil
		}

		presence, ok := reg.AddPresence(payload.SessionID, client.ID)
		if !ok {
			client.SendError("server_error", "failed to join session", "")
			return nil
		}

		hub.AttachToSession(client, payload.SessionID)

		snapshot, _ := reg.Snapshot(payload.SessionID)

		initMsg, err := NewMessage(TypeSessionInit, payload.SessionID, client.ID, SessionInitPayload{
			Code:     snapshot.Code,
			Language: snapshot.Language,
			Users:    snapshot.Presences,
		})
		if err != nil {
			return err
		}

		if err := client.Send(initMsg); err != nil {
			return err
		}

		joinedMsg, err := NewMessage(TypeUserJoined, payload.SessionID, client.ID, UserJoinedPayload{
			User: presence,
		})
		if err != nil {
			return err
		}
		hub.BroadcastToSession(payload.SessionID, joinedMsg, client.ID)

		rosterMsg, err := NewMessage(TypeUsersUpdate, payload.SessionID, client.ID, UsersUpdatePayload{
			Users: snapshot.Presences,
		})
		if err != nil {
			return err
		}
		hub.BroadcastToSession(payload.SessionID, rosterMsg, "")

		// write through so the session row exists before any edits land
		persister.EnqueueSave(payload.SessionID, fallbackSessionName, snapshot.Code, snapshot.Language)
		persister.EnqueueActivity(&store.ActivityLogEntry{
			UserID:    client.ID,
			SessionID: payload.SessionID,
			Action:    store.ActionJoin,
		})

		logger.Info("client joined session",
			"client_id", client.ID,
			"session_id", payload.SessionID,
			"users", len(snapshot.Presences),
		)

		return nil
	}
}

// handles code-change messages: last write wins, full buffer replace
func CodeChangeHandler(reg *registry.Registry, persister *persist.Persister) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		sessionID := client.Session()
		if sessionID == "" {
			// edits from unjoined clients are dropped
			return nil
		}

		if err := client.checkCodeUpdateRateLimit(); err != nil {
			client.SendError("rate_limit", "too many code updates", "limit is 10 updates per second")
			return nil
		}

		var payload CodeChangePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		if len(payload.Code) > maxCodeSize {
			client.SendError("validation_error", "code too large", "maximum code size is 100KB")
			return nil
		}

		if ok := reg.SetCode(sessionID, payload.Code); !ok {
			return nil
		}

		updateMsg, err := NewMessage(TypeCodeUpdate, sessionID, client.ID, CodeUpdatePayload{
			Code:   payload.Code,
			UserID: client.ID,
		})
		if err != nil {
			return err
		}
		hub.BroadcastToSession(sessionID, updateMsg, client.ID)

		name := payload.SessionName
		if name == "" {
			name = fallbackSessionName
		}

		snapshot, _ := reg.Snapshot(sessionID)
		persister.EnqueueSave(sessionID, name, payload.Code, snapshot.Language)
		persister.EnqueueActivity(&store.ActivityLogEntry{
			UserID:    client.ID,
			SessionID: sessionID,
			Action:    store.ActionEdit,
			Metadata:  map[string]any{"code_length": len(payload.Code)},
		})

		return nil
	}
}

// handles language-change messages
func LanguageChangeHandler(reg *registry.Registry, persister *persist.Persister) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		sessionID := client.Session()
		if sessionID == "" {
			return nil
		}

		var payload LanguageChangePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		if payload.Language == "" {
			client.SendError("validation_error", "language is required", "")
			return nil
		}

		if ok := reg.SetLanguage(sessionID, payload.Language); !ok {
			return nil
		}

		updateMsg, err := NewMessage(TypeLanguageUpdate, sessionID, client.ID, LanguageUpdatePayload{
			Language: payload.Language,
		})
		if err != nil {
			return err
		}
		hub.BroadcastToSession(sessionID, updateMsg, client.ID)

		name := payload.SessionName
		if name == "" {
			name = fallbackSessionName
		}

		snapshot, _ := reg.Snapshot(sessionID)
		persister.EnqueueSave(sessionID, name, snapshot.Code, payload.Language)
		persister.EnqueueActivity(&store.ActivityLogEntry{
			UserID:    client.ID,
			SessionID: sessionID,
			Action:    store.ActionLanguageChange,
			Metadata:  map[string]any{"language": payload.Language},
		})

		return nil
	}
}

// handles cursor-move messages. Positions are relayed verbatim and
// never persisted.
func CursorMoveHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		sessionID := client.Session()
		if sessionID == "" {
			return nil
		}

		var payload CursorMovePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		updateMsg, err := NewMessage(TypeCursorUpdate, sessionID, client.ID, CursorUpdatePayload{
			UserID:   client.ID,
			Position: payload.Position,
		})
		if err != nil {
			return err
		}
		hub.BroadcastToSession(sessionID, updateMsg, client.ID)

		return nil
	}
}

// handles application-level ping messages
func PingHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		pongMsg, err := NewMessage(TypePong, client.Session(), "", nil)
		if err != nil {
			return err
		}
		return client.Send(pongMsg)
	}
}

// builds the hub disconnect callback: removes the presence, announces
// the departure, and logs the leave
func DisconnectFunc(hub *Hub, reg *registry.Registry, persister *persist.Persister) func(clientID, sessionID string) {
	return func(clientID, sessionID string) {
		announceLeave(hub, reg, persister, clientID, sessionID)
	}
}

// removes a presence from the registry, broadcasts user-left and the
// updated roster, and records the leave in the activity log
func announceLeave(hub *Hub, reg *registry.Registry, persister *persist.Persister, clientID, sessionID string) {
	remaining, evicted := reg.RemovePresence(sessionID, clientID)

	if hub != nil && !evicted {
		leftMsg, err := NewMessage(TypeUserLeft, sessionID, clientID, UserLeftPayload{
			ID: clientID,
		})
		if err == nil {
			hub.BroadcastToSession(sessionID, leftMsg, clientID)
		}

		rosterMsg, err := NewMessage(TypeUsersUpdate, sessionID, clientID, UsersUpdatePayload{
			Users: remaining,
		})
		if err == nil {
			hub.BroadcastToSession(sessionID, rosterMsg, clientID)
		}
	}

	persister.EnqueueActivity(&store.ActivityLogEntry{
		UserID:    clientID,
		SessionID: sessionID,
		Action:    store.ActionLeave,
	})

	if evicted {
		logger.Info("session evicted from registry", "session_id", sessionID)
	}
}
