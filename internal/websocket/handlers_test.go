package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slyxzy/collab-code-editor/internal/persist"
	"github.com/slyxzy/collab-code-editor/internal/registry"
	"github.com/slyxzy/collab-code-editor/internal/store"
)

type testEnv struct {
	hub       *Hub
	store     *store.MemoryStore
	registry  *registry.Registry
	persister *persist.Persister
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	return newTestEnvWith(t, st, st)
}

// builds an env whose registry and persister run against backing,
// which may wrap mem to inject failures
func newTestEnvWith(t *testing.T, backing store.Store, mem *store.MemoryStore) *testEnv {
	t.Helper()

	reg := registry.New(backing)
	persister := persist.NewPersister(backing, nil)
	persister.Start()
	t.Cleanup(persister.Stop)

	hub := NewHub()
	hub.RegisterHandler(TypeJoinSession, JoinSessionHandler(reg, persister))
	hub.RegisterHandler(TypeCodeChange, CodeChangeHandler(reg, persister))
	hub.RegisterHandler(TypeLanguageChange, LanguageChangeHandler(reg, persister))
	hub.RegisterHandler(TypeCursorMove, CursorMoveHandler())
	hub.RegisterHandler(TypePing, PingHandler())
	hub.OnClientDisconnect(DisconnectFunc(hub, reg, persister))

	go hub.Run()
	t.Cleanup(hub.Shutdown)

	return &testEnv{hub: hub, store: mem, registry: reg, persister: persister}
}

func (e *testEnv) connect(t *testing.T, id string) *Client {
	t.Helper()

	client := newTestClient(id, e.hub)
	e.hub.Register <- client
	time.Sleep(20 * time.Millisecond)
	return client
}

func (e *testEnv) send(t *testing.T, client *Client, messageType string, payload any) {
	t.Helper()

	msg, err := NewMessage(messageType, "", "", payload)
	require.NoError(t, err)
	msg.ClientID = client.ID

	e.hub.Broadcast <- msg
	time.Sleep(20 * time.Millisecond)
}

// receives one message of the wanted type, skipping roster updates
// and other interleaved traffic
func receive(t *testing.T, client *Client, wantType string) *Message {
	t.Helper()

	deadline := time.After(time.Second)

	for {
		select {
		case data := <-client.send:
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))

			if msg.Type == wantType {
				return &msg
			}

		case <-deadline:
			t.Fatalf("timed out waiting for %q", wantType)
			return nil
		}
	}
}

func assertNoMessage(t *testing.T, client *Client) {
	t.Helper()

	select {
	case data := <-client.send:
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func drain(client *Client) {
	for {
		select {
		case <-client.send:
		default:
			return
		}
	}
}

func TestJoinSessionColdStart(t *testing.T) {
	env := newTestEnv(t)
	client := env.connect(t, "client-1")

	env.send(t, client, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})

	initMsg := receive(t, client, TypeSessionInit)

	var init SessionInitPayload
	require.NoError(t, initMsg.UnmarshalPayload(&init))
	assert.Equal(t, store.DefaultCode, init.Code)
	assert.Equal(t, store.DefaultLanguage, init.Language)
	require.Len(t, init.Users, 1)
	assert.Equal(t, "client-1", init.Users[0].ID)
	assert.NotEmpty(t, init.Users[0].Color)

	assert.Equal(t, "session-1", client.Session())

	// the join is written through with the fallback name
	require.Eventually(t, func() bool {
		_, err := env.store.Get(context.Background(), "session-1")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	session, err := env.store.Get(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", session.Name)

	require.Eventually(t, func() bool {
		return len(env.store.ActivityLog("session-1")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, store.ActionJoin, env.store.ActivityLog("session-1")[0].Action)
}

func TestJoinSessionAnnouncesToOthers(t *testing.T) {
	env := newTestEnv(t)

	client1 := env.connect(t, "client-1")
	env.send(t, client1, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(client1)

	client2 := env.connect(t, "client-2")
	env.send(t, client2, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})

	joined := receive(t, client1, TypeUserJoined)

	var payload UserJoinedPayload
	require.NoError(t, joined.UnmarshalPayload(&payload))
	assert.Equal(t, "client-2", payload.User.ID)

	roster := receive(t, client1, TypeUsersUpdate)

	var rosterPayload UsersUpdatePayload
	require.NoError(t, roster.UnmarshalPayload(&rosterPayload))
	assert.Len(t, rosterPayload.Users, 2)

	// the joiner sees the full roster in its init
	initMsg := receive(t, client2, TypeSessionInit)

	var init SessionInitPayload
	require.NoError(t, initMsg.UnmarshalPayload(&init))
	assert.Len(t, init.Users, 2)
}

func TestJoinSwitchingSessionsLeavesOldOne(t *testing.T) {
	env := newTestEnv(t)

	stayer := env.connect(t, "stayer")
	env.send(t, stayer, TypeJoinSession, JoinSessionPayload{SessionID: "session-a"})

	switcher := env.connect(t, "switcher")
	env.send(t, switcher, TypeJoinSession, JoinSessionPayload{SessionID: "session-a"})
	drain(stayer)
	drain(switcher)

	env.send(t, switcher, TypeJoinSession, JoinSessionPayload{SessionID: "session-b"})

	// the old session sees the departure
	left := receive(t, stayer, TypeUserLeft)

	var leftPayload UserLeftPayload
	require.NoError(t, left.UnmarshalPayload(&leftPayload))
	assert.Equal(t, "switcher", leftPayload.ID)

	assert.Equal(t, "session-b", switcher.Session())
	assert.Equal(t, 1, env.hub.GetClientCount("session-a"))
	assert.Equal(t, 1, env.hub.GetClientCount("session-b"))

	presences := env.registry.Presences("session-a")
	require.Len(t, presences, 1)
	assert.Equal(t, "stayer", presences[0].ID)
}

func TestJoinSameSessionTwiceIsNoop(t *testing.T) {
	env := newTestEnv(t)

	client := env.connect(t, "client-1")
	env.send(t, client, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(client)

	env.send(t, client, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	assertNoMessage(t, client)
	assert.Len(t, env.registry.Presences("session-1"), 1)
}

func TestJoinSessionMissingID(t *testing.T) {
	env := newTestEnv(t)

	client := env.connect(t, "client-1")
	env.send(t, client, TypeJoinSession, JoinSessionPayload{})

	errMsg := receive(t, client, TypeError)
	assert.Contains(t, string(errMsg.Payload), "session_id")
	assert.Equal(t, "", client.Session())
}

func TestCodeChangeFanout(t *testing.T) {
	env := newTestEnv(t)

	editor := env.connect(t, "editor")
	watcher := env.connect(t, "watcher")
	env.send(t, editor, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	env.send(t, watcher, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(editor)
	drain(watcher)

	env.send(t, editor, TypeCodeChange, CodeChangePayload{Code: "a"})

	update := receive(t, watcher, TypeCodeUpdate)

	var payload CodeUpdatePayload
	require.NoError(t, update.UnmarshalPayload(&payload))
	assert.Equal(t, "a", payload.Code)
	assert.Equal(t, "editor", payload.UserID)

	// the editor does not hear its own edit
	assertNoMessage(t, editor)

	// live state and the durable copy both carry the edit
	snapshot, ok := env.registry.Snapshot("session-1")
	require.True(t, ok)
	assert.Equal(t, "a", snapshot.Code)

	require.Eventually(t, func() bool {
		session, err := env.store.Get(context.Background(), "session-1")
		return err == nil && session.Code == "a"
	}, time.Second, 10*time.Millisecond)
}

func TestCodeChangeFromUnjoinedClient(t *testing.T) {
	env := newTestEnv(t)

	client := env.connect(t, "client-1")
	env.send(t, client, TypeCodeChange, CodeChangePayload{Code: "a"})

	assertNoMessage(t, client)
	assert.Equal(t, 0, env.registry.SessionCount())
}

func TestCodeChangeTooLarge(t *testing.T) {
	env := newTestEnv(t)

	client := env.connect(t, "client-1")
	env.send(t, client, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(client)

	big := make([]byte, maxCodeSize+1)
	for i := range big {
		big[i] = 'x'
	}

	env.send(t, client, TypeCodeChange, CodeChangePayload{Code: string(big)})

	errMsg := receive(t, client, TypeError)
	assert.Contains(t, string(errMsg.Payload), "validation_error")

	// the oversized buffer never reached live state
	snapshot, ok := env.registry.Snapshot("session-1")
	require.True(t, ok)
	assert.Equal(t, store.DefaultCode, snapshot.Code)
}

func TestLanguageChangeFanout(t *testing.T) {
	env := newTestEnv(t)

	editor := env.connect(t, "editor")
	watcher := env.connect(t, "watcher")
	env.send(t, editor, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	env.send(t, watcher, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(editor)
	drain(watcher)

	env.send(t, editor, TypeLanguageChange, LanguageChangePayload{Language: "python"})

	update := receive(t, watcher, TypeLanguageUpdate)

	var payload LanguageUpdatePayload
	require.NoError(t, update.UnmarshalPayload(&payload))
	assert.Equal(t, "python", payload.Language)

	snapshot, ok := env.registry.Snapshot("session-1")
	require.True(t, ok)
	assert.Equal(t, "python", snapshot.Language)

	require.Eventually(t, func() bool {
		session, err := env.store.Get(context.Background(), "session-1")
		return err == nil && session.Language == "python"
	}, time.Second, 10*time.Millisecond)
}

func TestCursorMoveRelaysWithoutPersisting(t *testing.T) {
	env := newTestEnv(t)

	mover := env.connect(t, "mover")
	watcher := env.connect(t, "watcher")
	env.send(t, mover, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	env.send(t, watcher, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(mover)
	drain(watcher)

	position := json.RawMessage(`{"line":3,"column":14}`)
	env.send(t, mover, TypeCursorMove, CursorMovePayload{Position: position})

	update := receive(t, watcher, TypeCursorUpdate)

	var payload CursorUpdatePayload
	require.NoError(t, update.UnmarshalPayload(&payload))
	assert.Equal(t, "mover", payload.UserID)
	assert.JSONEq(t, string(position), string(payload.Position))

	// cursor traffic leaves no durable trace
	entries := env.store.ActivityLog("session-1")
	for _, entry := range entries {
		assert.NotEqual(t, "cursor", entry.Action)
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	env := newTestEnv(t)

	leaver := env.connect(t, "leaver")
	stayer := env.connect(t, "stayer")
	env.send(t, leaver, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	env.send(t, stayer, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(leaver)
	drain(stayer)

	env.hub.Unregister <- leaver
	time.Sleep(50 * time.Millisecond)

	left := receive(t, stayer, TypeUserLeft)

	var leftPayload UserLeftPayload
	require.NoError(t, left.UnmarshalPayload(&leftPayload))
	assert.Equal(t, "leaver", leftPayload.ID)

	roster := receive(t, stayer, TypeUsersUpdate)

	var rosterPayload UsersUpdatePayload
	require.NoError(t, roster.UnmarshalPayload(&rosterPayload))
	require.Len(t, rosterPayload.Users, 1)
	assert.Equal(t, "stayer", rosterPayload.Users[0].ID)

	require.Eventually(t, func() bool {
		entries := env.store.ActivityLog("session-1")
		for _, entry := range entries {
			if entry.Action == store.ActionLeave && entry.UserID == "leaver" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestLastDisconnectEvictsSession(t *testing.T) {
	env := newTestEnv(t)

	client := env.connect(t, "client-1")
	env.send(t, client, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(client)

	env.send(t, client, TypeCodeChange, CodeChangePayload{Code: "a"})

	// wait for the write-through before disconnecting
	require.Eventually(t, func() bool {
		session, err := env.store.Get(context.Background(), "session-1")
		return err == nil && session.Code == "a"
	}, time.Second, 10*time.Millisecond)

	env.hub.Unregister <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, env.registry.SessionCount())

	// a later join sees the durable edit, not defaults
	late := env.connect(t, "client-2")
	env.send(t, late, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})

	initMsg := receive(t, late, TypeSessionInit)

	var init SessionInitPayload
	require.NoError(t, initMsg.UnmarshalPayload(&init))
	assert.Equal(t, "a", init.Code)
}

// Store whose activity appends always fail, for soft-fail coverage
type flakyActivityStore struct {
	*store.MemoryStore
}

func (s *flakyActivityStore) AppendActivity(context.Context, *store.ActivityLogEntry) (int64, error) {
	return 0, errors.New("activity_logs unavailable")
}

func TestEditSurvivesActivityLogFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	env := newTestEnvWith(t, &flakyActivityStore{mem}, mem)

	editor := env.connect(t, "editor")
	watcher := env.connect(t, "watcher")
	env.send(t, editor, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	env.send(t, watcher, TypeJoinSession, JoinSessionPayload{SessionID: "session-1"})
	drain(editor)
	drain(watcher)

	env.send(t, editor, TypeCodeChange, CodeChangePayload{Code: "a"})

	// the broadcast and write-through both land despite every
	// activity append failing
	update := receive(t, watcher, TypeCodeUpdate)

	var payload CodeUpdatePayload
	require.NoError(t, update.UnmarshalPayload(&payload))
	assert.Equal(t, "a", payload.Code)

	require.Eventually(t, func() bool {
		session, err := mem.Get(context.Background(), "session-1")
		return err == nil && session.Code == "a"
	}, time.Second, 10*time.Millisecond)

	// neither the editor nor the watcher was sent an error
	assertNoMessage(t, editor)

	assert.Empty(t, mem.ActivityLog("session-1"))
}

func TestPingHandler(t *testing.T) {
	env := newTestEnv(t)

	client := env.connect(t, "client-1")
	env.send(t, client, TypePing, nil)

	pong := receive(t, client, TypePong)
	assert.Equal(t, TypePong, pong.Type)
}
