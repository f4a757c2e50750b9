package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id string, hub *Hub) *Client {
	return &Client{
		ID:        id,
		IPAddress: "127.0.0.1",
		hub:       hub,
		send:      make(chan []byte, 256),
	}
}

func TestHubCreation(t *testing.T) {
	hub := NewHub()
	require.NotNil(t, hub)
	assert.NotNil(t, hub.Register)
	assert.NotNil(t, hub.Unregister)
	assert.NotNil(t, hub.Broadcast)
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient("client-1", hub)
	hub.Register <- client
	time.Sleep(50 * time.Millisecond)

	// connections start unjoined
	assert.Equal(t, "", client.Session())
	assert.Equal(t, 0, hub.GetSessionCount())
}

func TestHubAttachDetach(t *testing.T) {
	hub := NewHub()
	client := newTestClient("client-1", hub)

	hub.AttachToSession(client, "session-1")
	assert.Equal(t, "session-1", client.Session())
	assert.Equal(t, 1, hub.GetClientCount("session-1"))
	assert.Equal(t, 1, hub.GetSessionCount())

	hub.DetachFromSession(client)
	assert.Equal(t, "", client.Session())
	assert.Equal(t, 0, hub.GetClientCount("session-1"))
	assert.Equal(t, 0, hub.GetSessionCount())
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()

	client1 := newTestClient("client-1", hub)
	client2 := newTestClient("client-2", hub)
	hub.AttachToSession(client1, "session-1")
	hub.AttachToSession(client2, "session-1")

	msg, err := NewMessage(TypeCodeUpdate, "session-1", "client-1", CodeUpdatePayload{
		Code:   "let x = 1",
		UserID: "client-1",
	})
	require.NoError(t, err)

	hub.BroadcastToSession("session-1", msg, "client-1")

	// client 1 was excluded
	select {
	case data := <-client1.send:
		t.Fatalf("excluded client received message: %s", data)
	default:
	}

	// client 2 receives the update
	select {
	case data := <-client2.send:
		assert.Contains(t, string(data), "code-update")
		assert.Contains(t, string(data), "let x = 1")
	default:
		t.Fatal("expected client 2 to receive the broadcast")
	}
}

func TestHubBroadcastSequenceIncrements(t *testing.T) {
	hub := NewHub()
	client := newTestClient("client-1", hub)
	hub.AttachToSession(client, "session-1")

	var sequences []uint64

	for range 3 {
		msg, err := NewMessage(TypeLanguageUpdate, "session-1", "", LanguageUpdatePayload{Language: "go"})
		require.NoError(t, err)

		hub.BroadcastToSession("session-1", msg, "")
		sequences = append(sequences, msg.Sequence)
	}

	assert.Equal(t, []uint64{1, 2, 3}, sequences)
}

func TestHubBroadcastToUnknownSession(t *testing.T) {
	hub := NewHub()

	msg, err := NewMessage(TypeCodeUpdate, "missing", "", CodeUpdatePayload{Code: "x"})
	require.NoError(t, err)

	// no members, no panic
	hub.BroadcastToSession("missing", msg, "")
	assert.Equal(t, uint64(0), msg.Sequence)
}

func TestHubUnregisterReportsSession(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	var gotClientID, gotSessionID string
	done := make(chan struct{})

	hub.OnClientDisconnect(func(clientID, sessionID string) {
		gotClientID = clientID
		gotSessionID = sessionID
		close(done)
	})

	client := newTestClient("client-1", hub)
	hub.Register <- client
	time.Sleep(50 * time.Millisecond)

	hub.AttachToSession(client, "session-1")
	hub.Unregister <- client

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}

	assert.Equal(t, "client-1", gotClientID)
	assert.Equal(t, "session-1", gotSessionID)
	assert.Equal(t, 0, hub.GetClientCount("session-1"))
}

func TestHubUnjoinedDisconnectSkipsCallback(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	called := false
	hub.OnClientDisconnect(func(clientID, sessionID string) {
		called = true
	})

	client := newTestClient("client-1", hub)
	hub.Register <- client
	time.Sleep(50 * time.Millisecond)

	hub.Unregister <- client
	time.Sleep(50 * time.Millisecond)

	assert.False(t, called)
}

func TestHubIPConnectionLimits(t *testing.T) {
	hub := NewHub()

	for range maxConnectionsPerIP {
		ok, _ := hub.CanAcceptConnection("10.0.0.1")
		require.True(t, ok)
		hub.TrackIPConnection("10.0.0.1")
	}

	ok, reason := hub.CanAcceptConnection("10.0.0.1")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	// other addresses are unaffected
	ok, _ = hub.CanAcceptConnection("10.0.0.2")
	assert.True(t, ok)
}

func TestHubUnhandledMessageType(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient("client-1", hub)
	hub.Register <- client
	time.Sleep(50 * time.Millisecond)

	msg, err := NewMessage("no-such-type", "", "", nil)
	require.NoError(t, err)
	msg.ClientID = "client-1"

	hub.Broadcast <- msg
	time.Sleep(50 * time.Millisecond)

	select {
	case data := <-client.send:
		assert.Contains(t, string(data), "bad_request")
	default:
		t.Fatal("expected an error message for unknown type")
	}
}
