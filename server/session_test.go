package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawewhat/quera/crud"
	"github.com/rawewhat/quera/store"
)

func ctx() context.Context { return context.Background() }

// mockClient creates a client without a real WebSocket connection, for testing.
func mockClient(id string) *Client {
	return &Client{
		ID:   id,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// recvMsg reads one message from a mock client's send channel with timeout.
func recvMsg(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return ServerMessage{}
	}
}

// noMsg asserts that nothing arrives on c within a short window.
func noMsg(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func recordIDs(msg ServerMessage) []any {
	ids := make([]any, len(msg.Records))
	for i, r := range msg.Records {
		ids[i] = r["id"]
	}
	return ids
}

func newTestSession(t *testing.T, st *store.MemoryStore, collection, filter string) *Session {
	t.Helper()
	s := newSession(sessionKey{collection: collection, filter: filter})
	a, err := crud.New(st, collection, crud.WithFilter(filter), crud.WithOnChange(s.publish))
	require.NoError(t, err)
	s.start(a)
	t.Cleanup(func() {
		close(s.stop)
		<-s.done
	})
	return s
}

func TestSession_JoinReceivesSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	st.Set(ctx(), "users", "u1", map[string]any{"age": 30})
	s := newTestSession(t, st, "users", "")

	c := mockClient("c1")
	s.enter(c)
	msg := recvMsg(t, c)

	assert.Equal(t, MsgSnapshot, msg.Type)
	assert.Equal(t, "users", msg.Collection)
	assert.Equal(t, []any{"u1"}, recordIDs(msg))
	noMsg(t, c)
}

func TestSession_BroadcastOnChange(t *testing.T) {
	st := store.NewMemoryStore()
	st.Set(ctx(), "users", "u1", map[string]any{"age": 30})
	s := newTestSession(t, st, "users", "?age > 21")

	c1 := mockClient("c1")
	c2 := mockClient("c2")
	s.enter(c1)
	s.enter(c2)
	recvMsg(t, c1) // snapshot
	recvMsg(t, c2) // snapshot

	st.Set(ctx(), "users", "u2", map[string]any{"age": 40})
	st.Set(ctx(), "users", "u3", map[string]any{"age": 10})

	for _, c := range []*Client{c1, c2} {
		first := recvMsg(t, c)
		assert.Equal(t, "?age > 21", first.Filter)
		assert.Equal(t, []any{"u1", "u2"}, recordIDs(first))
		second := recvMsg(t, c)
		assert.Equal(t, []any{"u1", "u2"}, recordIDs(second))
	}
}

func TestSession_EmptyCollectionSnapshot(t *testing.T) {
	s := newTestSession(t, store.NewMemoryStore(), "empty", "")

	c := mockClient("c1")
	s.enter(c)

	select {
	case data := <-c.send:
		assert.Contains(t, string(data), `"records":[]`)
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MsgSnapshot, msg.Type)
		assert.NotNil(t, msg.Records)
		assert.Empty(t, msg.Records)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
}

func TestSession_Leave(t *testing.T) {
	st := store.NewMemoryStore()
	s := newTestSession(t, st, "users", "")

	c1 := mockClient("c1")
	c2 := mockClient("c2")
	s.enter(c1)
	s.enter(c2)
	recvMsg(t, c1)
	recvMsg(t, c2)

	s.exit(c2)
	time.Sleep(100 * time.Millisecond)

	st.Set(ctx(), "users", "u1", map[string]any{"age": 1})
	msg := recvMsg(t, c1)
	assert.Equal(t, []any{"u1"}, recordIDs(msg))
	noMsg(t, c2)
}
