package rpc_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/ledgergate/pkg/rpc"
)

type mockConnection struct {
	id       string
	userID   string
	lastSent []byte
	mu       sync.Mutex
}

func newMockConnection(id, userID string) *mockConnection {
	return &mockConnection{id: id, userID: userID}
}

func (c *mockConnection) ConnectionID() string { return c.id }

func (c *mockConnection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *mockConnection) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

func (c *mockConnection) RawRequests() <-chan []byte { return nil }

func (c *mockConnection) WriteRawResponse(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent = message
	return true
}

func (c *mockConnection) Serve(_ context.Context, handleClosure func(error)) { handleClosure(nil) }

func (c *mockConnection) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSent
}

func TestConnectionHub(t *testing.T) {
	t.Parallel()

	hub := rpc.NewConnectionHub()

	conn1 := newMockConnection("conn1", "alice")
	conn2 := newMockConnection("conn2", "alice")
	conn3 := newMockConnection("conn3", "")
	require.NoError(t, hub.Add(conn1))
	require.NoError(t, hub.Add(conn2))
	require.NoError(t, hub.Add(conn3))
	require.EqualError(t, hub.Add(conn1), "connection with ID conn1 already exists")
	require.Error(t, hub.Add(nil))
	assert.Equal(t, 3, hub.Count())

	hub.Publish("alice", []byte("first"))
	assert.Equal(t, []byte("first"), conn1.last())
	assert.Equal(t, []byte("first"), conn2.last())
	assert.Nil(t, conn3.last())

	require.NoError(t, hub.Rebind("conn3", "bob"))
	assert.Equal(t, "bob", conn3.UserID())
	require.NoError(t, hub.Rebind("conn2", "bob"))
	require.EqualError(t, hub.Rebind("nope", "bob"), "connection with ID nope does not exist")

	hub.Publish("bob", []byte("second"))
	assert.Equal(t, []byte("first"), conn1.last())
	assert.Equal(t, []byte("second"), conn2.last())
	assert.Equal(t, []byte("second"), conn3.last())

	hub.Remove("conn1")
	assert.Nil(t, hub.Get("conn1"))
	hub.Publish("alice", []byte("third"))
	assert.Equal(t, []byte("first"), conn1.last())

	hub.Remove("conn2")
	hub.Remove("conn3")
	hub.Remove("conn3")
	assert.Equal(t, 0, hub.Count())
}
