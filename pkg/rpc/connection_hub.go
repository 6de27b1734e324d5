package rpc

import (
	"fmt"
	"sync"
)

// ConnectionHub tracks live connections and which user each one is bound
// to. A user may hold several connections at once.
type ConnectionHub struct {
	connections map[string]Connection
	// userID -> set of connection ids
	byUser map[string]map[string]struct{}
	mu     sync.RWMutex
}

func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{
		connections: make(map[string]Connection),
		byUser:      make(map[string]map[string]struct{}),
	}
}

func (hub *ConnectionHub) Add(conn Connection) error {
	if conn == nil {
		return fmt.Errorf("connection cannot be nil")
	}

	connID := conn.ConnectionID()
	userID := conn.UserID()

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, exists := hub.connections[connID]; exists {
		return fmt.Errorf("connection with ID %s already exists", connID)
	}

	hub.connections[connID] = conn
	hub.bind(userID, connID)
	return nil
}

// Rebind moves a connection to userID.
func (hub *ConnectionHub) Rebind(connID, userID string) error {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conn, exists := hub.connections[connID]
	if !exists {
		return fmt.Errorf("connection with ID %s does not exist", connID)
	}

	hub.unbind(conn.UserID(), connID)
	conn.SetUserID(userID)
	hub.bind(userID, connID)
	return nil
}

func (hub *ConnectionHub) Get(connID string) Connection {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	return hub.connections[connID]
}

func (hub *ConnectionHub) Remove(connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conn, ok := hub.connections[connID]
	if !ok {
		return
	}

	delete(hub.connections, connID)
	hub.unbind(conn.UserID(), connID)
}

// Count returns the number of live connections.
func (hub *ConnectionHub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	return len(hub.connections)
}

// Publish sends message to every connection bound to userID.
func (hub *ConnectionHub) Publish(userID string, message []byte) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for connID := range hub.byUser[userID] {
		if conn := hub.connections[connID]; conn != nil {
			conn.WriteRawResponse(message)
		}
	}
}

func (hub *ConnectionHub) bind(userID, connID string) {
	if userID == "" {
		return
	}
	if _, ok := hub.byUser[userID]; !ok {
		hub.byUser[userID] = make(map[string]struct{})
	}
	hub.byUser[userID][connID] = struct{}{}
}

func (hub *ConnectionHub) unbind(userID, connID string) {
	if userID == "" {
		return
	}
	if conns, ok := hub.byUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(hub.byUser, userID)
		}
	}
}
