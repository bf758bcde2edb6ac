package api

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// connWithMutex wraps a WebSocket connection with its own mutex for thread-safe writes.
type connWithMutex struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// WSConnectionManager tracks connected tabs and relays storage changes
// reported by them. It implements theme.StorageEvents.
type WSConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*connWithMutex

	watchMu  sync.Mutex
	nextID   int
	watchers map[int]func(key, value string)
	store    PreferenceStore
}

// PreferenceStore is the shared storage tab-reported changes are written to
// before watchers hear about them.
type PreferenceStore interface {
	Set(key, value string) error
	Remove(key string) error
}

// NewWSConnectionManager creates a new WebSocket connection manager.
func NewWSConnectionManager() *WSConnectionManager {
	return &WSConnectionManager{
		connections: make(map[string]*connWithMutex),
		watchers:    make(map[int]func(key, value string)),
	}
}

// Add adds a connection to the manager and returns its id.
func (m *WSConnectionManager) Add(conn *websocket.Conn) string {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[id] = &connWithMutex{
		id:   id,
		conn: conn,
	}
	return id
}

// Remove removes a connection from the manager.
func (m *WSConnectionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
}

// Len returns the number of connected tabs.
func (m *WSConnectionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Broadcast sends a message to all connected clients.
func (m *WSConnectionManager) Broadcast(message any) {
	m.mu.RLock()
	conns := make([]*connWithMutex, 0, len(m.connections))
	for _, cwm := range m.connections {
		conns = append(conns, cwm)
	}
	m.mu.RUnlock()

	for _, cwm := range conns {
		cwm.mu.Lock()
		err := cwm.conn.WriteJSON(message)
		cwm.mu.Unlock()

		if err != nil {
			// Connection is dead, remove it
			m.Remove(cwm.id)
		}
	}
}

// WriteJSON safely writes JSON to a specific connection using its mutex.
func (m *WSConnectionManager) WriteJSON(id string, message any) error {
	m.mu.RLock()
	cwm, exists := m.connections[id]
	m.mu.RUnlock()

	if !exists {
		return websocket.ErrCloseSent
	}

	cwm.mu.Lock()
	defer cwm.mu.Unlock()
	return cwm.conn.WriteJSON(message)
}

// Watch registers fn for storage changes reported by tabs.
func (m *WSConnectionManager) Watch(fn func(key, value string)) (stop func()) {
	m.watchMu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.watchMu.Unlock()

	return func() {
		m.watchMu.Lock()
		delete(m.watchers, id)
		m.watchMu.Unlock()
	}
}

// Watching reports whether any storage watcher is registered.
func (m *WSConnectionManager) Watching() bool {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	return len(m.watchers) > 0
}

// SetStorage sets the store relayed changes are persisted to. It should be
// the same store the engine reads.
func (m *WSConnectionManager) SetStorage(store PreferenceStore) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	m.store = store
}

// relayStorage persists a tab's storage change and delivers it to the
// watchers. An empty value removes the key.
func (m *WSConnectionManager) relayStorage(key, value string) error {
	m.watchMu.Lock()
	store := m.store
	m.watchMu.Unlock()

	if store != nil {
		var err error
		if value == "" {
			err = store.Remove(key)
		} else {
			err = store.Set(key, value)
		}
		if err != nil {
			return fmt.Errorf("persist storage change: %w", err)
		}
	}

	m.watchMu.Lock()
	fns := make([]func(key, value string), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.watchMu.Unlock()

	for _, fn := range fns {
		fn(key, value)
	}
	return nil
}
