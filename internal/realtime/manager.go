// Package realtime serves chat turns over WebSocket connections.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks one chat connection per user and client session. A new
// connection for the same pair replaces the old one.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user and session.
func (m *SessionManager) GetActive(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of registered connections.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds conn for a user/session, closing any connection it replaces.
func (m *SessionManager) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[userID][sessionID] = conn
	slog.Info("Chat connection registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes conn if it is still the active connection for the pair.
func (m *SessionManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat connection unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseUser terminates every connection of a user and returns how many were closed.
func (m *SessionManager) CloseUser(userID string) int {
	m.mu.Lock()
	sessions := m.active[userID]
	delete(m.active, userID)
	m.mu.Unlock()

	// Close waits for the peer's close frame, so it runs outside the lock.
	for sid, conn := range sessions {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Chat connection closed", "user_id", userID, "session_id", sid)
	}
	return len(sessions)
}

// CloseAll terminates every connection, for shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, sessions := range m.active {
		for _, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(m.active, userID)
	}
}
