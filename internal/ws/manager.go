package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"continuouscare/internal/logging"
)

const maxConnsPerSession = 10

// Manager tracks WebSocket connections keyed by session token so the
// permission workflow can push state changes to a specific logged-in
// session. Best-effort: a failed write drops the connection and is only
// logged.
type Manager struct {
	mu          sync.Mutex
	connections map[string]map[*websocket.Conn]bool
	logger      *logging.Logger
}

func NewManager(logger *logging.Logger) *Manager {
	return &Manager{
		connections: make(map[string]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// Add registers a connection under a session token.
func (m *Manager) Add(token string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.connections[token]; !exists {
		m.connections[token] = make(map[*websocket.Conn]bool)
	}
	if len(m.connections[token]) >= maxConnsPerSession {
		m.logger.Warnf("Max connections reached for session")
		return
	}
	m.connections[token][conn] = true
}

// Remove forgets a connection.
func (m *Manager) Remove(token string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, exists := m.connections[token]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, token)
		}
	}
}

// Send pushes a payload to every connection of a session. Unknown tokens
// are a no-op: the target user is simply not connected right now.
func (m *Manager) Send(token string, payload []byte) {
	if token == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	conns, exists := m.connections[token]
	if !exists {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			m.logger.Errorf("WebSocket push failed: %v", err)
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(m.connections, token)
	}
}
