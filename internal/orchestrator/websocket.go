package orchestrator

import (
	"sync"

	"github.com/gorilla/websocket"

	"notification-engine/internal/logging"
)

const maxConnsPerUser = 10

// WebSocketManager tracks live connections per user for the in-app channel.
type WebSocketManager struct {
	connections map[int]map[*websocket.Conn]bool // userID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewWebSocketManager(logger *logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[int]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// AddConnection registers a connection for a user.
func (m *WebSocketManager) AddConnection(userID int, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.connections[userID]; !exists {
		m.connections[userID] = make(map[*websocket.Conn]bool)
	}
	if len(m.connections[userID]) >= maxConnsPerUser {
		m.logger.Warnf("Max connections reached for user %d", userID)
		return
	}
	m.connections[userID][conn] = true
	m.logger.Infof("Added WebSocket connection for user %d (total: %d)", userID, len(m.connections[userID]))
}

// RemoveConnection drops a connection for a user.
func (m *WebSocketManager) RemoveConnection(userID int, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, userID)
		}
	}
}

// SendToUser pushes a message to every open connection of a user. Dead
// connections are pruned as they fail.
func (m *WebSocketManager) SendToUser(userID int, message []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	conns, exists := m.connections[userID]
	if !exists {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			m.logger.Errorf("Failed to send WebSocket message to user %d: %v", userID, err)
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(m.connections, userID)
	}
}
