// Package connection provides connection management for tokmesh-cli.
package connection

// Manager tracks which admin server the CLI is currently targeting.
type Manager struct {
	current *Connection
}

// Connection identifies an admin server target.
type Connection struct {
	Name   string
	Server string
}

// NewManager creates a new connection manager.
func NewManager() *Manager {
	return &Manager{}
}

// Connect records conn as the current target.
func (m *Manager) Connect(conn *Connection) error {
	m.current = conn
	return nil
}

// Disconnect clears the current target.
func (m *Manager) Disconnect() {
	m.current = nil
}

// Current returns the current target, or nil if none is set.
func (m *Manager) Current() *Connection {
	return m.current
}

// IsConnected returns true if a target is set.
func (m *Manager) IsConnected() bool {
	return m.current != nil
}
