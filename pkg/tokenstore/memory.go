package tokenstore

import "sync"

// Memory keeps the token in process memory. It does not survive a restart.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Get implements Store.
func (m *Memory) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Set implements Store.
func (m *Memory) Set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// Clear implements Store.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
