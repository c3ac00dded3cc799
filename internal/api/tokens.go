package api

import "sync"

type memTokens struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// memoryTokens is the default TokenSource: the pair lives only as long as
// the process.
func memoryTokens() TokenSource {
	return &memTokens{}
}

func (m *memTokens) Tokens() (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access, m.refresh
}

func (m *memTokens) SetTokens(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh = access, refresh
	return nil
}

func (m *memTokens) Clear() error {
	return m.SetTokens("", "")
}
