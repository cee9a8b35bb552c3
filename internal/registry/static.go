package registry

import (
	"context"
	"sync"
)

// Static is a fixed in-memory secret-to-match mapping, used in development
// configs and tests where no coordinator-managed registry exists.
type Static struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewStatic creates a registry from a secret -> match id map.
func NewStatic(secrets map[string]string) *Static {
	copied := make(map[string]string, len(secrets))
	for k, v := range secrets {
		copied[k] = v
	}
	return &Static{secrets: copied}
}

// LookupMatchBySecret implements Lookup.
func (s *Static) LookupMatchBySecret(_ context.Context, secret string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matchID, ok := s.secrets[secret]
	if !ok || matchID == "" {
		return "", ErrNotFound
	}
	return matchID, nil
}

// Set adds or replaces a mapping.
func (s *Static) Set(secret, matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secret] = matchID
}

// Delete removes a mapping, as the coordinator does when a match ends.
func (s *Static) Delete(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, secret)
}
