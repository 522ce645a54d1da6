package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// User is the authenticated identity handed to the client by the login flow.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// Store holds the session user shared by every view in the process.
// The zero value is an empty store ready for use.
type Store struct {
	mu   sync.RWMutex
	user *User
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set adopts u as the current session user. The store keeps its own copy.
func (s *Store) Set(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// Current returns a copy of the session user and whether one is set.
func (s *Store) Current() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Clear forgets the session user (logout). The newpost command runs a single
// flow per process and never calls it; it exists for hosts that keep a
// Store across logins.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

// Load reads the user written by the login flow. A missing file means the
// user is not logged in and yields (nil, nil).
func Load(path string) (*User, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", path, err)
	}

	return &u, nil
}
