package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type AdminStore struct {
	mu     sync.RWMutex
	admins map[string]store.Admin // by username
}

func NewAdminStore() *AdminStore {
	return &AdminStore{admins: make(map[string]store.Admin)}
}

func (s *AdminStore) SaveAdmin(_ context.Context, a store.Admin) error {
	if a.ID == "" || a.Username == "" {
		return fmt.Errorf("SaveAdmin: id and username are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[a.Username] = a
	return nil
}

func (s *AdminStore) FindAdmin(_ context.Context, username string) (*store.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *AdminStore) RecordLoginFailure(_ context.Context, id string, lockUntil *time.Time) error {
	return s.update(id, func(a *store.Admin) {
		a.FailedAttempts++
		if lockUntil != nil {
			t := *lockUntil
			a.LockedUntil = &t
		}
	})
}

func (s *AdminStore) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(a *store.Admin) {
		a.FailedAttempts = 0
		a.LockedUntil = nil
		a.LastLogin = &at
	})
}

func (s *AdminStore) update(id string, fn func(a *store.Admin)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, a := range s.admins {
		if a.ID == id {
			fn(&a)
			s.admins[name] = a
			return nil
		}
	}
	return store.ErrNotFound
}
