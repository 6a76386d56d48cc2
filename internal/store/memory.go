package store

import (
	"context"
	"sync"

	"github.com/230701390/feedr/internal/models"
)

// SaveHookFunc lets tests intercept a Save before it commits. Returning a
// non-nil error fails the Save without touching the stored collection.
type SaveHookFunc func() error

// MemoryStore is an in-memory Store used by tests and MOCK_SERVICES mode.
// All methods copy on the way in and out, so callers never share slices with
// the store.
type MemoryStore struct {
	mu       sync.RWMutex
	listings []models.FoodListing
	users    []models.User

	// Test hooks, checked before each corresponding Save commits.
	SaveListingsHook SaveHookFunc
	SaveUsersHook    SaveHookFunc
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed replaces both collections without going through the hooks.
func (s *MemoryStore) Seed(listings []models.FoodListing, users []models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = copyListings(listings)
	s.users = copyUsers(users)
}

func (s *MemoryStore) LoadListings(ctx context.Context) ([]models.FoodListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyListings(s.listings), nil
}

func (s *MemoryStore) SaveListings(ctx context.Context, listings []models.FoodListing) error {
	if s.SaveListingsHook != nil {
		if err := s.SaveListingsHook(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = copyListings(listings)
	return nil
}

func (s *MemoryStore) LoadUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUsers(s.users), nil
}

func (s *MemoryStore) SaveUsers(ctx context.Context, users []models.User) error {
	if s.SaveUsersHook != nil {
		if err := s.SaveUsersHook(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = copyUsers(users)
	return nil
}

func copyListings(in []models.FoodListing) []models.FoodListing {
	out := make([]models.FoodListing, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Location != nil {
			loc := *out[i].Location
			out[i].Location = &loc
		}
		if out[i].ClaimedBy != nil {
			cb := *out[i].ClaimedBy
			out[i].ClaimedBy = &cb
		}
	}
	return out
}

func copyUsers(in []models.User) []models.User {
	out := make([]models.User, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Points != nil {
			p := *out[i].Points
			out[i].Points = &p
		}
		if out[i].Address != nil {
			a := *out[i].Address
			out[i].Address = &a
		}
		if out[i].Location != nil {
			loc := *out[i].Location
			out[i].Location = &loc
		}
	}
	return out
}
