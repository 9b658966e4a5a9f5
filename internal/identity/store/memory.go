package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landregistry/internal/identity/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in maps guarded by a RWMutex.
type InMemoryUserStore struct {
	mu           sync.RWMutex
	users        map[id.UserID]models.User
	byUsername   map[string]id.UserID
	byNationalID map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:        make(map[id.UserID]models.User),
		byUsername:   make(map[string]id.UserID),
		byNationalID: make(map[string]id.UserID),
	}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[user.Username]; taken {
		return fmt.Errorf("username %q: %w", user.Username, sentinel.ErrAlreadyUsed)
	}
	if _, taken := s.byNationalID[user.NationalID]; taken {
		return fmt.Errorf("national id: %w", sentinel.ErrAlreadyUsed)
	}
	if _, taken := s.users[user.ID]; taken {
		return fmt.Errorf("user id: %w", sentinel.ErrAlreadyUsed)
	}
	s.users[user.ID] = *user
	s.byUsername[user.Username] = user.ID
	s.byNationalID[user.NationalID] = user.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &user, nil
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byUsername[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	user := s.users[userID]
	return &user, nil
}

// List returns users ordered by username. A nil ids slice lists everyone.
func (s *InMemoryUserStore) List(_ context.Context, ids []id.UserID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.User, 0, len(s.users))
	for userID, user := range s.users {
		if ids != nil && !containsID(ids, userID) {
			continue
		}
		u := user
		result = append(result, &u)
	}
	sortByUsername(result)
	return result, nil
}

// Update writes the mutable profile fields.
func (s *InMemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[user.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	current.Email = user.Email
	current.FirstName = user.FirstName
	current.LastName = user.LastName
	current.PhoneNumber = user.PhoneNumber
	current.BlockchainAddress = user.BlockchainAddress
	current.UpdatedAt = user.UpdatedAt
	s.users[user.ID] = current
	return nil
}

func (s *InMemoryUserStore) UpdatePassword(_ context.Context, userID id.UserID, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	current.PasswordHash = hash
	current.UpdatedAt = now
	s.users[userID] = current
	return nil
}

// MarkVerified sets is_verified only if it is still false.
func (s *InMemoryUserStore) MarkVerified(_ context.Context, userID id.UserID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.IsVerified {
		return sentinel.ErrInvalidState
	}
	current.IsVerified = true
	current.UpdatedAt = now
	s.users[userID] = current
	return nil
}

// CountByRole counts users holding role.
func (s *InMemoryUserStore) CountByRole(_ context.Context, role id.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, user := range s.users {
		if user.Role == role {
			n++
		}
	}
	return n, nil
}
