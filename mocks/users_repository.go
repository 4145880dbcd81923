package mocks

import (
	"context"
	"fmt"
	"sync"

	"ticketing/entity"
)

type UsersRepository struct {
	mu    sync.Mutex
	users map[string]entity.User
}

func NewUsersRepository(users ...entity.User) *UsersRepository {
	r := &UsersRepository{users: make(map[string]entity.User)}
	for _, user := range users {
		r.users[user.UserID] = user
	}
	return r
}

func (r *UsersRepository) Store(ctx context.Context, user entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[user.UserID] = user
	return nil
}

func (r *UsersRepository) Get(ctx context.Context, userID string) (entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return entity.User{}, fmt.Errorf("user %s: %w", userID, entity.ErrNotFound)
	}
	return user, nil
}
