package mocks

import (
	"context"
	"fmt"
	"sync"

	"ticketing/entity"
)

type ShowsRepository struct {
	mu    sync.Mutex
	shows map[string]entity.Show
}

func NewShowsRepository(shows ...entity.Show) *ShowsRepository {
	r := &ShowsRepository{shows: make(map[string]entity.Show)}
	for _, show := range shows {
		r.shows[show.ShowID] = show
	}
	return r
}

func (r *ShowsRepository) Store(ctx context.Context, show entity.Show) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.shows[show.ShowID]; !ok {
		r.shows[show.ShowID] = show
	}
	return nil
}

func (r *ShowsRepository) Get(ctx context.Context, showID string) (entity.Show, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	show, ok := r.shows[showID]
	if !ok {
		return entity.Show{}, fmt.Errorf("show %s: %w", showID, entity.ErrNotFound)
	}
	return show, nil
}
