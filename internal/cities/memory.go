package cities

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

// MemoryStore is a process-local Store. Contents are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	cities []models.SavedCity
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) List(ctx context.Context) ([]models.SavedCity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SavedCity, len(s.cities))
	copy(out, s.cities)
	return out, nil
}

func (s *MemoryStore) Add(ctx context.Context, c models.City) (models.SavedCity, error) {
	if err := ctx.Err(); err != nil {
		return models.SavedCity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cities {
		if existing.Lat == c.Lat && existing.Lon == c.Lon {
			return models.SavedCity{}, ErrDuplicate
		}
	}
	saved := newSavedCity(c, s.now())
	s.cities = append(s.cities, saved)
	return saved, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (models.SavedCity, error) {
	if err := ctx.Err(); err != nil {
		return models.SavedCity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cities {
		if c.ID == id {
			return c, nil
		}
	}
	return models.SavedCity{}, ErrNotFound
}

func (s *MemoryStore) Remove(ctx context.Context, id string) (models.SavedCity, error) {
	if err := ctx.Err(); err != nil {
		return models.SavedCity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.cities {
		if c.ID == id {
			s.cities = append(s.cities[:i], s.cities[i+1:]...)
			return c, nil
		}
	}
	return models.SavedCity{}, ErrNotFound
}

func (s *MemoryStore) Close() error { return nil }
