// Package cities keeps the user's saved city list.
package cities

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

var (
	// ErrNotFound is returned when no saved city has the requested id.
	ErrNotFound = errors.New("city not found")
	// ErrDuplicate is returned when a city with the same lat/lon is already saved.
	ErrDuplicate = errors.New("city already exists in your list")
)

// Store persists saved cities. List returns cities in the order they were added.
type Store interface {
	List(ctx context.Context) ([]models.SavedCity, error)
	Add(ctx context.Context, c models.City) (models.SavedCity, error)
	Get(ctx context.Context, id string) (models.SavedCity, error)
	Remove(ctx context.Context, id string) (models.SavedCity, error)
	Close() error
}

// newSavedCity stamps c with a fresh id and the current UTC time.
func newSavedCity(c models.City, now time.Time) models.SavedCity {
	return models.SavedCity{
		ID:      uuid.New().String(),
		Name:    c.Name,
		Country: c.Country,
		Lat:     c.Lat,
		Lon:     c.Lon,
		State:   c.State,
		AddedAt: now.UTC(),
	}
}
