package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
	"github.com/kjstillabower/weather-proxy-service/internal/observability"
)

// WeatherFetcher is implemented by the service layer to fetch weather for a coordinate.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type WeatherFetcher interface {
	GetWeatherData(ctx context.Context, lat, lon float64) (models.WeatherData, error)
}

// CacheWarmer warms the cache by prefetching weather for a list of coordinates.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
	timeout time.Duration
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
// timeout bounds each scheduled warm run; 30s when zero.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger, timeout time.Duration) *CacheWarmer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, timeout: timeout}
}

// Warm fetches weather for each coordinate concurrently through the fetcher's
// read-through path: entries still cached are left as they are, missing or
// expired ones are refilled from upstream. Returns an error if any coordinate
// failed (aggregated).
func (w *CacheWarmer) Warm(ctx context.Context, coords []models.Coordinate) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("coordinates", len(coords)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(coords))
	for _, c := range coords {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.GetWeatherData(ctx, c.Lat, c.Lon); err != nil {
				errCh <- fmt.Errorf("warm %.2f,%.2f: %w", c.Lat, c.Lon, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("coordinates", len(coords)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// StartPeriodic schedules Warm every interval, starting one interval from now.
// Overlapping runs are skipped. The returned stop function halts the schedule.
func (w *CacheWarmer) StartPeriodic(coords []models.Coordinate, interval time.Duration) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("warm interval must be positive, got %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).WaitForSchedule().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Warm(ctx, coords); err != nil && w.logger != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	return s.Stop, nil
}
