package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-proxy-service/internal/cache"
	"github.com/kjstillabower/weather-proxy-service/internal/client"
	"github.com/kjstillabower/weather-proxy-service/internal/forecast"
	"github.com/kjstillabower/weather-proxy-service/internal/models"
	"github.com/kjstillabower/weather-proxy-service/internal/observability"
	"github.com/kjstillabower/weather-proxy-service/internal/validation"
)

// SearchLimit is the fixed number of geocoding matches requested per search.
const SearchLimit = 5

const (
	minSearchLen = 2
	maxSearchLen = 100
)

// unknownPlace fills Location in combined responses; the upstream current
// payload's place metadata is not carried through normalization.
const unknownPlace = "Unknown"

// Options tunes a WeatherService. Zero TTLs fall back to the kind defaults.
type Options struct {
	CurrentTTL      time.Duration
	ForecastTTL     time.Duration
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
}

// WeatherService orchestrates weather data retrieval using cache-aside with
// upstream fallback. Cache failures are logged and counted, never returned.
type WeatherService struct {
	client          client.WeatherClient
	cache           cache.Cache
	logger          *zap.Logger
	currentTTL      time.Duration
	forecastTTL     time.Duration
	misses          *missTracker
	coalescer       *requestCoalescer // nil when coalescing is disabled
}

// NewWeatherService creates a WeatherService with explicit dependencies.
// logger may be nil; a request-scoped logger in ctx takes precedence.
func NewWeatherService(c client.WeatherClient, store cache.Cache, logger *zap.Logger, opts Options) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CurrentTTL <= 0 {
		opts.CurrentTTL = cache.KindCurrent.TTL()
	}
	if opts.ForecastTTL <= 0 {
		opts.ForecastTTL = cache.KindForecast.TTL()
	}
	var coalescer *requestCoalescer
	if opts.CoalesceEnabled && opts.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	return &WeatherService{
		client:          c,
		cache:           store,
		logger:          logger,
		currentTTL:      opts.CurrentTTL,
		forecastTTL:     opts.ForecastTTL,
		misses:          newMissTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

func (s *WeatherService) log(ctx context.Context) *zap.Logger {
	if l := loggerFromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// GetCurrentWeather returns current conditions at lat/lon, from cache when
// present, otherwise from upstream (then cached for the current TTL).
func (s *WeatherService) GetCurrentWeather(ctx context.Context, lat, lon float64) (models.CurrentWeather, error) {
	coord, err := checkCoordinate(lat, lon)
	if err != nil {
		return models.CurrentWeather{}, err
	}
	return readThrough(ctx, s, cache.KindCurrent, coord, s.currentTTL, cache.DecodeCurrent, cache.EncodeCurrent, s.fetchCurrent)
}

// GetForecast returns up to forecast.MaxForecastDays daily summaries for lat/lon.
func (s *WeatherService) GetForecast(ctx context.Context, lat, lon float64) ([]models.ForecastDay, error) {
	coord, err := checkCoordinate(lat, lon)
	if err != nil {
		return nil, err
	}
	return readThrough(ctx, s, cache.KindForecast, coord, s.forecastTTL, cache.DecodeForecast, cache.EncodeForecast, s.fetchForecast)
}

// GetWeatherData fetches current conditions and the forecast concurrently.
// Either failure fails the whole call; no partial result is returned.
func (s *WeatherService) GetWeatherData(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	if _, err := checkCoordinate(lat, lon); err != nil {
		return models.WeatherData{}, err
	}

	var (
		current models.CurrentWeather
		days    []models.ForecastDay
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.GetCurrentWeather(gctx, lat, lon)
		return err
	})
	g.Go(func() error {
		var err error
		days, err = s.GetForecast(gctx, lat, lon)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.WeatherData{}, err
	}

	return models.WeatherData{
		Current:  current,
		Forecast: days,
		Location: models.Location{Name: unknownPlace, Country: unknownPlace, Lat: lat, Lon: lon},
	}, nil
}

// SearchCity geocodes query with a single upstream call for up to SearchLimit
// matches. Results are never cached.
func (s *WeatherService) SearchCity(ctx context.Context, query string) ([]models.City, error) {
	q, err := validation.ValidateSearchQuery(query, minSearchLen, maxSearchLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	observability.CitySearchesTotal.Inc()
	hits, err := s.client.SearchCities(ctx, q, SearchLimit)
	if err != nil {
		s.log(ctx).Warn("city search failed", zap.String("query", q), zap.Error(err))
		return nil, fmt.Errorf("%w: search %q: %w", ErrUpstreamFetch, q, err)
	}

	cities := make([]models.City, 0, len(hits))
	for _, h := range hits {
		cities = append(cities, forecast.NormalizeCity(h))
	}
	return cities, nil
}

func checkCoordinate(lat, lon float64) (models.Coordinate, error) {
	coord, err := validation.ValidateCoordinate(lat, lon)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return coord, nil
}

func (s *WeatherService) fetchCurrent(ctx context.Context, coord models.Coordinate) (models.CurrentWeather, error) {
	raw, err := s.client.FetchCurrent(ctx, coord)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: current: %w", ErrUpstreamFetch, err)
	}
	w, err := forecast.NormalizeCurrent(raw)
	if err != nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}
	return w, nil
}

func (s *WeatherService) fetchForecast(ctx context.Context, coord models.Coordinate) ([]models.ForecastDay, error) {
	raw, err := s.client.FetchForecast(ctx, coord)
	if err != nil {
		return nil, fmt.Errorf("%w: forecast: %w", ErrUpstreamFetch, err)
	}
	samples, err := forecast.NormalizeSamples(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}
	return forecast.Aggregate(samples), nil
}

// readThrough is the cache-aside path shared by the current and forecast reads.
// A read error or undecodable entry is a miss; a write error is logged and dropped.
func readThrough[T any](
	ctx context.Context,
	s *WeatherService,
	kind cache.Kind,
	coord models.Coordinate,
	ttl time.Duration,
	decode func([]byte) (T, error),
	encode func(T) ([]byte, error),
	fetch func(context.Context, models.Coordinate) (T, error),
) (T, error) {
	key := cache.Key(kind, coord)
	label := string(kind)
	logger := s.log(ctx)
	start := time.Now()

	if v, ok := cacheGet(ctx, s, logger, key, decode); ok {
		observability.CacheHitsTotal.WithLabelValues(label).Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return v, nil
	}
	observability.CacheMissesTotal.WithLabelValues(label).Inc()

	concurrentMisses, done := s.misses.begin(key)
	defer done()
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(label).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(label).Observe(float64(concurrentMisses))
	}
	logger.Debug("cache miss, fetching upstream", zap.String("key", key), zap.Int("concurrent_misses", concurrentMisses))

	load := func(ctx context.Context) (T, error) {
		v, err := fetch(ctx, coord)
		if err != nil {
			return v, err
		}
		cacheSet(ctx, s, logger, key, v, ttl, encode)
		return v, nil
	}

	var (
		v   T
		err error
	)
	if s.coalescer != nil {
		var shared interface{}
		var joined bool
		shared, joined, err = s.coalescer.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
			return load(ctx)
		})
		if joined {
			observability.RequestCoalescingHitsTotal.WithLabelValues(label).Inc()
		}
		if err == nil {
			v = shared.(T)
		}
	} else {
		v, err = load(ctx)
	}
	if err != nil {
		logger.Warn("upstream fetch failed", zap.String("key", key), zap.Error(err))
		var zero T
		if !errors.Is(err, ErrUpstreamFetch) {
			err = fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
		}
		return zero, err
	}

	logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return v, nil
}

// cacheGet reads and decodes key. Any failure is reported as a miss.
func cacheGet[T any](ctx context.Context, s *WeatherService, logger *zap.Logger, key string, decode func([]byte) (T, error)) (T, bool) {
	var zero T
	getStart := time.Now()
	raw, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(fmt.Errorf("%w: %v", cache.ErrCacheUnavailable, err)))
		return zero, false
	}
	if !ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "miss").Observe(getDuration)
		return zero, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)

	v, err := decode(raw)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("decode", categorizeCacheError(err)).Inc()
		logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return v, true
}

// cacheSet encodes and stores v. Failures are logged and counted only.
func cacheSet[T any](ctx context.Context, s *WeatherService, logger *zap.Logger, key string, v T, ttl time.Duration, encode func(T) ([]byte, error)) {
	raw, err := encode(v)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("encode", categorizeCacheError(err)).Inc()
		logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	setStart := time.Now()
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(fmt.Errorf("%w: %v", cache.ErrCacheUnavailable, err)))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, cache.ErrCorruptEntry) {
		return "corrupt"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
