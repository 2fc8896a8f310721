package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-proxy-service/internal/cities"
	"github.com/kjstillabower/weather-proxy-service/internal/client"
	"github.com/kjstillabower/weather-proxy-service/internal/degraded"
	"github.com/kjstillabower/weather-proxy-service/internal/lifecycle"
	"github.com/kjstillabower/weather-proxy-service/internal/models"
	"github.com/kjstillabower/weather-proxy-service/internal/observability"
	"github.com/kjstillabower/weather-proxy-service/internal/overload"
	"github.com/kjstillabower/weather-proxy-service/internal/service"
	"github.com/kjstillabower/weather-proxy-service/internal/traffic"
	"github.com/kjstillabower/weather-proxy-service/internal/validation"
)

// HealthConfig holds thresholds and dependency probes for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	StartTime            time.Time
	// CachePing, when set, reports cache reachability. Set for memcached and redis.
	CachePing func() error
	// CitiesPing, when set, reports saved-city store reachability.
	CitiesPing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	cities           cities.Store
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil, in which case
// /health only reports shutdown.
func NewHandler(
	weatherService *service.WeatherService,
	store cities.Store,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService: weatherService,
		cities:         store,
		healthConfig:   healthConfig,
		logger:         logger,
	}
}

// GetCurrentWeather handles GET /api/weather/current?lat=&lon=.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinateParams(w, r)
	if !ok {
		return
	}
	result, err := h.weatherService.GetCurrentWeather(r.Context(), lat, lon)
	h.respondWeather(w, r, result, err)
}

// GetForecast handles GET /api/weather/forecast?lat=&lon=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinateParams(w, r)
	if !ok {
		return
	}
	result, err := h.weatherService.GetForecast(r.Context(), lat, lon)
	h.respondWeather(w, r, result, err)
}

// GetCompleteWeather handles GET /api/weather/complete?lat=&lon=.
func (h *Handler) GetCompleteWeather(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinateParams(w, r)
	if !ok {
		return
	}
	result, err := h.weatherService.GetWeatherData(r.Context(), lat, lon)
	h.respondWeather(w, r, result, err)
}

// SearchCities handles GET /api/weather/search?q=.
func (h *Handler) SearchCities(w http.ResponseWriter, r *http.Request) {
	result, err := h.weatherService.SearchCity(r.Context(), r.URL.Query().Get("q"))
	h.respondWeather(w, r, result, err)
}

// respondWeather records the outcome for health tracking and writes the envelope.
// Validation failures are the caller's fault and do not count toward the error rate.
func (h *Handler) respondWeather(w http.ResponseWriter, r *http.Request, data interface{}, err error) {
	if err == nil {
		traffic.RecordSuccess()
		writeData(w, http.StatusOK, data)
		return
	}
	if !errors.Is(err, service.ErrValidation) {
		traffic.RecordError()
	}
	writeServiceError(w, r, err)
}

// coordinateParams parses lat/lon query parameters, writing a 400 on failure.
func coordinateParams(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	q := r.URL.Query()
	coord, err := validation.ParseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return 0, 0, false
	}
	return coord.Lat, coord.Lon, true
}

// ListCities handles GET /api/cities.
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	list, err := h.cities.List(r.Context())
	if err != nil {
		h.storeError(w, r, "list saved cities", err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// AddCity handles POST /api/cities.
func (h *Handler) AddCity(w http.ResponseWriter, r *http.Request) {
	var in validation.CityInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		return
	}
	if err := validation.ValidateCity(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	saved, err := h.cities.Add(r.Context(), models.City{
		Name:    in.Name,
		Country: in.Country,
		Lat:     *in.Lat,
		Lon:     *in.Lon,
		State:   in.State,
	})
	if errors.Is(err, cities.ErrDuplicate) {
		writeError(w, r, http.StatusConflict, "CITY_EXISTS", err.Error())
		return
	}
	if err != nil {
		h.storeError(w, r, "add saved city", err)
		return
	}
	requestLogger(r, h.logger).Info("city saved", zap.String("id", saved.ID), zap.String("name", saved.Name))
	writeData(w, http.StatusCreated, saved)
}

// GetCity handles GET /api/cities/{id}.
func (h *Handler) GetCity(w http.ResponseWriter, r *http.Request) {
	c, err := h.cities.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, cities.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		h.storeError(w, r, "get saved city", err)
		return
	}
	writeData(w, http.StatusOK, c)
}

// DeleteCity handles DELETE /api/cities/{id}. The removed city is returned.
func (h *Handler) DeleteCity(w http.ResponseWriter, r *http.Request) {
	c, err := h.cities.Remove(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, cities.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		h.storeError(w, r, "remove saved city", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    c,
		"message": "City removed successfully",
	})
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestLogger(r, h.logger).Error(op+" failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+op)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if hc := h.healthConfig; hc != nil {
		if hc.CachePing != nil {
			checks["cache"] = probe(hc.CachePing)
		}
		if hc.CitiesPing != nil {
			checks["cities"] = probe(hc.CitiesPing)
		}
		if !hc.StartTime.IsZero() {
			resp["uptimeSeconds"] = int64(time.Since(hc.StartTime).Seconds())
		}
	}
	writeJSON(w, result.statusCode, resp)
}

func probe(ping func() error) string {
	if ping() == nil {
		return "healthy"
	}
	return "unhealthy"
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
// Cache reachability is reported in checks but never changes the status,
// since requests are still served from upstream when the cache is down.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	hc := h.healthConfig
	if hc == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if overload.IsOverloaded(overload.Config{
		Window:       hc.OverloadWindow,
		RateLimitRPS: hc.RateLimitRPS,
		ThresholdPct: hc.OverloadThresholdPct,
	}) {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	if degraded.IsDegraded(degraded.Config{Window: hc.DegradedWindow, ErrorPct: hc.DegradedErrorPct}) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// NotFound writes the error envelope for unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found")
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData writes the success envelope {"success": true, "data": ...}.
func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// writeError writes the error envelope with code, message, and the request's
// correlation ID as requestId.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}

// writeServiceError maps service errors to status codes:
// validation 400, upstream 502, anything else 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := requestLogger(r, nil)
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
	case errors.Is(err, service.ErrUpstreamFetch):
		if logger != nil {
			logger.Warn("upstream error",
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err))
		}
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	default:
		if logger != nil {
			logger.Error("unexpected service error", zap.Error(err))
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// validationMessage strips the sentinel prefix so clients see only the field problem.
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
}

func correlationID(r *http.Request) string {
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		return v
	}
	return ""
}

// requestLogger returns the request-scoped logger set by CorrelationIDMiddleware, or fallback.
func requestLogger(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if l, ok := r.Context().Value("logger").(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}
