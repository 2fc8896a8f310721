package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-proxy-service/internal/observability"
)

// RouterConfig carries the per-route middleware settings.
type RouterConfig struct {
	// Limiter guards /api; nil disables inbound rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds each /api/weather request; 0 disables it.
	RequestTimeout time.Duration
}

// NewRouter wires every route and middleware onto a gorilla/mux router.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(NotFound)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))

	weather := api.PathPrefix("/weather").Subrouter()
	if cfg.RequestTimeout > 0 {
		weather.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	weather.HandleFunc("/current", h.GetCurrentWeather).Methods(http.MethodGet)
	weather.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	weather.HandleFunc("/complete", h.GetCompleteWeather).Methods(http.MethodGet)
	weather.HandleFunc("/search", h.SearchCities).Methods(http.MethodGet)

	api.HandleFunc("/cities", h.ListCities).Methods(http.MethodGet)
	api.HandleFunc("/cities", h.AddCity).Methods(http.MethodPost)
	api.HandleFunc("/cities/{id}", h.GetCity).Methods(http.MethodGet)
	api.HandleFunc("/cities/{id}", h.DeleteCity).Methods(http.MethodDelete)

	return router
}
