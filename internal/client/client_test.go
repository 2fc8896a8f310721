package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-proxy-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

var seattle = models.Coordinate{Lat: 47.61, Lon: -122.33}

func currentPayload() map[string]interface{} {
	return map[string]interface{}{
		"name": "Seattle",
		"dt":   1700000000,
		"main": map[string]interface{}{
			"temp":       15.5,
			"feels_like": 14.9,
			"humidity":   65,
			"pressure":   1013,
		},
		"weather": []map[string]interface{}{
			{"main": "Clouds", "description": "scattered clouds", "icon": "03d"},
		},
		"wind":       map[string]interface{}{"speed": 3.2, "deg": 200},
		"visibility": 10000,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: "valid-api-key-12345", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() unexpected error: %v", err)
			}
			if client == nil {
				t.Fatalf("NewOpenWeatherClient() expected client, got nil")
			}
		})
	}
}

func TestNewOpenWeatherClient_DefaultURL(t *testing.T) {
	client, err := NewOpenWeatherClient("test-api-key-12345", "", time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	if client.apiURL != DefaultAPIURL || client.geoURL != DefaultAPIURL {
		t.Errorf("apiURL = %q, geoURL = %q, want %q", client.apiURL, client.geoURL, DefaultAPIURL)
	}
}

func TestOpenWeatherClient_FetchCurrent_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/data/2.5/weather" {
			t.Errorf("path = %q, want /data/2.5/weather", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "47.61" || q.Get("lon") != "-122.33" {
			t.Errorf("lat/lon = %q/%q, want 47.61/-122.33", q.Get("lat"), q.Get("lon"))
		}
		if q.Get("appid") != "test-api-key-12345" {
			t.Errorf("expected API key in query")
		}
		if q.Get("units") != "metric" {
			t.Errorf("expected units=metric in query")
		}
		writeJSON(w, currentPayload())
	}))
	defer server.Close()

	client, err := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	got, err := client.FetchCurrent(context.Background(), seattle)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}

	if got.Main == nil || got.Main.Temp != 15.5 || got.Main.Pressure != 1013 {
		t.Errorf("Main = %+v, want temp 15.5 pressure 1013", got.Main)
	}
	if got.Wind == nil || got.Wind.Deg != 200 {
		t.Errorf("Wind = %+v, want deg 200", got.Wind)
	}
	if len(got.Weather) != 1 || got.Weather[0].Icon != "03d" {
		t.Errorf("Weather = %+v, want icon 03d", got.Weather)
	}
	if got.Dt != 1700000000 || got.Visibility != 10000 {
		t.Errorf("Dt = %d, Visibility = %d", got.Dt, got.Visibility)
	}
}

func TestOpenWeatherClient_FetchCurrent_MissingBlocksStayNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"name": "Nowhere", "weather": []interface{}{}})
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)
	got, err := client.FetchCurrent(context.Background(), seattle)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if got.Main != nil || got.Wind != nil {
		t.Errorf("Main = %v, Wind = %v, want nil", got.Main, got.Wind)
	}
}

func TestOpenWeatherClient_FetchForecast_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/2.5/forecast" {
			t.Errorf("path = %q, want /data/2.5/forecast", r.URL.Path)
		}
		writeJSON(w, map[string]interface{}{
			"list": []map[string]interface{}{
				{
					"dt":      1700000000,
					"main":    map[string]interface{}{"temp": 10, "temp_min": 9, "temp_max": 11, "humidity": 70},
					"weather": []map[string]interface{}{{"description": "light rain", "icon": "10d"}},
					"wind":    map[string]interface{}{"speed": 4.1},
				},
				{
					"dt":      1700010800,
					"main":    map[string]interface{}{"temp": 12, "temp_min": 11, "temp_max": 13, "humidity": 60},
					"weather": []map[string]interface{}{{"description": "overcast", "icon": "04d"}},
					"wind":    map[string]interface{}{"speed": 3.0},
				},
			},
			"city": map[string]interface{}{"name": "Seattle", "country": "US"},
		})
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)
	got, err := client.FetchForecast(context.Background(), seattle)
	if err != nil {
		t.Fatalf("FetchForecast() error = %v", err)
	}
	if len(got.List) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(got.List))
	}
	if got.List[1].Main.TempMax != 13 {
		t.Errorf("List[1].Main.TempMax = %v, want 13", got.List[1].Main.TempMax)
	}
	if got.City.Country != "US" {
		t.Errorf("City.Country = %q, want US", got.City.Country)
	}
}

func TestOpenWeatherClient_SearchCities(t *testing.T) {
	var gotQuery, gotLimit, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		writeJSON(w, []map[string]interface{}{
			{"name": "London", "country": "GB", "state": "England", "lat": 51.5073, "lon": -0.1276},
			{"name": "London", "country": "CA", "state": "Ontario", "lat": 42.9832, "lon": -81.2433},
		})
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", "https://unused.invalid", 2*time.Second)
	client.SetGeoURL(server.URL)

	got, err := client.SearchCities(context.Background(), "London", 5)
	if err != nil {
		t.Fatalf("SearchCities() error = %v", err)
	}
	if gotPath != "/geo/1.0/direct" || gotQuery != "London" || gotLimit != "5" {
		t.Errorf("request path=%q q=%q limit=%q", gotPath, gotQuery, gotLimit)
	}
	if len(got) != 2 || got[1].State != "Ontario" {
		t.Errorf("SearchCities() = %+v", got)
	}
}

func TestOpenWeatherClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
		retryable  bool
	}{
		{name: "401 unauthorized", statusCode: http.StatusUnauthorized, wantErr: ErrInvalidAPIKey, retryable: false},
		{name: "404 not found", statusCode: http.StatusNotFound, wantErr: ErrLocationNotFound, retryable: false},
		{name: "429 rate limited", statusCode: http.StatusTooManyRequests, wantErr: ErrRateLimited, retryable: false},
		{name: "500 server error", statusCode: http.StatusInternalServerError, wantErr: ErrUpstreamFailure, retryable: true},
		{name: "502 bad gateway", statusCode: http.StatusBadGateway, wantErr: ErrUpstreamFailure, retryable: true},
		{name: "503 unavailable", statusCode: http.StatusServiceUnavailable, wantErr: ErrUpstreamFailure, retryable: true},
		{name: "504 gateway timeout", statusCode: http.StatusGatewayTimeout, wantErr: ErrUpstreamFailure, retryable: true},
		{name: "418 other client error", statusCode: http.StatusTeapot, wantErr: ErrUpstreamFailure, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client, err := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 2*time.Second, 1, 10*time.Millisecond, 100*time.Millisecond)
			if err != nil {
				t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
			}

			_, err = client.FetchCurrent(context.Background(), seattle)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchCurrent() error = %v, want %v", err, tt.wantErr)
			}
			if got := client.isRetryable(err); got != tt.retryable {
				t.Errorf("isRetryable(%v) = %v, want %v", err, got, tt.retryable)
			}
		})
	}
}

func TestOpenWeatherClient_RetryLogic(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, currentPayload())
	}))
	defer server.Close()

	client, err := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}

	got, err := client.FetchCurrent(context.Background(), seattle)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if got.Name != "Seattle" {
		t.Errorf("Name = %q, want Seattle", got.Name)
	}
}

func TestOpenWeatherClient_NoRetryOnNonRetryableError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond)

	_, err := client.SearchCities(context.Background(), "London", 5)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("SearchCities() error = %v, want %v", err, ErrInvalidAPIKey)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("expected 1 attempt (no retry), got %d", n)
	}
}

// TestOpenWeatherClient_NoRetryOnUpstreamRateLimit verifies that a 429 is
// returned after a single attempt even with retries configured.
func TestOpenWeatherClient_NoRetryOnUpstreamRateLimit(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond)

	_, err := client.FetchForecast(context.Background(), seattle)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("FetchForecast() error = %v, want ErrRateLimited", err)
	}
	if strings.Contains(err.Error(), "exhausted retries") {
		t.Errorf("FetchForecast() error = %v, want no retry loop", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("expected 1 attempt, got %d", n)
	}
}

func TestOpenWeatherClient_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 2*time.Second, 2, 10*time.Millisecond, 100*time.Millisecond)

	_, err := client.FetchForecast(context.Background(), seattle)
	if err == nil || !strings.Contains(err.Error(), "exhausted retries") {
		t.Errorf("FetchForecast() error = %v, want 'exhausted retries'", err)
	}
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("FetchForecast() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestOpenWeatherClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchCurrent(ctx, seattle)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchCurrent() error = %v, want context.Canceled", err)
	}
}

func TestOpenWeatherClient_CorrelationID(t *testing.T) {
	var capturedCorrID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCorrID = r.Header.Get("X-Correlation-ID")
		writeJSON(w, currentPayload())
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)

	ctx := context.WithValue(context.Background(), "correlation_id", "test-correlation-id-123")
	if _, err := client.FetchCurrent(ctx, seattle); err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if capturedCorrID != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", capturedCorrID, "test-correlation-id-123")
	}
}

func TestOpenWeatherClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)

	_, err := client.FetchCurrent(context.Background(), seattle)
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Errorf("FetchCurrent() error = %v, want 'parse response'", err)
	}
}

func TestOpenWeatherClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 50*time.Millisecond, 1, 10*time.Millisecond, 100*time.Millisecond)

	_, err := client.FetchCurrent(context.Background(), seattle)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("FetchCurrent() error = %v, want 'timeout'", err)
	}
}

func TestOpenWeatherClient_InvalidURL(t *testing.T) {
	client, err := NewOpenWeatherClient("test-api-key-12345", "://invalid", 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	_, err = client.FetchCurrent(context.Background(), seattle)
	if err == nil || !strings.Contains(err.Error(), "build request") {
		t.Errorf("FetchCurrent() error = %v, want 'build request'", err)
	}
}

func TestOpenWeatherClient_CircuitBreakerOpens(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 2*time.Second, 1, 10*time.Millisecond, 100*time.Millisecond)
	client.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour}))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.FetchCurrent(ctx, seattle); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("FetchCurrent() #%d error = %v, want ErrUpstreamFailure", i, err)
		}
	}

	_, err := client.FetchCurrent(ctx, seattle)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("FetchCurrent() error = %v, want ErrCircuitOpen", err)
	}
	if client.isRetryable(err) {
		t.Error("isRetryable(ErrCircuitOpen) = true, want false")
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("upstream attempts = %d, want 2 (third call short-circuited)", n)
	}
}

func TestOpenWeatherClient_RateLimiterWaitFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called when the limiter wait fails")
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClientWithRetry("test-api-key-12345", server.URL, 2*time.Second, 1, 10*time.Millisecond, 100*time.Millisecond)
	// A zero-burst limiter can never grant a token.
	client.SetRateLimiter(rate.NewLimiter(rate.Limit(1), 0))

	_, err := client.FetchCurrent(context.Background(), seattle)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("FetchCurrent() error = %v, want ErrRateLimited", err)
	}
}

func TestOpenWeatherClient_calculateBackoff(t *testing.T) {
	client := &OpenWeatherClient{
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
	}

	tests := []struct {
		name    string
		attempt int
		wantMax time.Duration
	}{
		{name: "first retry", attempt: 1, wantMax: 200 * time.Millisecond},
		{name: "second retry", attempt: 2, wantMax: 400 * time.Millisecond},
		{name: "third retry", attempt: 3, wantMax: 2 * time.Second},
		{name: "sixth retry capped", attempt: 6, wantMax: 2200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.calculateBackoff(tt.attempt)
			if got > tt.wantMax {
				t.Errorf("calculateBackoff(%d) = %v, want <= %v", tt.attempt, got, tt.wantMax)
			}
			if got <= 0 {
				t.Errorf("calculateBackoff(%d) = %v, want > 0", tt.attempt, got)
			}
		})
	}
}

func TestOpenWeatherClient_isRetryable_TimeoutErrors(t *testing.T) {
	client := &OpenWeatherClient{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout in message", errors.New("request timeout: context deadline exceeded"), true},
		{"context canceled", errors.New("context canceled"), true},
		{"nil", nil, false},
		{"non-retryable", ErrInvalidAPIKey, false},
		{"circuit open", ErrCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{name: "success", statusCode: http.StatusOK, wantErr: false},
		{name: "401 invalid key", statusCode: http.StatusUnauthorized, wantErr: true},
		{name: "500 server error", statusCode: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)

			err := client.ValidateAPIKey(context.Background())
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("ValidateAPIKey() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateAPIKey() expected error, got nil")
			}
			if tt.statusCode == http.StatusUnauthorized && !errors.Is(err, ErrInvalidAPIKey) {
				t.Errorf("ValidateAPIKey() error = %v, want ErrInvalidAPIKey", err)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "success", 204: "success", 429: "rate_limited", 404: "client_error", 503: "server_error", 102: "error"}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
