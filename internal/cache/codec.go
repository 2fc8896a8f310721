package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

// ErrCorruptEntry is returned when a cached value cannot be decoded into the
// expected shape. Callers treat it like any other cache failure.
var ErrCorruptEntry = fmt.Errorf("%w: corrupt entry", ErrCacheUnavailable)

// currentEntry is the cached wire form of models.CurrentWeather. Pointer fields
// are required; a missing one means the entry was written by something else.
type currentEntry struct {
	Temp        *float64 `json:"temp"`
	FeelsLike   float64  `json:"feels_like"`
	Humidity    int      `json:"humidity"`
	Pressure    int      `json:"pressure"`
	Description *string  `json:"description"`
	Icon        string   `json:"icon"`
	WindSpeed   float64  `json:"wind_speed"`
	WindDeg     int      `json:"wind_deg"`
	Visibility  int      `json:"visibility"`
	Dt          *int64   `json:"dt"`
}

type forecastEntry struct {
	Date        *string  `json:"date"`
	TempMin     *float64 `json:"temp_min"`
	TempMax     *float64 `json:"temp_max"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Humidity    int      `json:"humidity"`
	WindSpeed   float64  `json:"wind_speed"`
}

// EncodeCurrent serializes current conditions for the cache.
func EncodeCurrent(w models.CurrentWeather) ([]byte, error) {
	return json.Marshal(w)
}

// DecodeCurrent parses a cached current-conditions entry.
func DecodeCurrent(raw []byte) (models.CurrentWeather, error) {
	var e currentEntry
	if err := strictUnmarshal(raw, &e); err != nil {
		return models.CurrentWeather{}, err
	}
	if e.Temp == nil || e.Description == nil || e.Dt == nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: missing required field", ErrCorruptEntry)
	}
	return models.CurrentWeather{
		Temp:        *e.Temp,
		FeelsLike:   e.FeelsLike,
		Humidity:    e.Humidity,
		Pressure:    e.Pressure,
		Description: *e.Description,
		Icon:        e.Icon,
		WindSpeed:   e.WindSpeed,
		WindDeg:     e.WindDeg,
		Visibility:  e.Visibility,
		Dt:          *e.Dt,
	}, nil
}

// EncodeForecast serializes daily summaries for the cache. A nil slice is
// written as an empty array so it decodes back as a (cached) empty forecast.
func EncodeForecast(days []models.ForecastDay) ([]byte, error) {
	if days == nil {
		days = []models.ForecastDay{}
	}
	return json.Marshal(days)
}

// DecodeForecast parses a cached forecast entry.
func DecodeForecast(raw []byte) ([]models.ForecastDay, error) {
	var entries []forecastEntry
	if err := strictUnmarshal(raw, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: null forecast", ErrCorruptEntry)
	}
	days := make([]models.ForecastDay, 0, len(entries))
	for i, e := range entries {
		if e.Date == nil || e.TempMin == nil || e.TempMax == nil {
			return nil, fmt.Errorf("%w: day %d missing required field", ErrCorruptEntry, i)
		}
		if _, err := time.Parse("2006-01-02", *e.Date); err != nil {
			return nil, fmt.Errorf("%w: day %d date %q", ErrCorruptEntry, i, *e.Date)
		}
		days = append(days, models.ForecastDay{
			Date:        *e.Date,
			TempMin:     *e.TempMin,
			TempMax:     *e.TempMax,
			Description: e.Description,
			Icon:        e.Icon,
			Humidity:    e.Humidity,
			WindSpeed:   e.WindSpeed,
		})
	}
	return days, nil
}

func strictUnmarshal(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrCorruptEntry)
	}
	return nil
}
