package forecast

import (
	"errors"
	"fmt"

	"github.com/kjstillabower/weather-proxy-service/internal/client"
	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

// ErrMalformedPayload means an upstream payload lacks a block the normalizer projects from.
var ErrMalformedPayload = errors.New("malformed upstream payload")

// Sample is one 3-hour forecast entry after projection from the upstream shape.
type Sample struct {
	Dt          int64
	TempMin     float64
	TempMax     float64
	Description string
	Icon        string
	Humidity    int
	WindSpeed   float64
}

// NormalizeCurrent projects a current-conditions payload. Units pass through
// unchanged (the client requests metric) and values are not range checked.
func NormalizeCurrent(raw client.CurrentResponse) (models.CurrentWeather, error) {
	if raw.Main == nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: current: missing main", ErrMalformedPayload)
	}
	if len(raw.Weather) == 0 {
		return models.CurrentWeather{}, fmt.Errorf("%w: current: empty weather", ErrMalformedPayload)
	}
	if raw.Wind == nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: current: missing wind", ErrMalformedPayload)
	}
	return models.CurrentWeather{
		Temp:        raw.Main.Temp,
		FeelsLike:   raw.Main.FeelsLike,
		Humidity:    raw.Main.Humidity,
		Pressure:    raw.Main.Pressure,
		Description: raw.Weather[0].Description,
		Icon:        raw.Weather[0].Icon,
		WindSpeed:   raw.Wind.Speed,
		WindDeg:     raw.Wind.Deg,
		Visibility:  raw.Visibility,
		Dt:          raw.Dt,
	}, nil
}

// NormalizeSamples projects the forecast series in upstream order. A nil list
// or any incomplete entry rejects the whole payload.
func NormalizeSamples(raw client.ForecastResponse) ([]Sample, error) {
	if raw.List == nil {
		return nil, fmt.Errorf("%w: forecast: missing list", ErrMalformedPayload)
	}
	samples := make([]Sample, 0, len(raw.List))
	for i, item := range raw.List {
		switch {
		case item.Main == nil:
			return nil, fmt.Errorf("%w: forecast[%d]: missing main", ErrMalformedPayload, i)
		case len(item.Weather) == 0:
			return nil, fmt.Errorf("%w: forecast[%d]: empty weather", ErrMalformedPayload, i)
		case item.Wind == nil:
			return nil, fmt.Errorf("%w: forecast[%d]: missing wind", ErrMalformedPayload, i)
		}
		samples = append(samples, Sample{
			Dt:          item.Dt,
			TempMin:     item.Main.TempMin,
			TempMax:     item.Main.TempMax,
			Description: item.Weather[0].Description,
			Icon:        item.Weather[0].Icon,
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
		})
	}
	return samples, nil
}

// NormalizeCity maps a geocoding hit to the compact city shape.
func NormalizeCity(raw client.GeoResult) models.City {
	return models.City{
		Name:    raw.Name,
		Country: raw.Country,
		Lat:     raw.Lat,
		Lon:     raw.Lon,
		State:   raw.State,
	}
}
