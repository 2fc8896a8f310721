package cache

import (
	"strconv"
	"time"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

const keyPrefix = "weather:"

// Kind identifies which payload a cache entry holds.
type Kind string

const (
	KindCurrent  Kind = "current"
	KindForecast Kind = "forecast"
)

// Default lifetimes. Current conditions change faster than daily aggregates.
const (
	DefaultCurrentTTL  = 10 * time.Minute
	DefaultForecastTTL = 60 * time.Minute
)

// TTL returns the default lifetime for entries of this kind.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindForecast:
		return DefaultForecastTTL
	default:
		return DefaultCurrentTTL
	}
}

// Key builds "weather:{kind}:{lat}:{lon}" with both coordinates rounded to
// two decimals, so points roughly 1.1 km apart share one entry.
func Key(kind Kind, c models.Coordinate) string {
	return keyPrefix + string(kind) + ":" + formatCoord(c.Lat) + ":" + formatCoord(c.Lon)
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}
