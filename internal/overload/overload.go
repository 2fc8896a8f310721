// Package overload reports when inbound traffic approaches rate limiter capacity.
package overload

import (
	"time"

	"github.com/kjstillabower/weather-proxy-service/internal/traffic"
)

// Config describes limiter capacity and the share of it that counts as overloaded.
type Config struct {
	Window       time.Duration
	RateLimitRPS int
	ThresholdPct int
}

// Enabled reports whether every field needed for the check is set.
func (c Config) Enabled() bool {
	return c.Window > 0 && c.RateLimitRPS > 0 && c.ThresholdPct > 0
}

// Threshold is the request count in Window above which the service is overloaded.
func (c Config) Threshold() float64 {
	return float64(c.RateLimitRPS) * c.Window.Seconds() * float64(c.ThresholdPct) / 100
}

// Exceeded reports whether count requests in the window breach the threshold.
func (c Config) Exceeded(count int) bool {
	return c.Enabled() && float64(count) > c.Threshold()
}

// IsOverloaded checks recorded traffic (successes, errors and denials) against c.
func IsOverloaded(c Config) bool {
	if !c.Enabled() {
		return false
	}
	return c.Exceeded(traffic.RequestCount(c.Window))
}
