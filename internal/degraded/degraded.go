// Package degraded reports when the weather request error rate is too high.
package degraded

import (
	"time"

	"github.com/kjstillabower/weather-proxy-service/internal/traffic"
)

// Config holds the error-rate window and the percentage that marks degradation.
type Config struct {
	Window   time.Duration
	ErrorPct int
}

// Enabled reports whether the check has a window and threshold.
func (c Config) Enabled() bool {
	return c.Window > 0 && c.ErrorPct > 0
}

// Breached reports whether errs out of total meets the error percentage.
// No traffic is never degraded.
func (c Config) Breached(errs, total int) bool {
	if !c.Enabled() || total == 0 {
		return false
	}
	return float64(errs)*100/float64(total) >= float64(c.ErrorPct)
}

// IsDegraded checks the recorded success/error outcomes against c.
// Rate-limit denials are not part of the ratio.
func IsDegraded(c Config) bool {
	if !c.Enabled() {
		return false
	}
	return c.Breached(traffic.ErrorRate(c.Window))
}
