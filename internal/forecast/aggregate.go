package forecast

import (
	"time"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

// MaxForecastDays caps the number of daily summaries Aggregate returns.
const MaxForecastDays = 5

const dateLayout = "2006-01-02"

// Aggregate folds 3-hour samples into one summary per UTC calendar day.
//
// The first sample of a day seeds TempMin and TempMax and supplies the
// description, icon, humidity and wind speed. Later samples for that day only
// widen TempMin and TempMax. Days are returned in the order they first appear
// in samples, at most MaxForecastDays of them. The result is never nil.
func Aggregate(samples []Sample) []models.ForecastDay {
	days := make([]models.ForecastDay, 0, MaxForecastDays)
	index := make(map[string]int)

	for _, s := range samples {
		date := time.Unix(s.Dt, 0).UTC().Format(dateLayout)
		i, seen := index[date]
		if !seen {
			index[date] = len(days)
			days = append(days, models.ForecastDay{
				Date:        date,
				TempMin:     s.TempMin,
				TempMax:     s.TempMax,
				Description: s.Description,
				Icon:        s.Icon,
				Humidity:    s.Humidity,
				WindSpeed:   s.WindSpeed,
			})
			continue
		}
		if s.TempMin < days[i].TempMin {
			days[i].TempMin = s.TempMin
		}
		if s.TempMax > days[i].TempMax {
			days[i].TempMax = s.TempMax
		}
	}

	if len(days) > MaxForecastDays {
		days = days[:MaxForecastDays]
	}
	return days
}
