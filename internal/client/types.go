package client

// Raw OpenWeatherMap payloads. Blocks the normalizer depends on are pointers
// so that an absent block can be told apart from a zero-valued one.

type MainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
}

// CurrentResponse is the body of GET /data/2.5/weather.
type CurrentResponse struct {
	Main       *MainBlock         `json:"main"`
	Weather    []WeatherCondition `json:"weather"`
	Wind       *Wind              `json:"wind"`
	Visibility int                `json:"visibility"`
	Dt         int64              `json:"dt"`
	Name       string             `json:"name"`
}

// ForecastItem is one 3-hour sample of the forecast series.
type ForecastItem struct {
	Dt      int64              `json:"dt"`
	Main    *MainBlock         `json:"main"`
	Weather []WeatherCondition `json:"weather"`
	Wind    *Wind              `json:"wind"`
}

// ForecastResponse is the body of GET /data/2.5/forecast.
type ForecastResponse struct {
	List []ForecastItem `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
}

// GeoResult is one hit from GET /geo/1.0/direct.
type GeoResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}
