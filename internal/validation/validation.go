package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

var validate = validator.New()

// ErrCoordinateRequired is returned when lat or lon is missing from a request.
var ErrCoordinateRequired = errors.New("latitude and longitude parameters are required")

// ErrCoordinateNotNumber is returned when lat or lon does not parse as a finite number.
var ErrCoordinateNotNumber = errors.New("latitude and longitude must be valid numbers")

// ErrLatitudeRange is returned when latitude is outside [-90, 90].
var ErrLatitudeRange = errors.New("latitude must be between -90 and 90")

// ErrLongitudeRange is returned when longitude is outside [-180, 180].
var ErrLongitudeRange = errors.New("longitude must be between -180 and 180")

// ErrQueryEmpty is returned when a search query is missing.
var ErrQueryEmpty = errors.New("search query is required")

// ErrQueryTooShort is returned when query length is below the minimum.
var ErrQueryTooShort = errors.New("search query too short")

// ErrQueryTooLong is returned when query length exceeds the maximum.
var ErrQueryTooLong = errors.New("search query too long")


// ErrInvalidCity is returned when a saved-city payload fails validation.
var ErrInvalidCity = errors.New("invalid city")

type coordinate struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

// ValidateCoordinate checks that lat and lon are finite and in range.
func ValidateCoordinate(lat, lon float64) (models.Coordinate, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return models.Coordinate{}, ErrCoordinateNotNumber
	}
	if err := validate.Struct(coordinate{Lat: lat, Lon: lon}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Lon" {
			return models.Coordinate{}, ErrLongitudeRange
		}
		return models.Coordinate{}, ErrLatitudeRange
	}
	return models.Coordinate{Lat: lat, Lon: lon}, nil
}

// ParseCoordinate parses lat/lon query values and validates them.
// Both are required; each must be a finite decimal number.
func ParseCoordinate(latStr, lonStr string) (models.Coordinate, error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return models.Coordinate{}, ErrCoordinateRequired
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Coordinate{}, ErrCoordinateNotNumber
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.Coordinate{}, ErrCoordinateNotNumber
	}
	return ValidateCoordinate(lat, lon)
}

// ValidateSearchQuery enforces length bounds in runes (minLen, maxLen; 0 disables
// a bound) on the query as given. Any characters are allowed; the geocoder
// decides what matches.
func ValidateSearchQuery(input string, minLen, maxLen int) (string, error) {
	n := utf8.RuneCountInString(input)
	if n == 0 {
		return "", ErrQueryEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrQueryTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	return input, nil
}

// CityInput is the body of a save-city request. Lat and Lon are pointers so
// that an explicit 0 is accepted while an absent value is rejected.
type CityInput struct {
	Name    string   `json:"name" validate:"required,max=100"`
	Country string   `json:"country" validate:"required,max=100"`
	Lat     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon     *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	State   string   `json:"state" validate:"max=100"`
}

// ValidateCity trims the text fields and validates the payload.
func ValidateCity(in *CityInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Country = strings.TrimSpace(in.Country)
	in.State = strings.TrimSpace(in.State)
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return fmt.Errorf("%w: name, country, lat and lon are required", ErrInvalidCity)
			}
			return fmt.Errorf("%w: %s failed %s", ErrInvalidCity, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidCity, err)
	}
	if math.IsNaN(*in.Lat) || math.IsNaN(*in.Lon) {
		return fmt.Errorf("%w: lat and lon must be numbers", ErrInvalidCity)
	}
	return nil
}
