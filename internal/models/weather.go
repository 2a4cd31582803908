package models

import (
	"errors"
	"fmt"
	"strings"
)

// Coordinates is a latitude/longitude pair as reported by the provider.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherRecord is the canonical current-weather value returned to callers.
// Temperature and FeelsLike are rounded once when the provider payload is mapped.
type WeatherRecord struct {
	City        string      `json:"city"`
	Country     string      `json:"country"`
	Temperature int         `json:"temperature"`
	FeelsLike   int         `json:"feelsLike"`
	Description string      `json:"description"`
	Main        string      `json:"main"`
	Humidity    int         `json:"humidity"`
	WindSpeed   float64     `json:"windSpeed"`
	Icon        string      `json:"icon"`
	Coordinates Coordinates `json:"coordinates"`
}

// Summary renders the one-line Japanese description handed to the model as tool output.
func (w WeatherRecord) Summary() string {
	return fmt.Sprintf("%sの現在の天気: 気温%d°C、体感%d°C、%s、湿度%d%%、風速%gm/s",
		w.City, w.Temperature, w.FeelsLike, w.Description, w.Humidity, w.WindSpeed)
}

// ErrEmptyQuery is returned by CityQuery.Validate when neither a name nor coordinates are set.
var ErrEmptyQuery = errors.New("either city name or coordinates must be provided")

// CityQuery selects a city either by name or by coordinates.
type CityQuery struct {
	Name           string
	Lat            float64
	Lon            float64
	HasCoordinates bool
}

// ByName returns a name query.
func ByName(name string) CityQuery {
	return CityQuery{Name: name}
}

// ByCoordinates returns a coordinate query.
func ByCoordinates(lat, lon float64) CityQuery {
	return CityQuery{Lat: lat, Lon: lon, HasCoordinates: true}
}

// IsName reports whether the query should take the name path.
// A name wins when both are set, matching the HTTP layer's precedence.
func (q CityQuery) IsName() bool {
	return strings.TrimSpace(q.Name) != ""
}

// Validate rejects a query with neither a name nor coordinates.
func (q CityQuery) Validate() error {
	if !q.IsName() && !q.HasCoordinates {
		return ErrEmptyQuery
	}
	return nil
}

// String is used for logging and cache keys.
func (q CityQuery) String() string {
	if q.IsName() {
		return strings.TrimSpace(q.Name)
	}
	return fmt.Sprintf("%.4f,%.4f", q.Lat, q.Lon)
}
