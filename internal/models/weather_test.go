package models

import (
	"errors"
	"strings"
	"testing"
)

func TestCityQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       CityQuery
		wantErr error
	}{
		{"name", ByName("Tokyo"), nil},
		{"coordinates", ByCoordinates(35.68, 139.69), nil},
		{"zero coordinates are still coordinates", ByCoordinates(0, 0), nil},
		{"empty", CityQuery{}, ErrEmptyQuery},
		{"whitespace name", ByName("   "), ErrEmptyQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCityQuery_String(t *testing.T) {
	if got := ByName(" Osaka ").String(); got != "Osaka" {
		t.Errorf("String() = %q, want Osaka", got)
	}
	if got := ByCoordinates(35.6895, 139.6917).String(); got != "35.6895,139.6917" {
		t.Errorf("String() = %q, want 35.6895,139.6917", got)
	}
}

func TestWeatherRecord_Summary(t *testing.T) {
	w := WeatherRecord{City: "Tokyo", Temperature: 18, FeelsLike: 17, Description: "曇りがち", Humidity: 60, WindSpeed: 3.5}
	got := w.Summary()
	for _, want := range []string{"Tokyo", "気温18°C", "体感17°C", "曇りがち", "湿度60%", "風速3.5m/s"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}
}
