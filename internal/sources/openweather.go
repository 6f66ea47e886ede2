package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"continuouscare/internal/models"
)

const openWeatherURL = "https://api.openweathermap.org/data/2.5/weather?q=%s&units=metric&appid=%s"

// openWeatherSource is the home-independent outside environment feed. Every
// client gets one implicitly; it needs no registration and carries no fixed
// location. The fusion pipeline falls back to it when no inside sensor is
// within reach of the user's GPS fix.
type openWeatherSource struct {
	user string
	auth map[string]string
}

func newOpenWeather(cfg Config) ([]Source, error) {
	return []Source{&openWeatherSource{user: cfg.User, auth: cfg.Auth}}, nil
}

func (s *openWeatherSource) User() string                  { return s.user }
func (s *openWeatherSource) DeviceID() string              { return "external" }
func (s *openWeatherSource) Category() models.Category     { return models.CategoryEnvironment }
func (s *openWeatherSource) UpdateInterval() time.Duration { return 0 }
func (s *openWeatherSource) Placement() Placement          { return PlacementOutside }

func (s *openWeatherSource) Location() (float64, float64, bool) { return 0, 0, false }

func (s *openWeatherSource) Fetch(ctx context.Context) (RawReading, error) {
	city := s.auth["city"]
	if city == "" {
		city = "Aveiro"
	}
	return fetchURL(ctx, fmt.Sprintf(openWeatherURL, city, s.auth["api_key"]), nil)
}

func (s *openWeatherSource) Normalize(raw RawReading) (models.Record, error) {
	var payload struct {
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
			Pressure float64 `json:"pressure"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}

	rec := models.Record{
		"temperature": payload.Main.Temp,
		"humidity":    payload.Main.Humidity,
		"pressure":    payload.Main.Pressure,
	}
	if len(payload.Weather) > 0 {
		rec["weather"] = payload.Weather[0].Description
	}
	return rec, nil
}

func (s *openWeatherSource) DetectEvent(models.Record) *models.EventSummary { return nil }

func (s *openWeatherSource) RefreshCredentials(context.Context) (map[string]string, error) {
	return nil, fmt.Errorf("%w: openweather keys are not refreshable", ErrRefreshFailed)
}
