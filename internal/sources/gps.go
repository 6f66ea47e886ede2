package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"continuouscare/internal/models"
)

const phoneGPSURL = "http://smartphone-tracer/user/%s/location"

// phoneGPSSource polls the continuous-location endpoint of the user's
// phone. It feeds both the scheduled GPS category and the per-tick Path
// derivation in the fusion pipeline.
type phoneGPSSource struct {
	user     string
	deviceID string
}

func newPhoneGPS(cfg Config) ([]Source, error) {
	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = "phone"
	}
	return []Source{&phoneGPSSource{user: cfg.User, deviceID: deviceID}}, nil
}

func (s *phoneGPSSource) User() string                  { return s.user }
func (s *phoneGPSSource) DeviceID() string              { return s.deviceID }
func (s *phoneGPSSource) Category() models.Category     { return models.CategoryGPS }
func (s *phoneGPSSource) UpdateInterval() time.Duration { return time.Minute }

func (s *phoneGPSSource) Fetch(ctx context.Context) (RawReading, error) {
	return fetchURL(ctx, fmt.Sprintf(phoneGPSURL, s.user), nil)
}

func (s *phoneGPSSource) Normalize(raw RawReading) (models.Record, error) {
	var payload struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}
	if payload.Latitude == nil || payload.Longitude == nil {
		return nil, fmt.Errorf("%w: missing coordinates", ErrMalformedReading)
	}
	return models.Record{
		"latitude":  *payload.Latitude,
		"longitude": *payload.Longitude,
	}, nil
}

func (s *phoneGPSSource) DetectEvent(models.Record) *models.EventSummary { return nil }

func (s *phoneGPSSource) RefreshCredentials(context.Context) (map[string]string, error) {
	return nil, fmt.Errorf("%w: gps tracer needs no credentials", ErrRefreshFailed)
}
