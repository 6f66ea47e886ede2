package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"continuouscare/internal/models"
)

const foobotURL = "https://api.foobot.io/v2/device/%s/datapoint/10/last/0/"

// foobotSource is a fixed home air-quality monitor. It is never scheduled:
// the fusion pipeline pulls it when the user's GPS fix falls inside the
// geofence radius around the sensor.
type foobotSource struct {
	user      string
	deviceID  string
	auth      map[string]string
	latitude  float64
	longitude float64
	located   bool
}

func newFoobot(cfg Config) ([]Source, error) {
	if cfg.Auth["api_key"] == "" {
		return nil, fmt.Errorf("foobot device %s: missing api_key", cfg.DeviceID)
	}
	src := &foobotSource{user: cfg.User, deviceID: cfg.DeviceID, auth: cfg.Auth}
	if cfg.Latitude != nil && cfg.Longitude != nil {
		src.latitude, src.longitude, src.located = *cfg.Latitude, *cfg.Longitude, true
	}
	return []Source{src}, nil
}

func (s *foobotSource) User() string                  { return s.user }
func (s *foobotSource) DeviceID() string              { return s.deviceID }
func (s *foobotSource) Category() models.Category     { return models.CategoryEnvironment }
func (s *foobotSource) UpdateInterval() time.Duration { return 0 }
func (s *foobotSource) Placement() Placement          { return PlacementInside }

func (s *foobotSource) Location() (float64, float64, bool) {
	return s.latitude, s.longitude, s.located
}

func (s *foobotSource) Fetch(ctx context.Context) (RawReading, error) {
	url := fmt.Sprintf(foobotURL, s.auth["uuid"])
	return fetchURL(ctx, url, map[string]string{
		"Accept":          "application/json;charset=UTF-8",
		"X-API-KEY-TOKEN": s.auth["api_key"],
	})
}

func (s *foobotSource) Normalize(raw RawReading) (models.Record, error) {
	// Foobot returns parallel arrays: sensor names and one row of values.
	var payload struct {
		Sensors    []string    `json:"sensors"`
		Datapoints [][]float64 `json:"datapoints"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}
	if len(payload.Datapoints) == 0 || len(payload.Datapoints[0]) != len(payload.Sensors) {
		return nil, fmt.Errorf("%w: sensor/datapoint mismatch", ErrMalformedReading)
	}

	names := map[string]string{
		"co2": "co2", "voc": "voc", "pm": "particulate_matter",
		"tmp": "temperature", "hum": "humidity",
	}
	rec := models.Record{}
	for i, sensor := range payload.Sensors {
		if field, ok := names[sensor]; ok {
			rec[field] = payload.Datapoints[0][i]
		}
	}
	return rec, nil
}

func (s *foobotSource) DetectEvent(rec models.Record) *models.EventSummary {
	co2, ok := rec["co2"].(float64)
	if !ok || co2 < 2000 {
		return nil
	}
	summary := models.NewEventSummary()
	summary.Events = append(summary.Events, "high co2 concentration")
	summary.Metrics = append(summary.Metrics, string(models.CategoryEnvironment))
	summary.Data["co2"] = co2
	return summary
}

func (s *foobotSource) RefreshCredentials(context.Context) (map[string]string, error) {
	// Foobot API keys are static; there is nothing to refresh.
	return nil, fmt.Errorf("%w: foobot keys are not refreshable", ErrRefreshFailed)
}
