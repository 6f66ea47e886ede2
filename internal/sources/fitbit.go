package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"continuouscare/internal/models"
)

const (
	fitbitHealthURL = "https://api.fitbit.com/1/user/-/activities/heart/date/today/1d.json"
	fitbitSleepURL  = "https://api.fitbit.com/1.2/user/-/sleep/date/today.json"
	fitbitTokenURL  = "https://api.fitbit.com/oauth2/token"
)

// fitbitSource covers one metric category of a Fitbit bracelet. The same
// credentials back both the health-status and the sleep feed.
type fitbitSource struct {
	user     string
	deviceID string
	auth     map[string]string
	category models.Category
	url      string
	interval time.Duration
}

func newFitbit(cfg Config) ([]Source, error) {
	if cfg.Auth["token"] == "" {
		return nil, fmt.Errorf("fitbit device %s: missing token", cfg.DeviceID)
	}
	return []Source{
		&fitbitSource{
			user: cfg.User, deviceID: cfg.DeviceID, auth: cfg.Auth,
			category: models.CategoryHealthStatus,
			url:      fitbitHealthURL, interval: 5 * time.Minute,
		},
		&fitbitSource{
			user: cfg.User, deviceID: cfg.DeviceID, auth: cfg.Auth,
			category: models.CategorySleep,
			url:      fitbitSleepURL, interval: 8 * time.Hour,
		},
	}, nil
}

func (s *fitbitSource) User() string                  { return s.user }
func (s *fitbitSource) DeviceID() string              { return s.deviceID }
func (s *fitbitSource) Category() models.Category     { return s.category }
func (s *fitbitSource) UpdateInterval() time.Duration { return s.interval }

func (s *fitbitSource) Fetch(ctx context.Context) (RawReading, error) {
	return fetchURL(ctx, s.url, map[string]string{
		"Authorization": "Bearer " + s.auth["token"],
	})
}

func (s *fitbitSource) Normalize(raw RawReading) (models.Record, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}

	rec := models.Record{}
	switch s.category {
	case models.CategoryHealthStatus:
		for field, key := range map[string]string{
			"heart_rate": "restingHeartRate",
			"steps":      "steps",
			"calories":   "caloriesOut",
		} {
			if v, ok := numberField(payload, key); ok {
				rec[field] = v
			}
		}
	case models.CategorySleep:
		for field, key := range map[string]string{
			"duration":   "duration",
			"efficiency": "efficiency",
			"minutes":    "minutesAsleep",
		} {
			if v, ok := numberField(payload, key); ok {
				rec[field] = v
			}
		}
	}
	if len(rec) == 0 {
		return nil, fmt.Errorf("%w: no expected fields in payload", ErrMalformedReading)
	}
	return rec, nil
}

func (s *fitbitSource) DetectEvent(rec models.Record) *models.EventSummary {
	hr, ok := rec["heart_rate"].(float64)
	if !ok {
		return nil
	}
	summary := models.NewEventSummary()
	if hr > 120 {
		summary.Events = append(summary.Events, "high heart rate")
	} else if hr < 40 {
		summary.Events = append(summary.Events, "low heart rate")
	}
	if summary.Empty() {
		return nil
	}
	summary.Metrics = append(summary.Metrics, string(models.CategoryHealthStatus))
	summary.Data["heart_rate"] = hr
	return summary
}

func (s *fitbitSource) RefreshCredentials(ctx context.Context) (map[string]string, error) {
	form := "grant_type=refresh_token&refresh_token=" + s.auth["refresh_token"]
	body, err := postForm(ctx, fitbitTokenURL, map[string]string{
		"Authorization": "Basic " + s.auth["client_secret"],
	}, form)
	if err != nil {
		return nil, err
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &tokens); err != nil || tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: unexpected refresh response", ErrRefreshFailed)
	}

	s.auth["token"] = tokens.AccessToken
	s.auth["refresh_token"] = tokens.RefreshToken
	return map[string]string{
		"token":         tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	}, nil
}

// numberField digs a numeric value out of a decoded payload, descending one
// level into nested objects when the key is not found at the top.
func numberField(payload map[string]any, key string) (float64, bool) {
	if v, ok := payload[key].(float64); ok {
		return v, true
	}
	for _, nested := range payload {
		if m, ok := nested.(map[string]any); ok {
			if v, ok := m[key].(float64); ok {
				return v, true
			}
		}
	}
	return 0, false
}
