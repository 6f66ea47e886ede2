package sources

import (
	"context"
	"errors"
	"time"

	"continuouscare/internal/models"
)

// Errors returned by metric sources. The scheduler and the fusion pipeline
// match on these with errors.Is to decide the recovery path.
var (
	// ErrSourceUnavailable signals a network or auth failure while fetching.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedReading signals a payload that cannot be normalized.
	ErrMalformedReading = errors.New("malformed reading")
	// ErrRefreshFailed signals the upstream rejected a credential refresh.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// RawReading is the unparsed payload returned by a fetch.
type RawReading []byte

// Placement tags an environment source as a home sensor or an external API.
type Placement string

const (
	PlacementInside  Placement = "inside"
	PlacementOutside Placement = "outside"
)

// Source is one per-user metric feed. Implementations fetch a raw payload,
// normalize it into a flat record, and optionally flag notable events.
type Source interface {
	User() string
	DeviceID() string
	Category() models.Category

	// UpdateInterval is the desired polling cadence. Zero or negative means
	// pull-on-demand only: the scheduler never fires the source.
	UpdateInterval() time.Duration

	Fetch(ctx context.Context) (RawReading, error)
	Normalize(raw RawReading) (models.Record, error)

	// DetectEvent inspects a normalized record and returns a summary of
	// notable events, or nil. Pure, never fails.
	DetectEvent(rec models.Record) *models.EventSummary

	// RefreshCredentials asks the upstream for fresh credentials. Sources
	// without refresh support return ErrRefreshFailed.
	RefreshCredentials(ctx context.Context) (map[string]string, error)
}

// EnvironmentSource is a Source that participates in geofenced environment
// resolution.
type EnvironmentSource interface {
	Source

	Placement() Placement

	// Location returns the fixed position of the sensor. ok is false for
	// sources without one (external APIs).
	Location() (lat, lon float64, ok bool)
}
