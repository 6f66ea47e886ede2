package fusion

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"continuouscare/internal/geo"
	"continuouscare/internal/logging"
	"continuouscare/internal/models"
	"continuouscare/internal/sources"
)

// Store is the readings write contract.
type Store interface {
	InsertReading(ctx context.Context, username string, category models.Category, rec models.Record) error
}

// CredentialStore persists refreshed source credentials.
type CredentialStore interface {
	UpdateDeviceAuth(ctx context.Context, username, deviceID string, auth map[string]string) error
}

// SourceSet carries the pull-on-demand sources of one user consulted
// during fusion: the environment candidates and the dedicated
// continuous-location source.
type SourceSet struct {
	Environment []sources.EnvironmentSource
	Path        sources.Source
}

// Pipeline turns a tick's batch of (category, fields) pairs into final
// per-category records: merges duplicates, resolves the environment
// ambiguity by geofencing, derives Path, stamps time, and persists.
type Pipeline struct {
	store  Store
	creds  CredentialStore
	logger *logging.Logger
	radius float64
	now    func() time.Time
}

func NewPipeline(store Store, creds CredentialStore, logger *logging.Logger, radiusMeters float64) *Pipeline {
	return &Pipeline{
		store:  store,
		creds:  creds,
		logger: logger,
		radius: radiusMeters,
		now:    time.Now,
	}
}

// Process consumes one batch for one user. Per-category errors are
// isolated: a failed fetch or insert never blocks sibling categories.
func (p *Pipeline) Process(ctx context.Context, user string, batch []models.BatchEntry, srcs SourceSet) error {
	merged := map[models.Category]models.Record{}
	for _, e := range batch {
		if merged[e.Category] == nil {
			merged[e.Category] = models.Record{}
		}
		merged[e.Category].Merge(e.Fields)
	}

	if gps, ok := merged[models.CategoryGPS]; ok {
		p.resolveEnvironment(ctx, user, merged, gps, srcs.Environment)
		// The raw GPS category is consumed by resolution, never persisted.
		delete(merged, models.CategoryGPS)
	}

	p.derivePath(ctx, user, merged, srcs.Path)

	now := p.now()
	for _, rec := range merged {
		rec.Stamp(now)
	}

	var firstErr error
	for category, rec := range merged {
		if err := p.store.InsertReading(ctx, user, category, rec); err != nil {
			p.logger.Errorf("<%s> Persisting %s failed: %v", user, category, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// resolveEnvironment picks between inside home sensors and outside
// external APIs based on the distance of the GPS fix to each fixed sensor.
// Inside sensors within the radius win; outside sources are consulted only
// when no inside source succeeded. Success is tracked explicitly so an
// inside sensor legitimately returning an empty field set still suppresses
// the fallback.
func (p *Pipeline) resolveEnvironment(ctx context.Context, user string, merged map[models.Category]models.Record, gps models.Record, envSources []sources.EnvironmentSource) {
	lat, latOK := coordinate(gps["latitude"])
	lon, lonOK := coordinate(gps["longitude"])
	if !latOK || !lonOK || !geo.ValidCoordinates(lat, lon) {
		p.logger.Errorf("<%s> Geo anomaly, skipping environment resolution: %v", user, gps)
		return
	}

	env := merged[models.CategoryEnvironment]
	if env == nil {
		env = models.Record{}
	}

	resolved := false
	for _, src := range envSources {
		if src.Placement() != sources.PlacementInside {
			continue
		}
		sensorLat, sensorLon, ok := src.Location()
		if !ok {
			continue
		}
		if geo.Distance(lat, lon, sensorLat, sensorLon) > p.radius {
			continue
		}
		rec, err := p.fetchWithRefresh(ctx, user, src)
		if err != nil {
			p.logger.Errorf("<%s> Inside environment source %s failed: %v", user, src.DeviceID(), err)
			continue
		}
		env.Merge(rec)
		resolved = true
	}

	if !resolved {
		for _, src := range envSources {
			if src.Placement() != sources.PlacementOutside {
				continue
			}
			rec, err := p.fetchWithRefresh(ctx, user, src)
			if err != nil {
				p.logger.Errorf("<%s> Outside environment source %s failed: %v", user, src.DeviceID(), err)
				continue
			}
			env.Merge(rec)
		}
	}

	// The resolved record always carries the triggering fix.
	env["latitude"] = lat
	env["longitude"] = lon
	merged[models.CategoryEnvironment] = env
}

// derivePath fetches the continuous-location source, appends a Path record,
// and copies its coordinates onto every other resolved category except
// Environment (which carries its own). Failure skips Path for this tick.
func (p *Pipeline) derivePath(ctx context.Context, user string, merged map[models.Category]models.Record, pathSrc sources.Source) {
	if pathSrc == nil {
		return
	}

	coords, err := fetchNormalize(ctx, pathSrc)
	if err != nil {
		p.logger.Errorf("<%s> Error while fetching GPS coordinates: %v", user, err)
		return
	}

	for category, rec := range merged {
		if category == models.CategoryEnvironment {
			continue
		}
		rec["latitude"] = coords["latitude"]
		rec["longitude"] = coords["longitude"]
	}
	merged[models.CategoryPath] = models.Record{
		"latitude":  coords["latitude"],
		"longitude": coords["longitude"],
	}
}

// fetchWithRefresh applies the one-shot recovery policy: on failure,
// refresh credentials, persist them, and retry exactly once.
func (p *Pipeline) fetchWithRefresh(ctx context.Context, user string, src sources.Source) (models.Record, error) {
	rec, err := fetchNormalize(ctx, src)
	if err == nil {
		return rec, nil
	}
	p.logger.Errorf("<%s> Exception caught while fetching from %s: %v", user, src.DeviceID(), err)

	auth, refreshErr := src.RefreshCredentials(ctx)
	if refreshErr != nil {
		return nil, fmt.Errorf("refresh after %v: %w", err, refreshErr)
	}
	if updateErr := p.creds.UpdateDeviceAuth(ctx, user, src.DeviceID(), auth); updateErr != nil {
		return nil, updateErr
	}
	return fetchNormalize(ctx, src)
}

func fetchNormalize(ctx context.Context, src sources.Source) (models.Record, error) {
	raw, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return src.Normalize(raw)
}

// coordinate accepts the scalar shapes a normalized record may carry.
func coordinate(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
