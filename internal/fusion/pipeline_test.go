package fusion

import (
	"context"
	"errors"
	"testing"
	"time"

	"continuouscare/internal/logging"
	"continuouscare/internal/models"
	"continuouscare/internal/sources"
)

type memStore struct {
	records map[models.Category]models.Record
	failOn  models.Category
}

func newMemStore() *memStore {
	return &memStore{records: map[models.Category]models.Record{}}
}

func (s *memStore) InsertReading(_ context.Context, _ string, category models.Category, rec models.Record) error {
	if category == s.failOn {
		return errors.New("insert rejected")
	}
	s.records[category] = rec
	return nil
}

type memCreds struct {
	updates int
}

func (c *memCreds) UpdateDeviceAuth(context.Context, string, string, map[string]string) error {
	c.updates++
	return nil
}

type fakeSource struct {
	id        string
	category  models.Category
	placement sources.Placement
	lat, lon  float64
	located   bool

	rec        models.Record
	fetchFails int
	refreshErr error
	refreshed  int
	fetches    int
}

func (f *fakeSource) User() string                  { return "alice" }
func (f *fakeSource) DeviceID() string              { return f.id }
func (f *fakeSource) Category() models.Category     { return f.category }
func (f *fakeSource) UpdateInterval() time.Duration { return 0 }

func (f *fakeSource) Fetch(context.Context) (sources.RawReading, error) {
	f.fetches++
	if f.fetchFails > 0 {
		f.fetchFails--
		return nil, sources.ErrSourceUnavailable
	}
	return sources.RawReading("{}"), nil
}

func (f *fakeSource) Normalize(sources.RawReading) (models.Record, error) {
	return f.rec.Clone(), nil
}

func (f *fakeSource) DetectEvent(models.Record) *models.EventSummary { return nil }

func (f *fakeSource) RefreshCredentials(context.Context) (map[string]string, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return map[string]string{"token": "fresh"}, nil
}

func (f *fakeSource) Placement() sources.Placement { return f.placement }

func (f *fakeSource) Location() (float64, float64, bool) { return f.lat, f.lon, f.located }

func newPipelineForTest(store Store, creds CredentialStore) *Pipeline {
	p := NewPipeline(store, creds, logging.NewDiscard(), 50)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p
}

func gpsEntry(lat, lon float64) models.BatchEntry {
	return models.BatchEntry{
		Category: models.CategoryGPS,
		Fields:   models.Record{"latitude": lat, "longitude": lon},
	}
}

func TestProcessInsideSensorWinsWithinRadius(t *testing.T) {
	store := newMemStore()
	inside := &fakeSource{
		id: "foobot-1", category: models.CategoryEnvironment,
		placement: sources.PlacementInside,
		lat:       10.0002, lon: 10.0, located: true, // ~22 m away
		rec: models.Record{"co2": 640.0},
	}
	outside := &fakeSource{
		id: "weather", category: models.CategoryEnvironment,
		placement: sources.PlacementOutside,
		rec:       models.Record{"aqi": 3.0},
	}

	p := newPipelineForTest(store, &memCreds{})
	err := p.Process(context.Background(), "alice", []models.BatchEntry{gpsEntry(10, 10)},
		SourceSet{Environment: []sources.EnvironmentSource{inside, outside}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	env, ok := store.records[models.CategoryEnvironment]
	if !ok {
		t.Fatal("no Environment record persisted")
	}
	if env["co2"] != 640.0 {
		t.Errorf("inside sensor field missing: %v", env)
	}
	if _, leaked := env["aqi"]; leaked {
		t.Errorf("outside source consulted despite inside success: %v", env)
	}
	if env["latitude"] != 10.0 || env["longitude"] != 10.0 {
		t.Errorf("fix coordinates not attached: %v", env)
	}
	if outside.fetches != 0 {
		t.Errorf("outside source fetched %d times, want 0", outside.fetches)
	}
}

func TestProcessOutsideFallbackBeyondRadius(t *testing.T) {
	store := newMemStore()
	inside := &fakeSource{
		id: "foobot-1", category: models.CategoryEnvironment,
		placement: sources.PlacementInside,
		lat:       11, lon: 11, located: true, // far beyond 50 m
		rec: models.Record{"co2": 640.0},
	}
	outside := &fakeSource{
		id: "weather", category: models.CategoryEnvironment,
		placement: sources.PlacementOutside,
		rec:       models.Record{"aqi": 3.0},
	}

	p := newPipelineForTest(store, &memCreds{})
	if err := p.Process(context.Background(), "alice", []models.BatchEntry{gpsEntry(10, 10)},
		SourceSet{Environment: []sources.EnvironmentSource{inside, outside}}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	env := store.records[models.CategoryEnvironment]
	if env["aqi"] != 3.0 {
		t.Errorf("outside source not consulted: %v", env)
	}
	if _, leaked := env["co2"]; leaked {
		t.Errorf("distant inside sensor leaked into record: %v", env)
	}
	if inside.fetches != 0 {
		t.Errorf("distant inside sensor fetched %d times, want 0", inside.fetches)
	}
}

func TestProcessInvalidFixSkipsEnvironment(t *testing.T) {
	store := newMemStore()
	outside := &fakeSource{
		id: "weather", category: models.CategoryEnvironment,
		placement: sources.PlacementOutside,
		rec:       models.Record{"aqi": 3.0},
	}

	p := newPipelineForTest(store, &memCreds{})
	if err := p.Process(context.Background(), "alice", []models.BatchEntry{gpsEntry(95, 10)},
		SourceSet{Environment: []sources.EnvironmentSource{outside}}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if _, ok := store.records[models.CategoryEnvironment]; ok {
		t.Error("Environment persisted despite invalid fix")
	}
	if _, ok := store.records[models.CategoryGPS]; ok {
		t.Error("raw GPS category persisted")
	}
}

func TestProcessMergesDuplicateCategoriesAndStamps(t *testing.T) {
	store := newMemStore()
	p := newPipelineForTest(store, &memCreds{})

	batch := []models.BatchEntry{
		{Category: models.CategoryHealthStatus, Fields: models.Record{"steps": 10.0}},
		{Category: models.CategoryHealthStatus, Fields: models.Record{"heart_rate": 70.0}},
	}
	if err := p.Process(context.Background(), "alice", batch, SourceSet{}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	rec := store.records[models.CategoryHealthStatus]
	if rec["steps"] != 10.0 || rec["heart_rate"] != 70.0 {
		t.Errorf("entries not merged: %v", rec)
	}
	if rec[models.TimeField] != int64(1700000000) {
		t.Errorf("time not stamped: %v", rec[models.TimeField])
	}
}

func TestProcessDerivesPathAndCopiesCoordinates(t *testing.T) {
	store := newMemStore()
	path := &fakeSource{
		id: "phone", category: models.CategoryGPS,
		rec: models.Record{"latitude": 10.5, "longitude": 20.5},
	}

	p := newPipelineForTest(store, &memCreds{})
	batch := []models.BatchEntry{
		{Category: models.CategoryHealthStatus, Fields: models.Record{"steps": 10.0}},
	}
	if err := p.Process(context.Background(), "alice", batch, SourceSet{Path: path}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	pathRec, ok := store.records[models.CategoryPath]
	if !ok {
		t.Fatal("no Path record persisted")
	}
	if pathRec["latitude"] != 10.5 || pathRec["longitude"] != 20.5 {
		t.Errorf("wrong Path coordinates: %v", pathRec)
	}
	health := store.records[models.CategoryHealthStatus]
	if health["latitude"] != 10.5 || health["longitude"] != 20.5 {
		t.Errorf("coordinates not copied to sibling category: %v", health)
	}
}

func TestProcessInsertErrorDoesNotBlockSiblings(t *testing.T) {
	store := newMemStore()
	store.failOn = models.CategorySleep
	p := newPipelineForTest(store, &memCreds{})

	batch := []models.BatchEntry{
		{Category: models.CategorySleep, Fields: models.Record{"minutes": 400.0}},
		{Category: models.CategoryHealthStatus, Fields: models.Record{"steps": 10.0}},
	}
	err := p.Process(context.Background(), "alice", batch, SourceSet{})
	if err == nil {
		t.Fatal("expected the sleep insert failure to surface")
	}
	if _, ok := store.records[models.CategoryHealthStatus]; !ok {
		t.Error("sibling category blocked by failed insert")
	}
}

func TestFetchWithRefreshRetriesOnce(t *testing.T) {
	creds := &memCreds{}
	src := &fakeSource{
		id: "foobot-1", category: models.CategoryEnvironment,
		rec: models.Record{"co2": 640.0}, fetchFails: 1,
	}

	p := newPipelineForTest(newMemStore(), creds)
	rec, err := p.fetchWithRefresh(context.Background(), "alice", src)
	if err != nil {
		t.Fatalf("fetchWithRefresh: %v", err)
	}
	if rec["co2"] != 640.0 {
		t.Errorf("retry did not return the reading: %v", rec)
	}
	if src.refreshed != 1 {
		t.Errorf("refreshed %d times, want 1", src.refreshed)
	}
	if creds.updates != 1 {
		t.Errorf("credentials persisted %d times, want 1", creds.updates)
	}
}

func TestFetchWithRefreshGivesUpWhenRefreshFails(t *testing.T) {
	src := &fakeSource{
		id: "foobot-1", category: models.CategoryEnvironment,
		fetchFails: 2, refreshErr: sources.ErrRefreshFailed,
	}

	p := newPipelineForTest(newMemStore(), &memCreds{})
	if _, err := p.fetchWithRefresh(context.Background(), "alice", src); !errors.Is(err, sources.ErrRefreshFailed) {
		t.Fatalf("want ErrRefreshFailed, got %v", err)
	}
	if src.fetches != 1 {
		t.Errorf("fetched %d times, want 1 (no retry after failed refresh)", src.fetches)
	}
}
