package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"continuouscare/internal/logging"
	"continuouscare/internal/models"
	"continuouscare/internal/sources"
)

type sinkCall struct {
	user  string
	batch []models.BatchEntry
}

type memSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *memSink) Process(_ context.Context, user string, batch []models.BatchEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{user: user, batch: batch})
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type memCreds struct {
	updates int
	err     error
}

func (c *memCreds) UpdateDeviceAuth(context.Context, string, string, map[string]string) error {
	c.updates++
	return c.err
}

type fakeSource struct {
	id       string
	category models.Category
	interval time.Duration

	rec        models.Record
	event      *models.EventSummary
	fetchFails int
	refreshErr error
	fetches    int
	refreshed  int
}

func (f *fakeSource) User() string                  { return "alice" }
func (f *fakeSource) DeviceID() string              { return f.id }
func (f *fakeSource) Category() models.Category     { return f.category }
func (f *fakeSource) UpdateInterval() time.Duration { return f.interval }

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

func (f *fakeSource) DetectEvent(models.Record) *models.EventSummary { return f.event }

func (f *fakeSource) RefreshCredentials(context.Context) (map[string]string, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return map[string]string{"token": "fresh"}, nil
}

func newTestAggregator(srcs []sources.Source, sink Sink, creds CredentialStore) *Aggregator {
	return New("alice", srcs, sink, creds, logging.NewDiscard(), time.Minute)
}

func TestNewExcludesOnDemandSources(t *testing.T) {
	srcs := []sources.Source{
		&fakeSource{id: "hr", category: models.CategoryHealthStatus, interval: 5 * time.Minute},
		&fakeSource{id: "env", category: models.CategoryEnvironment, interval: 5 * time.Minute},
		&fakeSource{id: "zero", category: models.CategoryGPS, interval: 0},
	}
	a := newTestAggregator(srcs, &memSink{}, &memCreds{})
	if len(a.entries) != 1 {
		t.Fatalf("scheduled %d sources, want 1", len(a.entries))
	}
	if a.entries[0].src.DeviceID() != "hr" {
		t.Errorf("wrong source scheduled: %s", a.entries[0].src.DeviceID())
	}
}

func TestNewRoundsIntervalsUpToMinutes(t *testing.T) {
	src := &fakeSource{id: "hr", category: models.CategoryHealthStatus, interval: 90 * time.Second}
	a := newTestAggregator([]sources.Source{src}, &memSink{}, &memCreds{})
	if got := a.entries[0].interval; got != 2*time.Minute {
		t.Errorf("interval = %v, want 2m", got)
	}
}

func TestRunTickFiresDueSourcesOnly(t *testing.T) {
	due := &fakeSource{id: "hr", category: models.CategoryHealthStatus,
		interval: time.Minute, rec: models.Record{"heart_rate": 70.0}}
	notDue := &fakeSource{id: "sleep", category: models.CategorySleep,
		interval: 8 * time.Hour, rec: models.Record{"minutes": 400.0}}

	sink := &memSink{}
	a := newTestAggregator([]sources.Source{due, notDue}, sink, &memCreds{})

	start := time.Unix(1700000000, 0)
	for _, e := range a.entries {
		e.lastFired = start
	}

	a.runTick(context.Background(), start.Add(2*time.Minute))

	if sink.count() != 1 {
		t.Fatalf("sink called %d times, want 1", sink.count())
	}
	batch := sink.calls[0].batch
	if len(batch) != 1 || batch[0].Category != models.CategoryHealthStatus {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if notDue.fetches != 0 {
		t.Errorf("sleep source fetched before its interval elapsed")
	}
}

func TestRunTickNothingDueSkipsSink(t *testing.T) {
	src := &fakeSource{id: "hr", category: models.CategoryHealthStatus,
		interval: 5 * time.Minute, rec: models.Record{"heart_rate": 70.0}}
	sink := &memSink{}
	a := newTestAggregator([]sources.Source{src}, sink, &memCreds{})

	start := time.Unix(1700000000, 0)
	a.entries[0].lastFired = start
	a.runTick(context.Background(), start.Add(time.Minute))

	if sink.count() != 0 {
		t.Errorf("sink called with nothing due")
	}
}

func TestRunTickFailureKeepsSourceDue(t *testing.T) {
	failing := &fakeSource{id: "hr", category: models.CategoryHealthStatus,
		interval: time.Minute, fetchFails: 4, refreshErr: sources.ErrRefreshFailed}
	healthy := &fakeSource{id: "sleep", category: models.CategorySleep,
		interval: time.Minute, rec: models.Record{"minutes": 400.0}}

	sink := &memSink{}
	a := newTestAggregator([]sources.Source{failing, healthy}, sink, &memCreds{})

	start := time.Unix(1700000000, 0)
	for _, e := range a.entries {
		e.lastFired = start
	}
	tick := start.Add(2 * time.Minute)
	a.runTick(context.Background(), tick)

	// The healthy source still delivered.
	if sink.count() != 1 {
		t.Fatalf("sink called %d times, want 1", sink.count())
	}
	if got := sink.calls[0].batch; len(got) != 1 || got[0].Category != models.CategorySleep {
		t.Fatalf("unexpected batch: %+v", got)
	}

	// The failed source stays due and fires on the next tick.
	if a.entries[0].lastFired != start {
		t.Error("lastFired advanced despite failure")
	}
	failing.fetchFails = 0
	a.runTick(context.Background(), tick.Add(time.Minute))
	if a.entries[0].lastFired == start {
		t.Error("recovered source did not fire on the next tick")
	}
}

func TestRunTickRefreshRetryRecovers(t *testing.T) {
	creds := &memCreds{}
	src := &fakeSource{id: "hr", category: models.CategoryHealthStatus,
		interval: time.Minute, fetchFails: 1, rec: models.Record{"heart_rate": 70.0}}

	sink := &memSink{}
	a := newTestAggregator([]sources.Source{src}, sink, creds)

	start := time.Unix(1700000000, 0)
	a.entries[0].lastFired = start
	tick := start.Add(2 * time.Minute)
	a.runTick(context.Background(), tick)

	if sink.count() != 1 {
		t.Fatalf("sink called %d times, want 1", sink.count())
	}
	if src.refreshed != 1 || creds.updates != 1 {
		t.Errorf("refresh/persist = %d/%d, want 1/1", src.refreshed, creds.updates)
	}
	if a.entries[0].lastFired != tick {
		t.Error("lastFired not advanced after successful retry")
	}
}

func TestRunTickAccumulatesEvents(t *testing.T) {
	highHR := models.NewEventSummary()
	highHR.Events = append(highHR.Events, "high heart rate")
	highHR.Metrics = append(highHR.Metrics, string(models.CategoryHealthStatus))

	src := &fakeSource{id: "hr", category: models.CategoryHealthStatus,
		interval: time.Minute, rec: models.Record{"heart_rate": 130.0}, event: highHR}

	sink := &memSink{}
	a := newTestAggregator([]sources.Source{src}, sink, &memCreds{})

	start := time.Unix(1700000000, 0)
	a.entries[0].lastFired = start
	a.runTick(context.Background(), start.Add(2*time.Minute))

	if sink.count() != 1 {
		t.Fatalf("sink called %d times, want 1", sink.count())
	}
	batch := sink.calls[0].batch
	if len(batch) != 2 {
		t.Fatalf("batch has %d entries, want reading plus event summary", len(batch))
	}
	last := batch[len(batch)-1]
	if last.Category != models.CategoryEvent {
		t.Errorf("last entry is %s, want Event", last.Category)
	}
	if _, ok := last.Fields["events"].(string); !ok {
		t.Errorf("event summary not serialized: %v", last.Fields)
	}
}

func TestStartStopTerminates(t *testing.T) {
	src := &fakeSource{id: "hr", category: models.CategoryHealthStatus,
		interval: time.Minute, rec: models.Record{"heart_rate": 70.0}}
	a := New("alice", []sources.Source{src}, &memSink{}, &memCreds{}, logging.NewDiscard(), 10*time.Millisecond)

	a.Start()
	time.Sleep(30 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
