package scheduler

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"continuouscare/internal/logging"
	"continuouscare/internal/models"
	"continuouscare/internal/sources"
)

// Sink consumes the batch a tick produced. Sink errors are logged and
// never stop the loop.
type Sink interface {
	Process(ctx context.Context, user string, batch []models.BatchEntry) error
}

// CredentialStore persists refreshed source credentials before the
// one-shot retry.
type CredentialStore interface {
	UpdateDeviceAuth(ctx context.Context, username, deviceID string, auth map[string]string) error
}

// entry pairs a source with the last time it fired.
type entry struct {
	src       sources.Source
	interval  time.Duration
	lastFired time.Time
}

// Aggregator is the per-user aggregation loop. On every tick it polls the
// due sources, recovers from transient failures, and hands the
// consolidated batch to the sink. One source's failure never aborts a
// tick; one tick's failure never stops the loop.
type Aggregator struct {
	user    string
	entries []*entry
	sink    Sink
	creds   CredentialStore
	logger  *logging.Logger
	tick    time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

// New builds an Aggregator over the streaming sources of one user.
// Sources of non-streamed categories or with a non-positive update
// interval are pull-on-demand and excluded. Intervals are rounded up to
// whole minutes, the scheduling granularity.
func New(user string, srcs []sources.Source, sink Sink, creds CredentialStore, logger *logging.Logger, tick time.Duration) *Aggregator {
	a := &Aggregator{
		user:   user,
		sink:   sink,
		creds:  creds,
		logger: logger,
		tick:   tick,
		now:    time.Now,
	}
	start := time.Now()
	for _, src := range srcs {
		if !models.StreamedCategories[src.Category()] {
			continue
		}
		interval := src.UpdateInterval()
		if interval <= 0 {
			continue
		}
		minutes := math.Ceil(interval.Minutes())
		a.entries = append(a.entries, &entry{
			src:       src,
			interval:  time.Duration(minutes) * time.Minute,
			lastFired: start,
		})
	}
	return a
}

// Start launches the loop. Not reentrant: the owner must Stop a previous
// instance for the same user first.
func (a *Aggregator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(ctx)
}

// Stop cancels the loop cooperatively and waits for it to exit. An
// in-flight tick completes before the loop observes the cancellation.
func (a *Aggregator) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)
	a.logger.Infof("<%s> Aggregation loop started with %d scheduled sources", a.user, len(a.entries))

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Infof("<%s> Aggregation loop stopped", a.user)
			return
		case <-ticker.C:
			a.runTick(ctx, a.now())
		}
	}
}

// runTick polls every due entry and delivers the batch synchronously.
func (a *Aggregator) runTick(ctx context.Context, now time.Time) {
	var batch []models.BatchEntry
	events := models.NewEventSummary()
	due := 0

	for _, e := range a.entries {
		if now.Sub(e.lastFired) < e.interval {
			continue
		}
		due++

		rec, ev, err := a.collect(ctx, e.src)
		if err != nil {
			// lastFired stays put so the source is due again next tick.
			a.logger.Errorf("<%s> Source %s/%s skipped this tick: %v",
				a.user, e.src.DeviceID(), e.src.Category(), err)
			continue
		}

		e.lastFired = now
		batch = append(batch, models.BatchEntry{Category: e.src.Category(), Fields: rec})
		events.Add(ev)
	}

	if due == 0 {
		return
	}

	if !events.Empty() {
		payload, err := json.Marshal(events)
		if err != nil {
			a.logger.Errorf("<%s> Marshaling event summary failed: %v", a.user, err)
		} else {
			batch = append(batch, models.BatchEntry{
				Category: models.CategoryEvent,
				Fields:   models.Record{"events": string(payload)},
			})
		}
	}

	if err := a.sink.Process(ctx, a.user, batch); err != nil {
		a.logger.Errorf("<%s> Fusion failed for this tick: %v", a.user, err)
	}
}

// collect runs fetch -> normalize -> detect with the one-shot recovery
// policy: on failure, refresh credentials, persist them through the
// device-update contract, and retry exactly once.
func (a *Aggregator) collect(ctx context.Context, src sources.Source) (models.Record, *models.EventSummary, error) {
	rec, err := a.fetchNormalize(ctx, src)
	if err != nil {
		a.logger.Errorf("<%s> Exception caught on %s: %v", a.user, src.DeviceID(), err)

		auth, refreshErr := src.RefreshCredentials(ctx)
		if refreshErr != nil {
			return nil, nil, refreshErr
		}
		if updateErr := a.creds.UpdateDeviceAuth(ctx, a.user, src.DeviceID(), auth); updateErr != nil {
			return nil, nil, updateErr
		}
		rec, err = a.fetchNormalize(ctx, src)
		if err != nil {
			return nil, nil, err
		}
	}
	return rec, src.DetectEvent(rec), nil
}

func (a *Aggregator) fetchNormalize(ctx context.Context, src sources.Source) (models.Record, error) {
	raw, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return src.Normalize(raw)
}
