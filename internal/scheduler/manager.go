package scheduler

import (
	"sync"
	"time"

	"continuouscare/internal/logging"
	"continuouscare/internal/sources"
)

// Manager owns the per-user aggregation loops. Replacing a user's device
// set goes through Start, which stops the previous loop and waits for it
// before launching the replacement, so two loops for the same user never
// overlap.
type Manager struct {
	mu    sync.Mutex
	loops map[string]*Aggregator

	sink   Sink
	creds  CredentialStore
	logger *logging.Logger
	tick   time.Duration
}

func NewManager(sink Sink, creds CredentialStore, logger *logging.Logger, tick time.Duration) *Manager {
	return &Manager{
		loops:  make(map[string]*Aggregator),
		sink:   sink,
		creds:  creds,
		logger: logger,
		tick:   tick,
	}
}

// Start launches (or restarts) the loop of one user over the given
// sources. Mandatory on any device add, update, or delete.
func (m *Manager) Start(user string, srcs []sources.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.loops[user]; ok {
		old.Stop()
	}

	loop := New(user, srcs, m.sink, m.creds, m.logger, m.tick)
	m.loops[user] = loop
	loop.Start()
}

// Stop halts and forgets the loop of one user.
func (m *Manager) Stop(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if loop, ok := m.loops[user]; ok {
		loop.Stop()
		delete(m.loops, user)
	}
}

// StopAll halts every loop. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for user, loop := range m.loops {
		loop.Stop()
		delete(m.loops, user)
	}
}
