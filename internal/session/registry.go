package session

import (
	"crypto/rand"
	"sync"
	"time"

	"continuouscare/internal/models"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenMinLen   = 30
	tokenMaxLen   = 40
)

type entry struct {
	username string
	expires  time.Time
}

// roleMap is one bounded token table. Mutations hold the mutex; expired
// entries are dropped lazily on access and by the periodic sweep.
type roleMap struct {
	mu       sync.Mutex
	entries  map[string]entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// Registry issues, deduplicates, and expires authentication tokens, one
// table per role. Safe for concurrent use by request handlers and the
// notification path.
type Registry struct {
	client *roleMap
	medic  *roleMap
	stop   chan struct{}
	once   sync.Once
}

// NewRegistry builds a Registry with the given per-role capacity and token
// time-to-live and starts the background sweep.
func NewRegistry(capacity int, ttl time.Duration) *Registry {
	r := &Registry{
		client: newRoleMap(capacity, ttl),
		medic:  newRoleMap(capacity, ttl),
		stop:   make(chan struct{}),
	}
	go r.sweep()
	return r
}

func newRoleMap(capacity int, ttl time.Duration) *roleMap {
	return &roleMap{
		entries:  make(map[string]entry),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *Registry) table(role models.Role) *roleMap {
	if role == models.RoleMedic {
		return r.medic
	}
	return r.client
}

// Issue returns the live token of username if one exists, otherwise
// generates, stores, and returns a fresh one. The TTL is fixed at issuance
// and never extended on access.
func (r *Registry) Issue(role models.Role, username string) string {
	return r.table(role).issue(username)
}

// Lookup resolves a token to its username. Expired and unknown tokens
// report ok=false; the caller turns that into an authentication rejection.
func (r *Registry) Lookup(role models.Role, token string) (string, bool) {
	return r.table(role).lookup(token)
}

// TokenOf finds the live token of a username, if any. Used to address
// push notifications at a specific logged-in session.
func (r *Registry) TokenOf(role models.Role, username string) (string, bool) {
	return r.table(role).tokenOf(username)
}

// Revoke removes a token immediately regardless of its remaining TTL.
func (r *Registry) Revoke(role models.Role, token string) bool {
	return r.table(role).revoke(token)
}

// Close stops the background sweep.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.client.dropExpired()
			r.medic.dropExpired()
		}
	}
}

func (m *roleMap) issue(username string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for token, e := range m.entries {
		if e.username == username {
			if now.Before(e.expires) {
				return token
			}
			delete(m.entries, token)
		}
	}

	if len(m.entries) >= m.capacity {
		m.evictLocked(now)
	}

	token := randomToken()
	for {
		if _, taken := m.entries[token]; !taken {
			break
		}
		token = randomToken()
	}
	m.entries[token] = entry{username: username, expires: now.Add(m.ttl)}
	return token
}

func (m *roleMap) lookup(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[token]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, token)
		return "", false
	}
	return e.username, true
}

func (m *roleMap) tokenOf(username string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for token, e := range m.entries {
		if e.username == username && now.Before(e.expires) {
			return token, true
		}
	}
	return "", false
}

func (m *roleMap) revoke(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[token]
	delete(m.entries, token)
	return ok
}

func (m *roleMap) dropExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for token, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, token)
		}
	}
}

// evictLocked frees one slot: expired entries first, then the entry closest
// to expiry. Caller holds the mutex.
func (m *roleMap) evictLocked(now time.Time) {
	var oldest string
	var oldestExpires time.Time
	for token, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, token)
			return
		}
		if oldest == "" || e.expires.Before(oldestExpires) {
			oldest, oldestExpires = token, e.expires
		}
	}
	if oldest != "" {
		delete(m.entries, oldest)
	}
}

func randomToken() string {
	buf := make([]byte, tokenMaxLen+1)
	if _, err := rand.Read(buf); err != nil {
		panic("session: no entropy available: " + err.Error())
	}
	length := tokenMinLen + int(buf[0])%(tokenMaxLen-tokenMinLen+1)
	token := make([]byte, length)
	for i := range token {
		token[i] = tokenAlphabet[int(buf[i+1])%len(tokenAlphabet)]
	}
	return string(token)
}
