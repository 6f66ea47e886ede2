package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"continuouscare/internal/config"
	"continuouscare/internal/db"
	"continuouscare/internal/events"
	"continuouscare/internal/fusion"
	"continuouscare/internal/logging"
	"continuouscare/internal/models"
	"continuouscare/internal/scheduler"
	"continuouscare/internal/session"
	"continuouscare/internal/sources"
	"continuouscare/internal/ws"
)

// sourceSet is the in-memory metric table of one user.
type sourceSet struct {
	all  []sources.Source
	env  []sources.EnvironmentSource
	path sources.Source
}

// Processor coordinates the whole gathering side: it owns the per-user
// source tables, the scheduler manager, the fusion pipeline, the session
// registry, and the push channel. The request layer talks only to it.
type Processor struct {
	db       *db.DB
	logger   *logging.Logger
	cfg      config.Config
	sessions *session.Registry
	push     *ws.Manager
	events   *events.Publisher
	pipeline *fusion.Pipeline
	manager  *scheduler.Manager

	mu      sync.Mutex
	metrics map[string]*sourceSet
}

func New(database *db.DB, logger *logging.Logger, cfg config.Config) *Processor {
	p := &Processor{
		db:       database,
		logger:   logger,
		cfg:      cfg,
		sessions: session.NewRegistry(cfg.Session.Capacity, cfg.Session.TTL),
		push:     ws.NewManager(logger),
		events:   events.New(cfg.Kafka.Broker, cfg.Kafka.Topic, logger),
		pipeline: fusion.NewPipeline(database, database, logger, cfg.Fusion.RadiusMeters),
		metrics:  make(map[string]*sourceSet),
	}
	p.manager = scheduler.NewManager(p, database, logger, cfg.Scheduler.TickPeriod)
	return p
}

// Bootstrap loads every registered client and starts one aggregation loop
// per user.
func (p *Processor) Bootstrap(ctx context.Context) error {
	users, err := p.db.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	for _, user := range users {
		if err := p.restartUser(ctx, user); err != nil {
			p.logger.Errorf("<%s> Startup skipped: %v", user, err)
		}
	}
	p.logger.Infof("Started aggregation for %d users", len(users))
	return nil
}

// Close stops every loop and releases shared resources.
func (p *Processor) Close() {
	p.manager.StopAll()
	p.sessions.Close()
	p.events.Close()
}

// Process implements scheduler.Sink: it forwards the tick's batch to the
// fusion pipeline with the user's on-demand sources and streams any
// detected events.
func (p *Processor) Process(ctx context.Context, user string, batch []models.BatchEntry) error {
	p.mu.Lock()
	set, ok := p.metrics[user]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no metric table for user %s", user)
	}

	p.publishEvents(ctx, user, batch)

	return p.pipeline.Process(ctx, user, batch, fusion.SourceSet{
		Environment: set.env,
		Path:        set.path,
	})
}

func (p *Processor) publishEvents(ctx context.Context, user string, batch []models.BatchEntry) {
	for _, e := range batch {
		if e.Category != models.CategoryEvent {
			continue
		}
		raw, ok := e.Fields["events"].(string)
		if !ok {
			continue
		}
		var summary models.EventSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			p.logger.Errorf("<%s> Undecodable event summary: %v", user, err)
			continue
		}
		p.events.Publish(ctx, user, &summary)
	}
}

// buildSources constructs the in-memory source table of one user: the
// sources of every registered device plus the implicit phone GPS feed and
// the external environment API every client gets.
func (p *Processor) buildSources(ctx context.Context, user string) (*sourceSet, error) {
	devices, err := p.db.ListDevicesOf(ctx, user)
	if err != nil {
		return nil, err
	}

	set := &sourceSet{}
	for _, dev := range devices {
		srcs, err := sources.New(dev.Type, sources.Config{
			User:      user,
			DeviceID:  dev.ID.String(),
			Auth:      dev.Auth,
			Latitude:  dev.Latitude,
			Longitude: dev.Longitude,
		})
		if err != nil {
			p.logger.Errorf("<%s> Device %s skipped: %v", user, dev.ID, err)
			continue
		}
		set.all = append(set.all, srcs...)
	}

	for _, implicit := range []string{"gps_phone_tracer", "openweather_api"} {
		srcs, err := sources.New(implicit, sources.Config{User: user, Auth: map[string]string{}})
		if err != nil {
			return nil, err
		}
		set.all = append(set.all, srcs...)
	}

	for _, src := range set.all {
		if env, ok := src.(sources.EnvironmentSource); ok {
			set.env = append(set.env, env)
		}
		if src.Category() == models.CategoryGPS && set.path == nil {
			set.path = src
		}
	}
	return set, nil
}

// restartUser rebuilds the source table and replaces the user's loop.
// Stop-then-start is handled inside the manager.
func (p *Processor) restartUser(ctx context.Context, user string) error {
	set, err := p.buildSources(ctx, user)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.metrics[user] = set
	p.mu.Unlock()

	p.manager.Start(user, set.all)
	return nil
}

// Signup registers an account. New clients get their aggregation loop
// immediately.
func (p *Processor) Signup(ctx context.Context, profile models.Profile, password string) error {
	if err := p.db.RegisterUser(ctx, profile, password); err != nil {
		return err
	}
	if profile.Role == models.RoleClient {
		if err := p.restartUser(ctx, profile.Username); err != nil {
			p.logger.Errorf("<%s> Aggregation not started after signup: %v", profile.Username, err)
		}
	}
	return nil
}

// Signin verifies credentials and returns the session token. A user with a
// live token gets the same token back.
func (p *Processor) Signin(ctx context.Context, username, password string) (string, error) {
	role, err := p.db.VerifyUser(ctx, username, password)
	if err != nil {
		return "", err
	}
	return p.sessions.Issue(role, username), nil
}

// Logout revokes a token in whichever role registry holds it.
func (p *Processor) Logout(token string) bool {
	if p.sessions.Revoke(models.RoleClient, token) {
		return true
	}
	return p.sessions.Revoke(models.RoleMedic, token)
}

// Authenticate resolves a token, clients first.
func (p *Processor) Authenticate(token string) (string, models.Role, bool) {
	if user, ok := p.sessions.Lookup(models.RoleClient, token); ok {
		return user, models.RoleClient, true
	}
	if user, ok := p.sessions.Lookup(models.RoleMedic, token); ok {
		return user, models.RoleMedic, true
	}
	return "", "", false
}

// Devices lists the registered devices of a client.
func (p *Processor) Devices(ctx context.Context, user string) ([]models.Device, error) {
	return p.db.ListDevicesOf(ctx, user)
}

// SupportedDevices exposes the device-type catalogue.
func (p *Processor) SupportedDevices(ctx context.Context) ([]models.SupportedDevice, error) {
	return p.db.SupportedDevices(ctx)
}

// AddDevice stores a device and restarts the owner's aggregation loop so
// the new source is picked up with fresh timers.
func (p *Processor) AddDevice(ctx context.Context, dev models.Device) (uuid.UUID, error) {
	id, err := p.db.AddDevice(ctx, dev)
	if err != nil {
		return uuid.Nil, err
	}
	return id, p.restartUser(ctx, dev.Username)
}

// UpdateDevice replaces credentials/location and restarts the loop so no
// stale timers survive the change.
func (p *Processor) UpdateDevice(ctx context.Context, dev models.Device) error {
	if err := p.db.UpdateDevice(ctx, dev); err != nil {
		return err
	}
	return p.restartUser(ctx, dev.Username)
}

// DeleteDevice removes a device and restarts the owner's loop.
func (p *Processor) DeleteDevice(ctx context.Context, user string, id uuid.UUID) error {
	if err := p.db.DeleteDevice(ctx, user, id); err != nil {
		return err
	}
	return p.restartUser(ctx, user)
}

// Profile returns the profile of target. Medics may read a patient's
// profile only while holding an accepted permission.
func (p *Processor) Profile(ctx context.Context, target, requester string, role models.Role) (models.Profile, error) {
	if target != requester {
		if role != models.RoleMedic {
			return models.Profile{}, fmt.Errorf("only medics may read other profiles")
		}
		ok, err := p.db.HasPermission(ctx, requester, target)
		if err != nil {
			return models.Profile{}, err
		}
		if !ok {
			return models.Profile{}, fmt.Errorf("no accepted permission for patient %s", target)
		}
	}
	return p.db.GetProfile(ctx, target)
}

// UpdateProfile overwrites the requester's own profile.
func (p *Processor) UpdateProfile(ctx context.Context, profile models.Profile, password string) error {
	return p.db.UpdateProfile(ctx, profile, password)
}

// DeleteProfile removes the account, stopping its aggregation loop first.
func (p *Processor) DeleteProfile(ctx context.Context, user string) error {
	p.manager.Stop(user)
	p.mu.Lock()
	delete(p.metrics, user)
	p.mu.Unlock()
	return p.db.DeleteProfile(ctx, user)
}

// RegisterMood stores a self-reported personal status, running it through
// the same fusion path as scheduled readings.
func (p *Processor) RegisterMood(ctx context.Context, user string, moods []string) error {
	if len(moods) == 0 {
		return fmt.Errorf("no moods given")
	}

	summary := models.NewEventSummary()
	for _, m := range moods {
		summary.Events = append(summary.Events, m)
	}
	summary.Metrics = append(summary.Metrics, string(models.CategoryPersonalStatus))
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	batch := []models.BatchEntry{
		{Category: models.CategoryPersonalStatus, Fields: models.Record{"moods": strings.Join(moods, ",")}},
		{Category: models.CategoryEvent, Fields: models.Record{"events": string(payload)}},
	}
	return p.Process(ctx, user, batch)
}

// DeleteMood withdraws a registered mood at an exact timestamp.
func (p *Processor) DeleteMood(ctx context.Context, user string, at int64) error {
	for _, category := range []models.Category{models.CategoryEvent, models.CategoryPersonalStatus} {
		if err := p.db.DeleteReadings(ctx, user, category, at); err != nil {
			return err
		}
	}
	return nil
}

// Data queries a client's own stored records of one category.
func (p *Processor) Data(ctx context.Context, user string, category models.Category, start, end int64) ([]models.Record, error) {
	return p.db.QueryReadings(ctx, user, category, start, end)
}

// DataForMedic queries a patient's records on behalf of a medic holding an
// accepted permission. Path is never exposed to medics.
func (p *Processor) DataForMedic(ctx context.Context, medic, patient string, category models.Category, start, end int64) ([]models.Record, error) {
	if category == models.CategoryPath {
		return nil, fmt.Errorf("path data is only accessible to patients")
	}
	ok, err := p.db.HasPermission(ctx, medic, patient)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no accepted permission for patient %s", patient)
	}
	return p.db.QueryReadings(ctx, patient, category, start, end)
}

// exportCategories are the categories included in the research export:
// everything the system persists. Raw GPS is consumed by fusion and never
// stored, so it has no place here.
var exportCategories = []models.Category{
	models.CategoryEnvironment,
	models.CategoryEvent,
	models.CategoryHealthStatus,
	models.CategoryPath,
	models.CategoryPersonalStatus,
	models.CategorySleep,
}

// Download assembles the anonymized research export: the full stored
// history of userCount randomly chosen clients, one category-keyed record
// set per user, with no usernames attached.
func (p *Processor) Download(ctx context.Context, userCount int) ([]map[string][]models.Record, error) {
	users, err := p.db.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	picked := sampleUsers(users, userCount)
	export := make([]map[string][]models.Record, 0, len(picked))
	for _, user := range picked {
		userData := make(map[string][]models.Record, len(exportCategories))
		for _, category := range exportCategories {
			records, err := p.db.QueryReadings(ctx, user, category, 0, 0)
			if err != nil {
				return nil, err
			}
			userData[string(category)] = records
		}
		export = append(export, userData)
	}
	return export, nil
}

// sampleUsers picks n distinct users at random. Asking for at least as
// many as exist returns everyone.
func sampleUsers(users []string, n int) []string {
	if n >= len(users) {
		return users
	}
	picked := make([]string, len(users))
	copy(picked, users)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}

// RequestPermission files a medic's request and notifies the client's live
// session, if any.
func (p *Processor) RequestPermission(ctx context.Context, medic, client string, duration int) error {
	if err := p.db.RequestPermission(ctx, medic, client, duration); err != nil {
		return err
	}
	p.notifyPermission(ctx, models.RoleClient, client)
	return nil
}

// GrantPermission lets a client grant access directly and notifies the
// medic's live session.
func (p *Processor) GrantPermission(ctx context.Context, client, medic string, duration int) error {
	if err := p.db.GrantPermission(ctx, client, medic, duration); err != nil {
		return err
	}
	p.notifyPermission(ctx, models.RoleMedic, medic)
	return nil
}

// AcceptPermission accepts a pending request.
func (p *Processor) AcceptPermission(ctx context.Context, client, medic string) error {
	if err := p.db.AcceptPermission(ctx, client, medic); err != nil {
		return err
	}
	p.notifyPermission(ctx, models.RoleMedic, medic)
	return nil
}

// RejectPermission rejects a pending request.
func (p *Processor) RejectPermission(ctx context.Context, client, medic string) error {
	if err := p.db.RejectPermission(ctx, client, medic); err != nil {
		return err
	}
	p.notifyPermission(ctx, models.RoleMedic, medic)
	return nil
}

// RemovePermission drops a permission row (pending by the medic, accepted
// by the client).
func (p *Processor) RemovePermission(ctx context.Context, medic, client string) error {
	return p.db.RemovePermission(ctx, medic, client)
}

// PendingPermissions lists requests awaiting the user's response.
func (p *Processor) PendingPermissions(ctx context.Context, user string) ([]models.Permission, error) {
	return p.db.PendingPermissions(ctx, user)
}

// AllPermissions lists every permission involving the user.
func (p *Processor) AllPermissions(ctx context.Context, user string) ([]models.Permission, error) {
	return p.db.AllPermissions(ctx, user)
}

// AttachSession registers a websocket connection under a session token and
// immediately pushes any pending permissions.
func (p *Processor) AttachSession(ctx context.Context, token string) {
	user, _, ok := p.Authenticate(token)
	if !ok {
		return
	}
	pending, err := p.db.PendingPermissions(ctx, user)
	if err != nil {
		p.logger.Errorf("<%s> Pending permission check failed: %v", user, err)
		return
	}
	if len(pending) > 0 {
		p.pushPayload(token, pending)
	}
}

// Push exposes the connection manager to the websocket handler.
func (p *Processor) Push() *ws.Manager { return p.push }

// notifyPermission pushes the user's pending permissions to their live
// session. Asynchronous and best-effort.
func (p *Processor) notifyPermission(ctx context.Context, role models.Role, username string) {
	token, ok := p.sessions.TokenOf(role, username)
	if !ok {
		return
	}
	pending, err := p.db.PendingPermissions(ctx, username)
	if err != nil {
		p.logger.Errorf("<%s> Pending permission lookup failed: %v", username, err)
		return
	}
	go p.pushPayload(token, pending)
}

func (p *Processor) pushPayload(token string, pending []models.Permission) {
	payload, err := json.Marshal(pending)
	if err != nil {
		p.logger.Errorf("Permission payload marshal failed: %v", err)
		return
	}
	p.push.Send(token, payload)
}
