// Package model is the data layer of the expense tracker: it owns the
// document store handle, the in-memory settings and category caches, the
// aggregate caches and the sync manager, and exposes the operations the
// UI layer calls.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"spendman/internal/config"
	"spendman/internal/docstore"
	"spendman/internal/log"
	"spendman/internal/platform"
	"spendman/internal/schema"
	appsync "spendman/internal/sync"
)

// ErrNotInitialized reports a store operation invoked before Init
// completed.
var ErrNotInitialized = errors.New("model not initialized")

// Model is one running instance of the data layer. All state hangs off the
// instance; nothing is global.
type Model struct {
	cfg      *config.Config
	logger   *log.Logger
	files    platform.Files
	notifier appsync.Notifier

	initGroup singleflight.Group

	mu         sync.Mutex
	engine     docstore.Engine
	settings   *schema.Settings
	categories []string
	weeklyExp  *Expense
	monthlyExp *Expense
	isInit     bool

	syncMgr *appsync.Manager

	// nowFn is swapped by tests for deterministic calendars.
	nowFn func() time.Time
}

// New wires a model instance. The transport and notifier may be nil when
// the platform offers no sync or lifecycle hooks.
func New(cfg *config.Config, logger *log.Logger, files platform.Files, transport appsync.Transport, notifier appsync.Notifier) *Model {
	m := &Model{
		cfg:      cfg,
		logger:   logger.WithComponent(log.ComponentModel),
		files:    files,
		notifier: notifier,
		nowFn:    time.Now,
	}
	if transport == nil {
		transport = noopTransport{}
	}
	m.syncMgr = appsync.NewManager(transport, logger, cfg.NormalizeRemoteURL, m.remoteURLForSync)
	return m
}

// noopTransport keeps the sync manager harmless on platforms without one.
type noopTransport struct{}

func (noopTransport) Start(context.Context, docstore.Engine, string, appsync.Options) (appsync.Handle, error) {
	return nil, errors.New("sync transport unavailable")
}

func (m *Model) remoteURLForSync() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return ""
	}
	return m.settings.CouchDBURL
}

// Init opens the store and loads or seeds the settings and category
// caches. It is idempotent, and concurrent callers share one in-flight
// initialization. The return value reports whether existing data was
// found: false means a fresh store was seeded.
func (m *Model) Init(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.isInit {
		m.mu.Unlock()
		return true, nil
	}
	m.mu.Unlock()

	existing, err, _ := m.initGroup.Do("init", func() (any, error) {
		return m.doInit(ctx)
	})
	if err != nil {
		return false, err
	}
	return existing.(bool), nil
}

func (m *Model) doInit(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.isInit {
		m.mu.Unlock()
		return true, nil
	}
	m.mu.Unlock()

	engine, err := docstore.Open(ctx, docstore.Options{
		Name:     m.cfg.DBName,
		Platform: m.cfg.Platform,
		DataDir:  m.cfg.DataDir,
	}, m.logger)
	if err != nil {
		return false, fmt.Errorf("open document store: %w", err)
	}

	existingSettings, err := m.loadSettings(ctx, engine)
	if err != nil {
		engine.Close()
		return false, err
	}

	hadData := existingSettings != nil

	if !hadData {
		seeded, err := m.seedFreshStore(ctx, engine)
		if err != nil {
			engine.Close()
			return false, err
		}
		existingSettings = seeded
	} else {
		m.normalizeStoredURL(ctx, engine, existingSettings)
		cats, err := loadCategories(ctx, engine)
		if err != nil {
			engine.Close()
			return false, fmt.Errorf("load categories: %w", err)
		}
		m.mu.Lock()
		m.categories = cats
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.engine = engine
	m.settings = existingSettings
	m.isInit = true
	m.mu.Unlock()

	m.syncMgr.SetEngine(engine)
	m.syncMgr.InstallHooks(m.notifier)
	m.syncMgr.Restart(ctx)

	return hadData, nil
}

// loadSettings returns the settings document, or nil when the store has
// never been initialized.
func (m *Model) loadSettings(ctx context.Context, engine docstore.Engine) (*schema.Settings, error) {
	doc, err := engine.Get(ctx, schema.SettingsDocID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var s schema.Settings
	if err := doc.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

// seedFreshStore writes the initial settings and default categories.
func (m *Model) seedFreshStore(ctx context.Context, engine docstore.Engine) (*schema.Settings, error) {
	settings := schema.NewSettings(m.cfg.NormalizeRemoteURL(""))
	doc, err := docstore.FromValue(settings)
	if err != nil {
		return nil, err
	}
	rev, err := engine.Put(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	settings.Rev = rev

	for _, name := range schema.DefaultCategories {
		catDoc, err := docstore.FromValue(schema.NewCategory(name))
		if err != nil {
			return nil, err
		}
		if _, err := docstore.PutIfMissing(ctx, engine, catDoc); err != nil {
			return nil, fmt.Errorf("seed category %q: %w", name, err)
		}
	}

	m.mu.Lock()
	m.categories = append([]string(nil), schema.DefaultCategories...)
	m.mu.Unlock()

	return &settings, nil
}

// normalizeStoredURL rewrites the persisted couchdbURL when normalization
// changes it. Persistence is best-effort: on failure the in-memory copy
// still carries the normalized value.
func (m *Model) normalizeStoredURL(ctx context.Context, engine docstore.Engine, s *schema.Settings) {
	normalized := m.cfg.NormalizeRemoteURL(s.CouchDBURL)
	if s.CouchDBURL == normalized {
		return
	}
	s.CouchDBURL = normalized

	fresh, err := updateSettingsDoc(ctx, engine, func(fresh *schema.Settings) {
		fresh.CouchDBURL = normalized
	})
	if err != nil {
		m.logger.WithComponent(log.ComponentSettings).Warn("[settings] failed to persist couchdbURL normalization",
			log.FieldError, log.Redact(err.Error()))
		return
	}
	*s = fresh
}

// updateSettingsDoc reads the stored settings fresh, applies mutate and
// writes it back, returning the persisted copy.
func updateSettingsDoc(ctx context.Context, engine docstore.Engine, mutate func(*schema.Settings)) (schema.Settings, error) {
	doc, err := engine.Get(ctx, schema.SettingsDocID)
	if err != nil {
		return schema.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var fresh schema.Settings
	if err := doc.Unmarshal(&fresh); err != nil {
		return schema.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	mutate(&fresh)
	fresh.LastUpdate = schema.Version

	updated, err := docstore.FromValue(fresh)
	if err != nil {
		return schema.Settings{}, err
	}
	rev, err := engine.Put(ctx, updated)
	if err != nil {
		return schema.Settings{}, fmt.Errorf("write settings: %w", err)
	}
	fresh.Rev = rev
	return fresh, nil
}

// storeSettings replaces the in-memory settings snapshot.
func (m *Model) storeSettings(s schema.Settings) {
	m.mu.Lock()
	if m.settings != nil {
		*m.settings = s
	} else {
		m.settings = &s
	}
	m.mu.Unlock()
}

func loadCategories(ctx context.Context, engine docstore.Engine) ([]string, error) {
	docs, err := engine.RangeScan(ctx, schema.CategoryPrefix, schema.CategoryPrefix+schema.HighKey)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, doc := range docs {
		var c schema.Category
		if err := doc.Unmarshal(&c); err != nil {
			continue
		}
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

// ensureInit fails fast when the model has not been initialized, instead
// of dereferencing a missing store handle deeper down.
func (m *Model) ensureInit() (docstore.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isInit || m.engine == nil || m.settings == nil {
		return nil, ErrNotInitialized
	}
	return m.engine, nil
}

// invalidateAggregates drops the cached weekly and monthly summaries.
// Every mutation that could change them calls this before returning.
func (m *Model) invalidateAggregates() {
	m.mu.Lock()
	m.weeklyExp = nil
	m.monthlyExp = nil
	m.mu.Unlock()
}

// SyncManager exposes the lifecycle manager, e.g. for a host wiring
// platform callbacks or a daemon waiting on shutdown.
func (m *Model) SyncManager() *appsync.Manager {
	return m.syncMgr
}

// Teardown stops sync, removes lifecycle hooks, destroys the store and
// resets the instance. Tests and the clear-data flow depend on this
// leaving nothing registered.
func (m *Model) Teardown(ctx context.Context) error {
	m.syncMgr.Stop("teardown")
	m.syncMgr.RemoveHooks()

	m.mu.Lock()
	engine := m.engine
	m.engine = nil
	m.settings = nil
	m.categories = nil
	m.weeklyExp = nil
	m.monthlyExp = nil
	m.isInit = false
	m.mu.Unlock()

	if engine == nil {
		return nil
	}
	if err := engine.Destroy(ctx); err != nil {
		engine.Close()
		return fmt.Errorf("destroy store: %w", err)
	}
	return engine.Close()
}
