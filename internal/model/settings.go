package model

import (
	"context"
	"fmt"
	"strings"

	"spendman/internal/docstore"
	"spendman/internal/log"
	"spendman/internal/schema"
)

// Budget returns the current global budget.
func (m *Model) Budget() (schema.Budget, error) {
	if _, err := m.ensureInit(); err != nil {
		return schema.Budget{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Budget, nil
}

// SetBudget updates the global budget and re-snapshots it onto the current
// month document, so the change is visible immediately rather than from
// next month.
func (m *Model) SetBudget(ctx context.Context, b schema.Budget) error {
	engine, err := m.ensureInit()
	if err != nil {
		return err
	}
	m.invalidateAggregates()

	fresh, err := updateSettingsDoc(ctx, engine, func(fresh *schema.Settings) {
		fresh.Budget = b
	})
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	m.storeSettings(fresh)

	now := m.nowFn()
	month, year := int(now.Month())-1, now.Year()
	if _, err := m.ensureMonth(ctx, month, year); err != nil {
		return err
	}
	doc, err := engine.Get(ctx, schema.MonthID(month, year))
	if err != nil {
		return fmt.Errorf("read current month: %w", err)
	}
	var md schema.Month
	if err := doc.Unmarshal(&md); err != nil {
		return fmt.Errorf("decode current month: %w", err)
	}
	md.Budget = b
	updated, err := docstore.FromValue(md)
	if err != nil {
		return err
	}
	if _, err := engine.Put(ctx, updated); err != nil {
		return fmt.Errorf("update current month budget: %w", err)
	}
	return nil
}

// Currency returns the configured currency symbol.
func (m *Model) Currency() (string, error) {
	if _, err := m.ensureInit(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Currency, nil
}

// SetCurrency changes the currency symbol. The in-memory value changes
// immediately; persistence is best-effort and a failure only logs.
func (m *Model) SetCurrency(ctx context.Context, currency string) error {
	engine, err := m.ensureInit()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.settings.Currency = currency
	m.mu.Unlock()

	fresh, err := updateSettingsDoc(ctx, engine, func(fresh *schema.Settings) {
		fresh.Currency = currency
	})
	if err != nil {
		m.logger.WithComponent(log.ComponentSettings).Warn("[settings] failed to persist currency", log.FieldError, err.Error())
		return nil
	}
	m.storeSettings(fresh)
	return nil
}

// Language returns the configured language code.
func (m *Model) Language() (string, error) {
	if _, err := m.ensureInit(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Language, nil
}

// SetLanguage changes the month-label language, best-effort persisted.
func (m *Model) SetLanguage(ctx context.Context, language string) error {
	engine, err := m.ensureInit()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.settings.Language = language
	m.mu.Unlock()

	fresh, err := updateSettingsDoc(ctx, engine, func(fresh *schema.Settings) {
		fresh.Language = language
	})
	if err != nil {
		m.logger.WithComponent(log.ComponentSettings).Warn("[settings] failed to persist language", log.FieldError, err.Error())
		return nil
	}
	m.storeSettings(fresh)
	return nil
}

// RemoteURL returns the configured replication target.
func (m *Model) RemoteURL() (string, error) {
	if _, err := m.ensureInit(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.CouchDBURL, nil
}

// SetRemoteURL normalizes and stores the replication target, then
// restarts sync so the new target takes effect. The in-memory value
// changes even when persistence fails.
func (m *Model) SetRemoteURL(ctx context.Context, rawURL string) error {
	engine, err := m.ensureInit()
	if err != nil {
		return err
	}
	normalized := m.cfg.NormalizeRemoteURL(rawURL)

	m.mu.Lock()
	m.settings.CouchDBURL = normalized
	m.mu.Unlock()

	fresh, err := updateSettingsDoc(ctx, engine, func(fresh *schema.Settings) {
		fresh.CouchDBURL = normalized
	})
	if err != nil {
		m.logger.WithComponent(log.ComponentSettings).Warn("[settings] failed to persist couchdbURL", log.FieldError, log.Redact(err.Error()))
	} else {
		m.storeSettings(fresh)
	}

	m.syncMgr.Restart(ctx)
	return nil
}

// Categories returns the cached category names. The returned slice is a
// copy; callers may mutate it freely.
func (m *Model) Categories() ([]string, error) {
	if _, err := m.ensureInit(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.categories...), nil
}

// AddCategory appends a category. The cache updates immediately and the
// document write is best-effort. It reports whether the name was added:
// blank names and duplicates are rejected.
func (m *Model) AddCategory(ctx context.Context, name string) (bool, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}

	m.mu.Lock()
	for _, existing := range m.categories {
		if existing == name {
			m.mu.Unlock()
			return false, nil
		}
	}
	m.categories = append(m.categories, name)
	m.mu.Unlock()

	doc, err := docstore.FromValue(schema.NewCategory(name))
	if err != nil {
		return true, nil
	}
	if _, err := docstore.PutIfMissing(ctx, engine, doc); err != nil {
		m.logger.WithComponent(log.ComponentSettings).Warn("[settings] failed to persist category",
			log.FieldCategory, name, log.FieldError, err.Error())
	}
	return true, nil
}

// RemoveCategory drops a category from the cache and best-effort deletes
// its document. Expenses already recorded under the name keep it.
func (m *Model) RemoveCategory(ctx context.Context, name string) error {
	engine, err := m.ensureInit()
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)

	m.mu.Lock()
	kept := m.categories[:0]
	for _, existing := range m.categories {
		if existing != name {
			kept = append(kept, existing)
		}
	}
	m.categories = kept
	m.mu.Unlock()

	doc, err := engine.Get(ctx, schema.CategoryID(name))
	if err != nil {
		return nil
	}
	if err := engine.Remove(ctx, doc); err != nil {
		m.logger.WithComponent(log.ComponentSettings).Warn("[settings] failed to remove category document",
			log.FieldCategory, name, log.FieldError, err.Error())
	}
	return nil
}
