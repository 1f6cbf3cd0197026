package model

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spendman/internal/config"
	"spendman/internal/log"
	"spendman/internal/platform"
	"spendman/internal/schema"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	cfg := &config.Config{
		DBName:   "spendman-test",
		DataDir:  t.TempDir(),
		Platform: "memory",
	}
	m := New(cfg, log.Discard(), platform.NewLocalFiles(t.TempDir()), nil, nil)
	m.nowFn = func() time.Time {
		return time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)
	}
	return m
}

func initTestModel(t *testing.T) (*Model, context.Context) {
	t.Helper()
	m := newTestModel(t)
	ctx := context.Background()
	_, err := m.Init(ctx)
	require.NoError(t, err)
	return m, ctx
}

// settingsDocCount counts settings documents via the export payload, the
// only whole-store view the public API offers.
func settingsDocCount(t *testing.T, m *Model, ctx context.Context) int {
	t.Helper()
	ref, err := m.ExportData(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(ref)
	require.NoError(t, err)

	var payload struct {
		Docs []struct {
			ID string `json:"_id"`
		} `json:"docs"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))

	count := 0
	for _, doc := range payload.Docs {
		if doc.ID == schema.SettingsDocID {
			count++
		}
	}
	return count
}

// exportDocIDs collects every stored document id via the export payload.
func exportDocIDs(t *testing.T, m *Model, ctx context.Context) map[string]bool {
	t.Helper()
	ref, err := m.ExportData(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(ref)
	require.NoError(t, err)

	var payload struct {
		Docs []struct {
			ID string `json:"_id"`
		} `json:"docs"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))

	ids := make(map[string]bool, len(payload.Docs))
	for _, doc := range payload.Docs {
		ids[doc.ID] = true
	}
	return ids
}

func TestInitSeedsFreshStore(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	existing, err := m.Init(ctx)
	require.NoError(t, err)
	require.False(t, existing)

	currency, err := m.Currency()
	require.NoError(t, err)
	require.Equal(t, schema.DefaultCurrency, currency)

	language, err := m.Language()
	require.NoError(t, err)
	require.Equal(t, schema.DefaultLanguage, language)

	budget, err := m.Budget()
	require.NoError(t, err)
	require.Equal(t, schema.DefaultBudget, budget)

	cats, err := m.Categories()
	require.NoError(t, err)
	require.Equal(t, schema.DefaultCategories, cats)
}

func TestInitIsIdempotent(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	existing, err := m.Init(ctx)
	require.NoError(t, err)
	require.False(t, existing)

	existing, err = m.Init(ctx)
	require.NoError(t, err)
	require.True(t, existing)

	require.Equal(t, 1, settingsDocCount(t, m, ctx))
}

func TestInitConcurrentCallersShareOneSeed(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Init(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, settingsDocCount(t, m, ctx))
}

func TestOperationsFailBeforeInit(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	_, err := m.Budget()
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.AddExpense(ctx, 10, "Rent 🏠")
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.MonthlyExpense(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.ExportData(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestSetBudgetUpdatesCurrentMonth(t *testing.T) {
	m, ctx := initTestModel(t)

	require.NoError(t, m.SetBudget(ctx, schema.Budget{Type: schema.Monthly, Amount: 310}))

	budget, err := m.Budget()
	require.NoError(t, err)
	require.Equal(t, schema.Budget{Type: schema.Monthly, Amount: 310}, budget)

	// The current month document carries the new snapshot, so the summary
	// uses it right away.
	exp, err := m.MonthlyExpense(ctx)
	require.NoError(t, err)
	require.Equal(t, "309.96", exp.MaxBudget)
}

func TestSetCurrencyIsOptimistic(t *testing.T) {
	m, ctx := initTestModel(t)

	require.NoError(t, m.SetCurrency(ctx, "£"))
	currency, err := m.Currency()
	require.NoError(t, err)
	require.Equal(t, "£", currency)
}

func TestSetRemoteURLNormalizes(t *testing.T) {
	m, ctx := initTestModel(t)

	require.NoError(t, m.SetRemoteURL(ctx, "  https://couch.example.com/spending  "))
	url, err := m.RemoteURL()
	require.NoError(t, err)
	require.Equal(t, "https://couch.example.com/spending", url)

	require.NoError(t, m.SetRemoteURL(ctx, ""))
	url, err = m.RemoteURL()
	require.NoError(t, err)
	require.Equal(t, "", url)
}

func TestAddCategory(t *testing.T) {
	m, ctx := initTestModel(t)

	added, err := m.AddCategory(ctx, "  Coffee ☕  ")
	require.NoError(t, err)
	require.True(t, added)

	cats, err := m.Categories()
	require.NoError(t, err)
	require.Contains(t, cats, "Coffee ☕")

	added, err = m.AddCategory(ctx, "Coffee ☕")
	require.NoError(t, err)
	require.False(t, added)

	added, err = m.AddCategory(ctx, "   ")
	require.NoError(t, err)
	require.False(t, added)
}

func TestRemoveCategory(t *testing.T) {
	m, ctx := initTestModel(t)

	require.NoError(t, m.RemoveCategory(ctx, "Rent 🏠"))
	cats, err := m.Categories()
	require.NoError(t, err)
	require.NotContains(t, cats, "Rent 🏠")
	require.Len(t, cats, len(schema.DefaultCategories)-1)

	// Removing an unknown category is a no-op.
	require.NoError(t, m.RemoveCategory(ctx, "no such category"))
}

func TestTeardownResetsModel(t *testing.T) {
	m, ctx := initTestModel(t)

	_, err := m.AddExpense(ctx, 5, "Drinks 🍸")
	require.NoError(t, err)

	require.NoError(t, m.Teardown(ctx))

	_, err = m.Budget()
	require.ErrorIs(t, err, ErrNotInitialized)

	existing, err := m.Init(ctx)
	require.NoError(t, err)
	require.False(t, existing)

	list, err := m.AllMonthExpenses(ctx, 1, 2026)
	require.NoError(t, err)
	require.Empty(t, list)
}
