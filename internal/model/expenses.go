package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"spendman/internal/docstore"
	"spendman/internal/log"
	"spendman/internal/schema"
)

// SingleExpense is one expense as the callers see it: cost formatted to
// two decimals, timestamp as a time value.
type SingleExpense struct {
	ID       string    `json:"_id"`
	Cost     string    `json:"cost"`
	Date     time.Time `json:"date"`
	Category string    `json:"category"`
}

// AddExpense records a new expense at the current instant, creating the
// month document first when this is the first expense of the month.
func (m *Model) AddExpense(ctx context.Context, cost float64, category string) (SingleExpense, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return SingleExpense{}, err
	}
	m.invalidateAggregates()

	now := m.nowFn()
	if _, err := m.ensureMonth(ctx, int(now.Month())-1, now.Year()); err != nil {
		return SingleExpense{}, err
	}

	exp := schema.NewExpense(now.UnixMilli(), schema.Round2(cost), category)
	doc, err := docstore.FromValue(exp)
	if err != nil {
		return SingleExpense{}, err
	}
	if _, err := engine.Put(ctx, doc); err != nil {
		return SingleExpense{}, fmt.Errorf("write expense: %w", err)
	}
	m.logger.Debug("[model] expense added", log.FieldDocID, exp.ID, log.FieldCategory, category)
	return toSingleExpense(exp), nil
}

// RemoveExpense deletes one expense. When the reference carries a store id
// that document is removed directly; otherwise the month around the
// reference date is scanned for the first expense matching timestamp,
// rounded cost and category. Removing an expense that no longer exists is
// not an error.
func (m *Model) RemoveExpense(ctx context.Context, ref SingleExpense) error {
	engine, err := m.ensureInit()
	if err != nil {
		return err
	}
	m.invalidateAggregates()

	if ref.ID != "" {
		doc, err := engine.Get(ctx, ref.ID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read expense: %w", err)
		}
		if err := engine.Remove(ctx, doc); err != nil {
			return fmt.Errorf("remove expense: %w", err)
		}
		return nil
	}

	cost, err := strconv.ParseFloat(ref.Cost, 64)
	if err != nil {
		return fmt.Errorf("parse expense cost %q: %w", ref.Cost, err)
	}
	cost = schema.Round2(cost)

	monthStart := time.Date(ref.Date.Year(), ref.Date.Month(), 1, 0, 0, 0, 0, ref.Date.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)
	docs, err := m.expensesInRange(ctx, engine, monthStart.UnixMilli(), monthEnd.UnixMilli())
	if err != nil {
		return err
	}
	for _, exp := range docs {
		if exp.TS == ref.Date.UnixMilli() && schema.Round2(exp.Cost) == cost && exp.Category == ref.Category {
			doc, err := engine.Get(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("read expense: %w", err)
			}
			if err := engine.Remove(ctx, doc); err != nil {
				return fmt.Errorf("remove expense: %w", err)
			}
			return nil
		}
	}
	return nil
}

// ensureMonth loads the month document, creating it with a snapshot of the
// current global budget when absent. month is 0-indexed.
func (m *Model) ensureMonth(ctx context.Context, month, year int) (schema.Month, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return schema.Month{}, err
	}

	doc, err := engine.Get(ctx, schema.MonthID(month, year))
	if err == nil {
		var md schema.Month
		if err := doc.Unmarshal(&md); err != nil {
			return schema.Month{}, fmt.Errorf("decode month: %w", err)
		}
		return md, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return schema.Month{}, fmt.Errorf("read month: %w", err)
	}

	m.mu.Lock()
	budget := m.settings.Budget
	m.mu.Unlock()

	md := schema.NewMonth(month, year, budget)
	created, err := docstore.FromValue(md)
	if err != nil {
		return schema.Month{}, err
	}
	if _, err := engine.Put(ctx, created); err != nil {
		return schema.Month{}, fmt.Errorf("create month: %w", err)
	}
	m.logger.Debug("[model] month created", log.FieldMonth, month, log.FieldYear, year)
	return md, nil
}

// expensesInRange returns expenses with startTs <= ts < endTs, ascending
// by timestamp. The scan rides the lexicographic id ordering of padded
// timestamps, so it touches only the relevant key range.
func (m *Model) expensesInRange(ctx context.Context, engine docstore.Engine, startTs, endTs int64) ([]schema.Expense, error) {
	startKey := schema.ExpensePrefix + schema.PadTimestamp(startTs)
	endKey := schema.ExpensePrefix + schema.PadTimestamp(endTs) + schema.HighKey
	docs, err := engine.RangeScan(ctx, startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("scan expenses: %w", err)
	}

	expenses := make([]schema.Expense, 0, len(docs))
	for _, doc := range docs {
		var exp schema.Expense
		if err := doc.Unmarshal(&exp); err != nil || exp.Type != schema.TypeExpense {
			continue
		}
		if exp.TS < startTs || exp.TS >= endTs {
			continue
		}
		expenses = append(expenses, exp)
	}
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].TS < expenses[j].TS })
	return expenses, nil
}

func toSingleExpense(exp schema.Expense) SingleExpense {
	return SingleExpense{
		ID:       exp.ID,
		Cost:     schema.Format2(exp.Cost),
		Date:     time.UnixMilli(exp.TS),
		Category: exp.Category,
	}
}
