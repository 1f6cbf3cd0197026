// Package legacy converts the old month-bucketed storage format into the
// current document schema. The conversion is pure: no I/O, and deterministic
// apart from the random suffix inside generated expense ids.
package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"spendman/internal/schema"
)

// ErrMalformed reports legacy input that is not a JSON object at the top
// level. Anything object-shaped converts; unrecognized entries are skipped.
var ErrMalformed = errors.New("malformed legacy payload")

// rawBucket is the duck-typed shape a legacy entry must match to count as
// a month bucket. Fields stay raw until structural validation has run.
type rawBucket struct {
	DailyBudget json.RawMessage `json:"daily_budget"`
	Month       *float64        `json:"month"`
	Year        *float64        `json:"year"`
	Spending    json.RawMessage `json:"spending"`
}

type rawSpendItem struct {
	Category string          `json:"category"`
	Cost     json.RawMessage `json:"cost"`
	Date     string          `json:"date"`
}

// bucket is a validated month bucket.
type bucket struct {
	month       int
	year        int
	dailyBudget float64
	spending    []rawSpendItem
}

// ToDocs converts a legacy export into current-schema documents:
// one Settings document, category documents in first-seen order, one Month
// document per valid bucket and one Expense document per valid spending
// item. Entries that do not validate structurally as month buckets (the
// legacy "settings" key among them) are ignored for bucket purposes.
func ToDocs(raw []byte) ([]any, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	buckets := collectBuckets(entries)
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].year*100+buckets[i].month < buckets[j].year*100+buckets[j].month
	})

	budgetValue := settingsBudget(buckets, entries)

	var docs []any

	settings := schema.NewSettings("")
	settings.Budget = schema.Budget{Type: schema.Daily, Amount: budgetValue}
	docs = append(docs, settings)

	for _, name := range collectCategories(buckets) {
		docs = append(docs, schema.NewCategory(name))
	}

	for _, b := range buckets {
		docs = append(docs, schema.NewMonth(b.month, b.year, schema.Budget{
			Type:   schema.Daily,
			Amount: schema.Round2(b.dailyBudget),
		}))
		for _, item := range b.spending {
			if exp, ok := convertSpendItem(item); ok {
				docs = append(docs, exp)
			}
		}
	}

	return docs, nil
}

// collectBuckets keeps only entries that structurally qualify as month
// buckets: integer month in [0,11], integer year in [2000,3000] and an
// array-valued spending field.
func collectBuckets(entries map[string]json.RawMessage) []bucket {
	var out []bucket
	for _, raw := range entries {
		var rb rawBucket
		if err := json.Unmarshal(raw, &rb); err != nil {
			continue
		}
		if rb.Month == nil || rb.Year == nil {
			continue
		}
		month, ok := wholeInt(*rb.Month)
		if !ok || month < 0 || month > 11 {
			continue
		}
		year, ok := wholeInt(*rb.Year)
		if !ok || year < 2000 || year > 3000 {
			continue
		}
		var spending []rawSpendItem
		if rb.Spending == nil || json.Unmarshal(rb.Spending, &spending) != nil {
			continue
		}
		daily, _ := parseNumber(rb.DailyBudget)
		out = append(out, bucket{
			month:       month,
			year:        year,
			dailyBudget: daily,
			spending:    spending,
		})
	}
	return out
}

// settingsBudget resolves the imported settings budget: the daily_budget of
// the chronologically last valid bucket, else the legacy settings entry's
// daily_budget, else zero.
func settingsBudget(buckets []bucket, entries map[string]json.RawMessage) float64 {
	if len(buckets) > 0 {
		return schema.Round2(buckets[len(buckets)-1].dailyBudget)
	}
	if raw, ok := entries["settings"]; ok {
		var s struct {
			DailyBudget json.RawMessage `json:"daily_budget"`
		}
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, ok := parseNumber(s.DailyBudget); ok {
				return schema.Round2(v)
			}
		}
	}
	return 0
}

// collectCategories gathers category names in first-seen order across all
// buckets. When the legacy data names none, the built-in default list is
// substituted.
func collectCategories(buckets []bucket) []string {
	var names []string
	seen := make(map[string]bool)
	for _, b := range buckets {
		for _, item := range b.spending {
			name := strings.TrimSpace(item.Category)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return append([]string(nil), schema.DefaultCategories...)
	}
	return names
}

// convertSpendItem turns one legacy spending entry into an expense document.
// Items with an empty category, an unparseable date or a non-finite cost
// are dropped.
func convertSpendItem(item rawSpendItem) (schema.Expense, bool) {
	category := strings.TrimSpace(item.Category)
	if category == "" {
		return schema.Expense{}, false
	}
	ts, ok := parseISOTimestamp(item.Date)
	if !ok {
		return schema.Expense{}, false
	}
	cost, ok := parseNumber(item.Cost)
	if !ok {
		return schema.Expense{}, false
	}
	return schema.NewExpense(ts, schema.Round2(cost), category), true
}

func wholeInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}

// parseNumber accepts both JSON numbers and numeric strings (the legacy
// format stored costs as strings) and rejects non-finite values.
func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func parseISOTimestamp(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
