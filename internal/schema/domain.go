package schema

import (
	"errors"
	"time"
)

// Document types stored in the keyed document store. Every document carries
// its id under _id, an optional store revision under _rev and a type
// discriminator, matching what older installs already replicated remotely.

const (
	TypeSettings = "settings"
	TypeCategory = "category"
	TypeMonth    = "month"
	TypeExpense  = "expense"
)

const (
	SettingsDocID  = "settings"
	CategoryPrefix = "cat_"
	MonthPrefix    = "month_"
	ExpensePrefix  = "exp_"
)

// Version is the current schema version written to Settings.lastUpdate
// and to export payloads.
const Version = 1

type BudgetType int

const (
	Monthly BudgetType = 0
	Daily   BudgetType = 1
)

type (
	// Budget is the spending allowance basis, embedded in Settings and Month.
	// The magnitude of Amount depends on Type.
	Budget struct {
		Type   BudgetType `json:"type"`
		Amount float64    `json:"budget"`
	}

	// Settings is the singleton settings document.
	Settings struct {
		ID         string `json:"_id"`
		Rev        string `json:"_rev,omitempty"`
		Type       string `json:"type"`
		Currency   string `json:"currency"`
		Language   string `json:"language"`
		CouchDBURL string `json:"couchdbURL"`
		Budget     Budget `json:"budget"`
		LastUpdate int    `json:"lastUpdate"`
	}

	// Category identity is the encoded name; renaming is delete+recreate.
	Category struct {
		ID   string `json:"_id"`
		Rev  string `json:"_rev,omitempty"`
		Type string `json:"type"`
		Name string `json:"name"`
	}

	// Month snapshots the global budget at creation time. Month is 0-indexed.
	Month struct {
		ID     string `json:"_id"`
		Rev    string `json:"_rev,omitempty"`
		Type   string `json:"type"`
		Month  int    `json:"month"`
		Year   int    `json:"year"`
		Budget Budget `json:"budget"`
	}

	// Expense is immutable once written; Category is free-form, not a
	// foreign key into the category documents.
	Expense struct {
		ID       string  `json:"_id"`
		Rev      string  `json:"_rev,omitempty"`
		Type     string  `json:"type"`
		TS       int64   `json:"ts"`
		Cost     float64 `json:"cost"`
		Category string  `json:"category"`
	}
)

var (
	ErrInvalidMonth = errors.New("month out of range")
	ErrInvalidYear  = errors.New("year out of range")
)

const (
	DefaultCurrency = "€"
	DefaultLanguage = "en"
)

// DefaultBudget matches the seed written on first initialization.
var DefaultBudget = Budget{Type: Monthly, Amount: 0}

// DefaultCategories is the category list seeded on first run and used as
// a fallback when a legacy import contains no categories at all.
var DefaultCategories = []string{
	"Rent 🏠",
	"Grocery 🍴",
	"Eating out 🌮",
	"Drinks 🍸",
	"Hobbies 🥏",
	"Travel 🚞",
	"Clothes 👖",
	"Car expenses 🚗",
	"Bills 📄",
	"Subscriptions 🖥",
	"Other expenses 📁",
}

// NewSettings returns the seed settings document with the given remote URL.
func NewSettings(remoteURL string) Settings {
	return Settings{
		ID:         SettingsDocID,
		Type:       TypeSettings,
		Currency:   DefaultCurrency,
		Language:   DefaultLanguage,
		CouchDBURL: remoteURL,
		Budget:     DefaultBudget,
		LastUpdate: Version,
	}
}

// NewCategory builds a category document for the given name.
func NewCategory(name string) Category {
	return Category{
		ID:   CategoryID(name),
		Type: TypeCategory,
		Name: name,
	}
}

// NewMonth builds a month document snapshotting the given budget.
// month is 0-indexed.
func NewMonth(month, year int, budget Budget) Month {
	return Month{
		ID:     MonthID(month, year),
		Type:   TypeMonth,
		Month:  month,
		Year:   year,
		Budget: budget,
	}
}

// NewExpense builds an expense document timestamped at ts epoch milliseconds.
func NewExpense(ts int64, cost float64, category string) Expense {
	return Expense{
		ID:       ExpenseID(ts),
		Type:     TypeExpense,
		TS:       ts,
		Cost:     cost,
		Category: category,
	}
}

// DaysInMonth returns the number of days in the 0-indexed month.
// Day 0 of the following month is the last day of this one.
func DaysInMonth(month, year int) int {
	return time.Date(year, time.Month(month+2), 0, 0, 0, 0, 0, time.UTC).Day()
}

// DailyBudgetFrom resolves a budget to its per-day allowance for the given
// 0-indexed month. Monthly budgets divide by the actual month length and
// round to cents; daily budgets apply as-is regardless of the calendar.
func DailyBudgetFrom(b Budget, month, year int) float64 {
	if b.Type == Daily {
		return b.Amount
	}
	return Round2(b.Amount / float64(DaysInMonth(month, year)))
}

var monthNames = map[string][12]string{
	"en": {
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	},
	"it": {
		"Gennaio", "Febbraio", "Marzo", "Aprile", "Maggio", "Giugno",
		"Luglio", "Agosto", "Settembre", "Ottobre", "Novembre", "Dicembre",
	},
}

// MonthLabel formats a localized "<Month> <year>" label for the 0-indexed
// month. Any language other than "en" renders Italian, matching the two
// languages the settings document supports.
func MonthLabel(month, year int, language string) string {
	names, ok := monthNames[language]
	if !ok {
		names = monthNames["it"]
	}
	if month < 0 || month > 11 {
		month = ((month % 12) + 12) % 12
	}
	return names[month] + " " + itoa(year)
}
