package model

import (
	"context"
	"sort"
	"time"

	"spendman/internal/schema"
)

// Expense is a budget-vs-spending summary for one window. All amounts are
// pre-formatted to two decimals for direct display.
type Expense struct {
	TotalSum      string `json:"total_sum"`
	MaxBudget     string `json:"max_budget"`
	Remains       string `json:"remains"`
	BudgetAsToday string `json:"budget_as_today"`
}

// CategoryExpense is the spending total for one category within a month.
type CategoryExpense struct {
	Category string `json:"category"`
	Sum      string `json:"sum"`
}

// MonthSummary is one entry of the past-months report. Month is 0-indexed.
// Remains stays numeric so chart consumers need not re-parse it.
type MonthSummary struct {
	Date     string  `json:"date"`
	Month    int     `json:"month"`
	Year     int     `json:"year"`
	TotalSum string  `json:"total_sum"`
	Remains  float64 `json:"remains"`
}

// MonthlyExpense summarizes the current month. The budget ceiling scales
// with the day of month, so overspending shows up mid-month instead of on
// the 31st. The result is cached until the next mutation.
func (m *Model) MonthlyExpense(ctx context.Context) (Expense, error) {
	if _, err := m.ensureInit(); err != nil {
		return Expense{}, err
	}
	m.mu.Lock()
	cached := m.monthlyExp
	m.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	now := m.nowFn()
	exp, err := m.monthlyExpenseAt(ctx, int(now.Month())-1, now.Year(), now.Day())
	if err != nil {
		return Expense{}, err
	}

	m.mu.Lock()
	m.monthlyExp = &exp
	m.mu.Unlock()
	return exp, nil
}

// MonthlyExpenseFor summarizes a fixed month. No day scaling applies: the
// budget-as-today equals the full month budget. month is 0-indexed.
func (m *Model) MonthlyExpenseFor(ctx context.Context, month, year int) (Expense, error) {
	if _, err := m.ensureInit(); err != nil {
		return Expense{}, err
	}
	return m.monthlyExpenseAt(ctx, month, year, 0)
}

// monthlyExpenseAt computes the summary; dayOfMonth > 0 marks the month as
// current and scales the as-of-today ceiling.
func (m *Model) monthlyExpenseAt(ctx context.Context, month, year, dayOfMonth int) (Expense, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return Expense{}, err
	}

	md, err := m.ensureMonth(ctx, month, year)
	if err != nil {
		return Expense{}, err
	}
	daily := schema.DailyBudgetFrom(md.Budget, month, year)
	days := schema.DaysInMonth(month, year)
	maxBudget := daily * float64(days)

	startTs, endTs := m.monthBounds(month, year)
	expenses, err := m.expensesInRange(ctx, engine, startTs, endTs)
	if err != nil {
		return Expense{}, err
	}
	total := sumCosts(expenses)

	// Remains is measured against the ceiling so far, not the full month;
	// for fixed months the two coincide.
	budgetAsToday := maxBudget
	if dayOfMonth > 0 {
		budgetAsToday = daily * float64(dayOfMonth)
	}

	return Expense{
		TotalSum:      schema.Format2(total),
		MaxBudget:     schema.Format2(maxBudget),
		Remains:       schema.Format2(budgetAsToday - total),
		BudgetAsToday: schema.Format2(budgetAsToday),
	}, nil
}

// WeeklyExpense summarizes the week containing now. Weeks start on Monday.
// The result is cached until the next mutation.
func (m *Model) WeeklyExpense(ctx context.Context) (Expense, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return Expense{}, err
	}
	m.mu.Lock()
	cached := m.weeklyExp
	m.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	now := m.nowFn()
	month, year := int(now.Month())-1, now.Year()
	md, err := m.ensureMonth(ctx, month, year)
	if err != nil {
		return Expense{}, err
	}
	daily := schema.DailyBudgetFrom(md.Budget, month, year)

	// Monday is day 0 of the week.
	dayOfWeek := (int(now.Weekday()) + 6) % 7
	startOfWeek := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -dayOfWeek)

	expenses, err := m.expensesInRange(ctx, engine, startOfWeek.UnixMilli(), now.UnixMilli()+1)
	if err != nil {
		return Expense{}, err
	}
	total := sumCosts(expenses)
	maxBudget := daily * 7
	budgetAsToday := daily * float64(dayOfWeek+1)

	exp := Expense{
		TotalSum:      schema.Format2(total),
		MaxBudget:     schema.Format2(maxBudget),
		Remains:       schema.Format2(budgetAsToday - total),
		BudgetAsToday: schema.Format2(budgetAsToday),
	}

	m.mu.Lock()
	m.weeklyExp = &exp
	m.mu.Unlock()
	return exp, nil
}

// ExpensesByCategory totals a month's spending per category, highest
// first. month is 0-indexed.
func (m *Model) ExpensesByCategory(ctx context.Context, month, year int) ([]CategoryExpense, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return nil, err
	}
	if _, err := m.ensureMonth(ctx, month, year); err != nil {
		return nil, err
	}

	startTs, endTs := m.monthBounds(month, year)
	expenses, err := m.expensesInRange(ctx, engine, startTs, endTs)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64)
	order := make([]string, 0)
	for _, exp := range expenses {
		if _, seen := totals[exp.Category]; !seen {
			order = append(order, exp.Category)
		}
		totals[exp.Category] += exp.Cost
	}
	sort.SliceStable(order, func(i, j int) bool {
		return totals[order[i]] > totals[order[j]]
	})

	out := make([]CategoryExpense, 0, len(order))
	for _, cat := range order {
		out = append(out, CategoryExpense{
			Category: cat,
			Sum:      schema.Format2(schema.Round2(totals[cat])),
		})
	}
	return out, nil
}

// PastMonthlyExpenses reports the last months of spending, newest first:
// entry 0 is the current month, entry months-1 the oldest. One spanning
// scan covers the whole window. Each walked month document is created if
// absent, so historical gaps get back-filled with a budget snapshot that
// later budget changes cannot rewrite.
func (m *Model) PastMonthlyExpenses(ctx context.Context, months int) ([]MonthSummary, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		return nil, nil
	}

	now := m.nowFn()
	curMonth, curYear := int(now.Month())-1, now.Year()

	m.mu.Lock()
	language := m.settings.Language
	m.mu.Unlock()

	oldestMonth, oldestYear := shiftMonth(curMonth, curYear, -(months - 1))
	spanStart, _ := m.monthBounds(oldestMonth, oldestYear)
	_, spanEnd := m.monthBounds(curMonth, curYear)

	expenses, err := m.expensesInRange(ctx, engine, spanStart, spanEnd)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64, months)
	for _, exp := range expenses {
		t := time.UnixMilli(exp.TS).In(now.Location())
		totals[schema.MonthID(int(t.Month())-1, t.Year())] += exp.Cost
	}

	out := make([]MonthSummary, 0, months)
	for i := 0; i < months; i++ {
		month, year := shiftMonth(curMonth, curYear, -i)

		md, err := m.ensureMonth(ctx, month, year)
		if err != nil {
			return nil, err
		}

		daily := schema.DailyBudgetFrom(md.Budget, month, year)
		maxBudget := daily * float64(schema.DaysInMonth(month, year))
		total := schema.Round2(totals[schema.MonthID(month, year)])

		out = append(out, MonthSummary{
			Date:     schema.MonthLabel(month, year, language),
			Month:    month,
			Year:     year,
			TotalSum: schema.Format2(total),
			Remains:  schema.Round2(maxBudget - total),
		})
	}
	return out, nil
}

// AllMonthExpenses lists a month's expenses in chronological order.
// month is 0-indexed.
func (m *Model) AllMonthExpenses(ctx context.Context, month, year int) ([]SingleExpense, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return nil, err
	}
	if _, err := m.ensureMonth(ctx, month, year); err != nil {
		return nil, err
	}

	startTs, endTs := m.monthBounds(month, year)
	expenses, err := m.expensesInRange(ctx, engine, startTs, endTs)
	if err != nil {
		return nil, err
	}

	out := make([]SingleExpense, 0, len(expenses))
	for _, exp := range expenses {
		out = append(out, toSingleExpense(exp))
	}
	return out, nil
}

// monthBounds returns the epoch-millisecond range [start, end) of the
// 0-indexed month in the model clock's location.
func (m *Model) monthBounds(month, year int) (int64, int64) {
	loc := m.nowFn().Location()
	start := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, loc)
	return start.UnixMilli(), start.AddDate(0, 1, 0).UnixMilli()
}

// shiftMonth moves a 0-indexed month by delta months.
func shiftMonth(month, year, delta int) (int, int) {
	total := year*12 + month + delta
	return ((total % 12) + 12) % 12, total / 12
}

func sumCosts(expenses []schema.Expense) float64 {
	var total float64
	for _, exp := range expenses {
		total += exp.Cost
	}
	return schema.Round2(total)
}
