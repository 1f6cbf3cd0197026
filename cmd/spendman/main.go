package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendman/internal/config"
	"spendman/internal/log"
	"spendman/internal/model"
	"spendman/internal/platform"
	"spendman/internal/schema"
	appsync "spendman/internal/sync"
)

func main() {
	// Load .env file for local development (ignore errors in production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "configuration validation failed:", err)
		os.Exit(1)
	}

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	files := platform.NewLocalFiles(filepath.Join(cfg.DataDir, "cache"))
	notifier := platform.NewChannelNotifier()
	transport := appsync.NewCouchTransport(logger)

	m := model.New(cfg, logger, files, transport, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	existing, err := m.Init(ctx)
	if err != nil {
		logger.Error("Failed to initialize data layer", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Debug("Data layer ready", "existing_data", existing)

	args := os.Args[1:]
	cmd := "month"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	if err := run(ctx, m, cmd, args); err != nil {
		logger.Error("Command failed", log.FieldError, err.Error(), "command", cmd)
		m.SyncManager().Stop("shutdown")
		os.Exit(1)
	}
	m.SyncManager().Stop("shutdown")
}

func run(ctx context.Context, m *model.Model, cmd string, args []string) error {
	switch cmd {
	case "init":
		// Init already ran; this command exists so first-run setup can be
		// scripted explicitly.
		return nil
	case "month", "report":
		return showMonth(ctx, m, args)
	case "week":
		return showWeek(ctx, m)
	case "past":
		return showPast(ctx, m, args)
	case "list":
		return listExpenses(ctx, m, args)
	case "by-category":
		return byCategory(ctx, m, args)
	case "add":
		return addExpense(ctx, m, args)
	case "remove":
		return removeExpense(ctx, m, args)
	case "categories":
		return manageCategories(ctx, m, args)
	case "budget":
		return setBudget(ctx, m, args)
	case "currency":
		return setSetting(args, func(v string) error { return m.SetCurrency(ctx, v) })
	case "language":
		return setSetting(args, func(v string) error { return m.SetLanguage(ctx, v) })
	case "url":
		if len(args) == 0 {
			return m.SetRemoteURL(ctx, "")
		}
		return m.SetRemoteURL(ctx, args[0])
	case "export":
		ref, err := m.ExportData(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ref)
		return nil
	case "import":
		if len(args) == 0 {
			return errors.New("usage: spendman import <file>")
		}
		return m.ImportData(ctx, platform.Picked{Path: args[0]})
	case "import-legacy":
		if len(args) == 0 {
			return errors.New("usage: spendman import-legacy <file>")
		}
		return m.ImportLegacyData(ctx, platform.Picked{Path: args[0]})
	case "sync":
		return runSync(ctx, m)
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Println(`usage: spendman <command> [args]

  init                     create the local store if missing
  month [month year]       budget summary (default: current month)
  week                     budget summary for the current week
  past [n]                 totals for the past n months (default 12)
  list [month year]        list a month's expenses
  by-category [month year] per-category totals for a month
  add <cost> <category>    record an expense now
  remove <id>              delete an expense by id
  categories [add|rm name] list or edit categories
  budget <monthly|daily> <amount>
  currency <symbol>        set the display currency
  language <en|it>         set the month label language
  url [couchdb-url]        set or clear the replication target
  export                   write all data to a cache file
  import <file>            replace all data from an exported file
  import-legacy <file>     replace all data from a legacy export
  sync                     replicate until interrupted`)
}

// parseMonthYear reads an optional 1-based month and year pair, returning
// the 0-based month the data layer uses. ok is false when no pair was given.
func parseMonthYear(args []string) (month, year int, ok bool, err error) {
	if len(args) < 2 {
		return 0, 0, false, nil
	}
	mo, err := strconv.Atoi(args[0])
	if err != nil || mo < 1 || mo > 12 {
		return 0, 0, false, fmt.Errorf("invalid month %q", args[0])
	}
	yr, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid year %q", args[1])
	}
	return mo - 1, yr, true, nil
}

func showMonth(ctx context.Context, m *model.Model, args []string) error {
	month, year, fixed, err := parseMonthYear(args)
	if err != nil {
		return err
	}

	var exp model.Expense
	if fixed {
		exp, err = m.MonthlyExpenseFor(ctx, month, year)
	} else {
		exp, err = m.MonthlyExpense(ctx)
	}
	if err != nil {
		return err
	}
	return printSummary(m, exp)
}

func showWeek(ctx context.Context, m *model.Model) error {
	exp, err := m.WeeklyExpense(ctx)
	if err != nil {
		return err
	}
	return printSummary(m, exp)
}

func printSummary(m *model.Model, exp model.Expense) error {
	currency, err := m.Currency()
	if err != nil {
		return err
	}
	fmt.Printf("spent      %s %s\n", exp.TotalSum, currency)
	fmt.Printf("budget     %s %s\n", exp.MaxBudget, currency)
	fmt.Printf("remaining  %s %s\n", exp.Remains, currency)
	fmt.Printf("as of now  %s %s\n", exp.BudgetAsToday, currency)
	return nil
}

func showPast(ctx context.Context, m *model.Model, args []string) error {
	months := 12
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid month count %q", args[0])
		}
		months = n
	}
	summaries, err := m.PastMonthlyExpenses(ctx, months)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		fmt.Printf("%-16s spent %-10s remaining %.2f\n", s.Date, s.TotalSum, s.Remains)
	}
	return nil
}

func listExpenses(ctx context.Context, m *model.Model, args []string) error {
	month, year, err := monthYearOrNow(m, args)
	if err != nil {
		return err
	}
	expenses, err := m.AllMonthExpenses(ctx, month, year)
	if err != nil {
		return err
	}
	for _, e := range expenses {
		fmt.Printf("%s  %s  %-10s %s\n", e.ID, e.Date.Format(time.DateOnly), e.Cost, e.Category)
	}
	return nil
}

func byCategory(ctx context.Context, m *model.Model, args []string) error {
	month, year, err := monthYearOrNow(m, args)
	if err != nil {
		return err
	}
	totals, err := m.ExpensesByCategory(ctx, month, year)
	if err != nil {
		return err
	}
	for _, ce := range totals {
		fmt.Printf("%-24s %s\n", ce.Category, ce.Sum)
	}
	return nil
}

func monthYearOrNow(m *model.Model, args []string) (int, int, error) {
	month, year, fixed, err := parseMonthYear(args)
	if err != nil {
		return 0, 0, err
	}
	if !fixed {
		now := time.Now()
		return int(now.Month()) - 1, now.Year(), nil
	}
	return month, year, nil
}

func addExpense(ctx context.Context, m *model.Model, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: spendman add <cost> <category>")
	}
	cost, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid cost %q", args[0])
	}
	exp, err := m.AddExpense(ctx, cost, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Println(exp.ID)
	return nil
}

func removeExpense(ctx context.Context, m *model.Model, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: spendman remove <id>")
	}
	return m.RemoveExpense(ctx, model.SingleExpense{ID: args[0]})
}

func manageCategories(ctx context.Context, m *model.Model, args []string) error {
	if len(args) == 0 {
		cats, err := m.Categories()
		if err != nil {
			return err
		}
		for _, c := range cats {
			fmt.Println(c)
		}
		return nil
	}
	name := strings.Join(args[1:], " ")
	switch args[0] {
	case "add":
		added, err := m.AddCategory(ctx, name)
		if err != nil {
			return err
		}
		if !added {
			return fmt.Errorf("category %q not added", name)
		}
		return nil
	case "rm":
		return m.RemoveCategory(ctx, name)
	default:
		return fmt.Errorf("unknown categories action %q", args[0])
	}
}

func setBudget(ctx context.Context, m *model.Model, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: spendman budget <monthly|daily> <amount>")
	}
	var bt schema.BudgetType
	switch args[0] {
	case "monthly":
		bt = schema.Monthly
	case "daily":
		bt = schema.Daily
	default:
		return fmt.Errorf("invalid budget type %q", args[0])
	}
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil || amount < 0 {
		return fmt.Errorf("invalid budget amount %q", args[1])
	}
	return m.SetBudget(ctx, schema.Budget{Type: bt, Amount: amount})
}

func setSetting(args []string, apply func(string) error) error {
	if len(args) == 0 {
		return errors.New("missing value")
	}
	return apply(args[0])
}

// runSync keeps replication alive until SIGINT or SIGTERM.
func runSync(ctx context.Context, m *model.Model) error {
	url, err := m.RemoteURL()
	if err != nil {
		return err
	}
	if url == "" {
		return errors.New("no replication target configured; run: spendman url <couchdb-url>")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		fmt.Fprintln(os.Stderr, "shutdown signal received:", sig.String())
	case <-ctx.Done():
	}
	m.SyncManager().Stop("shutdown")
	return nil
}
