package schema

import (
	"regexp"
	"sort"
	"strings"
	"testing"
)

func TestMonthID(t *testing.T) {
	tests := []struct {
		name  string
		month int
		year  int
		want  string
	}{
		{"january", 0, 2024, "month_202401"},
		{"february", 1, 2026, "month_202602"},
		{"december", 11, 2023, "month_202312"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthID(tt.month, tt.year); got != tt.want {
				t.Errorf("MonthID(%d, %d) = %q, want %q", tt.month, tt.year, got, tt.want)
			}
		})
	}
}

func TestCategoryID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Rent", "cat_Rent"},
		{"space", "Eating out", "cat_Eating%20out"},
		{"unreserved marks pass through", "a-b_c.d!e~f*g'h(i)", "cat_a-b_c.d!e~f*g'h(i)"},
		{"reserved characters escape", "a/b&c=d", "cat_a%2Fb%26c%3Dd"},
		{"emoji encodes per utf8 byte", "Grocery 🍴", "cat_Grocery%20%F0%9F%8D%B4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryID(tt.input); got != tt.want {
				t.Errorf("CategoryID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPadTimestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
		want string
	}{
		{"zero", 0, "0000000000000"},
		{"negative clamps to zero", -42, "0000000000000"},
		{"epoch millis", 1706888888000, "1706888888000"},
		{"short value pads", 12345, "0000000012345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PadTimestamp(tt.ts); got != tt.want {
				t.Errorf("PadTimestamp(%d) = %q, want %q", tt.ts, got, tt.want)
			}
		})
	}
}

func TestExpenseIDShape(t *testing.T) {
	id := ExpenseID(1706888888000)
	re := regexp.MustCompile(`^exp_\d{13}_[0-9a-f]{6}$`)
	if !re.MatchString(id) {
		t.Errorf("ExpenseID = %q, want shape exp_<13 digits>_<6 hex>", id)
	}
}

func TestExpenseIDsSortByTimestamp(t *testing.T) {
	timestamps := []int64{0, 999, 1000, 1706888888000, 1706888888001, 9999999999999}

	ids := make([]string, len(timestamps))
	for i, ts := range timestamps {
		ids[i] = ExpenseID(ts)
	}

	if !sort.StringsAreSorted(ids) {
		t.Errorf("ids generated at increasing timestamps are not lexicographically sorted: %v", ids)
	}
}

func TestExpenseIDsUniqueWithinMillisecond(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := ExpenseID(1706888888000)
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "exp_1706888888000_") {
			t.Fatalf("id %q lost its timestamp prefix", id)
		}
	}
}
