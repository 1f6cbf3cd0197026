package schema

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
)

// HighKey is appended to a key prefix to form the exclusive upper bound of
// a prefix range scan.
const HighKey = "￿"

func itoa(n int) string {
	return strconv.Itoa(n)
}

// MonthID returns the document id for the 0-indexed month of year,
// e.g. MonthID(1, 2026) == "month_202602".
func MonthID(month, year int) string {
	return MonthPrefix + itoa(year*100+month+1)
}

// CategoryID derives the category document id from the name. The encoding
// must stay byte-compatible with ids already replicated from older installs.
func CategoryID(name string) string {
	return CategoryPrefix + encodeURIComponent(name)
}

// PadTimestamp renders ts as a fixed-width 13 digit string so expense ids
// sort lexicographically by timestamp. Negative timestamps clamp to zero.
func PadTimestamp(ts int64) string {
	if ts < 0 {
		ts = 0
	}
	s := strconv.FormatInt(ts, 10)
	if len(s) >= 13 {
		return s
	}
	return strings.Repeat("0", 13-len(s)) + s
}

// ExpenseID builds a new expense document id for ts epoch milliseconds.
// The random suffix keeps ids unique for expenses added in the same
// millisecond without breaking timestamp ordering between distinct instants.
func ExpenseID(ts int64) string {
	return ExpensePrefix + PadTimestamp(ts) + "_" + randomSuffix()
}

func randomSuffix() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// a constant suffix still yields a valid (if collision-prone) id.
		return "000000"
	}
	return hex.EncodeToString(b)
}

// encodeURIComponent escapes name the way the JavaScript function of the
// same name does: unreserved marks A-Za-z0-9 -_.!~*'() pass through, every
// other byte becomes %XX with uppercase hex.
func encodeURIComponent(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
			continue
		}
		switch c {
		case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
		}
	}
	return b.String()
}
