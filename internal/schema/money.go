// Package schema defines the document shapes, identifier scheme and money
// arithmetic shared by the store, the aggregation engine and the importers.
package schema

import (
	"math"
	"strconv"
)

// Round2 is the canonical 2-decimal rounding applied wherever money is
// computed, before any total is formatted for display.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Format2 renders a money value as a fixed 2-decimal string.
func Format2(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}
