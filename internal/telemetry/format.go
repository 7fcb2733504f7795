package telemetry

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatValue renders a reading value for display: the shortest exact
// decimal, with at least one fractional digit (48 -> "48.0").
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := decimal.NewFromFloat(v).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
