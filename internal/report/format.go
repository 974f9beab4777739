package report

import (
	"strconv"
	"strings"
)

// Display formats for KPI values
const (
	FormatCurrency = "currency"
	FormatCount    = "count"
	FormatPercent  = "percent"
	FormatDays     = "days"
)

// FormatValue renders a KPI for display. A nil value renders as "0".
func FormatValue(value *float64, format string) string {
	if value == nil {
		return "0"
	}
	v := *value

	switch format {
	case FormatCurrency:
		return "$" + groupThousands(strconv.FormatFloat(v, 'f', 2, 64))
	case FormatCount:
		return groupThousands(strconv.FormatInt(int64(v), 10))
	case FormatPercent:
		return strconv.FormatFloat(v, 'f', 1, 64) + "%"
	case FormatDays:
		return strconv.FormatInt(int64(v), 10) + " days"
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

// groupThousands inserts commas into the integer part of a decimal string
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	if len(intPart) <= 3 {
		return sign + s
	}

	var b strings.Builder
	head := len(intPart) % 3
	if head > 0 {
		b.WriteString(intPart[:head])
	}
	for i := head; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
