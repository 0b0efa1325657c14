package calc

import (
	"strings"

	"github.com/shopspring/decimal"
)

// formatDecimal rounds to places, drops trailing zeros and groups the integer
// part in thousands: 2077 -> "2,077", 0.1+0.2 -> "0.3".
func formatDecimal(d decimal.Decimal, places int32) string {
	s := d.Round(places).String()

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
