package rates

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// inversePrecision is the number of decimal places kept when turning a USD
// price into a per-USD rate.
const inversePrecision = 18

// Table is an immutable snapshot of rates, in units of each code per 1 USD.
// A new Table replaces the old one wholesale; it is never modified in place.
type Table struct {
	rates     map[string]decimal.Decimal
	FetchedAt time.Time
}

// Rate looks up a code. USD is always 1.
func (t *Table) Rate(code string) (decimal.Decimal, bool) {
	code = normalizeCode(code)
	if code == referenceCurrency {
		return decimal.NewFromInt(1), true
	}
	if t == nil {
		return decimal.Decimal{}, false
	}
	r, ok := t.rates[code]
	return r, ok
}

// Len returns the number of codes including USD.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rates)
}

// Codes returns the codes in the table, sorted.
func (t *Table) Codes() []string {
	if t == nil {
		return nil
	}
	codes := make([]string, 0, len(t.rates))
	for c := range t.rates {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// merge folds both sources into a fresh rate map starting from {USD: 1}.
// Fiat quotes are already per USD; crypto quotes are USD prices and get
// inverted, dropping non-positive prices first. Either input may be nil.
func merge(fiat, crypto map[string]float64) map[string]decimal.Decimal {
	one := decimal.NewFromInt(1)
	out := map[string]decimal.Decimal{referenceCurrency: one}

	for code, v := range fiat {
		code = normalizeCode(code)
		if code == referenceCurrency {
			continue
		}
		out[code] = decimal.NewFromFloat(v)
	}
	for code, price := range crypto {
		code = normalizeCode(code)
		if code == referenceCurrency || price <= 0 {
			continue
		}
		out[code] = one.DivRound(decimal.NewFromFloat(price), inversePrecision)
	}
	return out
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
