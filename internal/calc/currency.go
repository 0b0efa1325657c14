package calc

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	divisionPlaces = 18
	fiatPlaces     = 2
	smallPlaces    = 8
)

var (
	conversionPattern = regexp.MustCompile(`(?i)^\s*([-+]?(?:\d{1,3}(?:[.,]\d{3})+|\d+)(?:[.,]\d+)?)\s+([a-z]{3})\s+(?:to|in)\s+([a-z]{3})\s*$`)
	commaGroupPattern = regexp.MustCompile(`^[-+]?\d{1,3}(?:,\d{3})+$`)
)

func (e *ExprEngine) convert(ctx context.Context, rawAmount, from, to string) (Result, error) {
	if e.rates == nil {
		return Result{}, fmt.Errorf("%w: no currency rates configured", ErrUnsupported)
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return Result{}, err
	}
	from, to = strings.ToUpper(from), strings.ToUpper(to)

	fromRate, err := e.rate(ctx, from)
	if err != nil {
		return Result{}, err
	}
	toRate, err := e.rate(ctx, to)
	if err != nil {
		return Result{}, err
	}
	if fromRate.IsZero() {
		return Result{}, fmt.Errorf("%w: zero rate for %s", ErrUnknownCurrency, from)
	}

	value := amount.DivRound(fromRate, divisionPlaces).Mul(toRate)
	places := int32(fiatPlaces)
	if value.Abs().LessThan(decimal.NewFromInt(1)) {
		places = smallPlaces
	}
	return Result{Value: formatDecimal(value, places) + " " + to}, nil
}

// rate prefers the non-blocking lookup and only falls back to a lazy refresh
// on a miss.
func (e *ExprEngine) rate(ctx context.Context, code string) (decimal.Decimal, error) {
	if r, ok := e.rates.RateFor(code); ok {
		return r, nil
	}
	if r, ok := e.rates.FetchRateInBackground(ctx, code); ok {
		return r, nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
}

// parseAmount accepts "1234.5", "1,234.5", "1.234,5", "1,234" and "2,5".
func parseAmount(s string) (decimal.Decimal, error) {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if commaGroupPattern.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q", ErrUnsupported, s)
	}
	return d, nil
}
