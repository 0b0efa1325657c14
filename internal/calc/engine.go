// Package calc is the calculation engine consumed by the pipeline: it turns
// an expression into a result string. Arithmetic is delegated to expr-lang;
// currency phrases are converted through a RateProvider.
package calc

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupported means the engine could not make sense of the expression.
	ErrUnsupported = errors.New("expression not supported")
	// ErrUnknownCurrency means a currency code has no rate, even after a refresh.
	ErrUnknownCurrency = errors.New("unknown currency")
)

// Result is the engine's answer as display text.
type Result struct {
	Value string
}

// Engine evaluates one expression.
type Engine interface {
	Calculate(ctx context.Context, expression string) (Result, error)
}

// RateProvider supplies rates in units of a code per 1 USD. RateFor must not
// block; FetchRateInBackground may refresh the rates once on a miss.
type RateProvider interface {
	RateFor(code string) (decimal.Decimal, bool)
	FetchRateInBackground(ctx context.Context, code string) (decimal.Decimal, bool)
}
