package calc

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/shopspring/decimal"
)

const resultPlaces = 6

var (
	percentOfPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s*of\s+`)
	thousandsPattern    = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b`)
	decimalCommaPattern = regexp.MustCompile(`(\d),(\d)`)
	percentPattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	arithmeticOnly      = regexp.MustCompile(`^[0-9+\-*/%^().\s]+$`)
)

// compileOptions make every literal a float64, so results overflow to Inf
// instead of wrapping, and give % a float operand form.
var compileOptions = []expr.Option{
	expr.Patch(floatLiterals{}),
	expr.Function("fmod", func(params ...any) (any, error) {
		return math.Mod(params[0].(float64), params[1].(float64)), nil
	}, new(func(float64, float64) float64)),
	expr.Operator("%", "fmod"),
}

type floatLiterals struct{}

func (floatLiterals) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IntegerNode); ok {
		ast.Patch(node, &ast.FloatNode{Value: float64(n.Value)})
	}
}

// ExprEngine evaluates arithmetic and "<amount> <code> to <code>" phrases.
type ExprEngine struct {
	rates RateProvider
}

// NewExprEngine creates an engine. rates may be nil, in which case currency
// phrases are unsupported.
func NewExprEngine(rates RateProvider) *ExprEngine {
	return &ExprEngine{rates: rates}
}

// Calculate evaluates expression. Anything that is neither plain arithmetic
// nor a currency phrase yields ErrUnsupported.
func (e *ExprEngine) Calculate(ctx context.Context, expression string) (Result, error) {
	text := strings.TrimSpace(expression)
	if text == "" {
		return Result{}, ErrUnsupported
	}
	if m := conversionPattern.FindStringSubmatch(text); m != nil {
		return e.convert(ctx, m[1], m[2], m[3])
	}

	program := rewrite(text)
	if !arithmeticOnly.MatchString(program) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupported, text)
	}

	compiled, err := expr.Compile(program, compileOptions...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	out, err := expr.Run(compiled, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	v, err := toDecimal(out)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: formatDecimal(v, resultPlaces)}, nil
}

// rewrite maps chat notation onto expr syntax.
func rewrite(text string) string {
	s := strings.NewReplacer("×", "*", "÷", "/").Replace(text)
	s = percentOfPattern.ReplaceAllString(s, "($1/100)*")
	s = thousandsPattern.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, ",", "")
	})
	s = decimalCommaPattern.ReplaceAllString(s, "$1.$2")
	return rewritePercent(s)
}

// rewritePercent turns "15%" into "(15/100)" unless the percent sign is a
// modulo operator, i.e. directly followed by an operand.
func rewritePercent(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range percentPattern.FindAllStringSubmatchIndex(s, -1) {
		if isModulo(s[loc[1]:]) {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString("(" + s[loc[2]:loc[3]] + "/100)")
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func isModulo(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return false
	}
	c := rest[0]
	return (c >= '0' && c <= '9') || c == '(' || c == '.'
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: result is not a finite number", ErrUnsupported)
		}
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: result of type %T", ErrUnsupported, v)
	}
}
