package triage

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	numberPattern      = regexp.MustCompile(`[-+]?\d*[.,]?\d+`)
	wholeNumberPattern = regexp.MustCompile(`^[-+]?\d*[.,]?\d+$`)
	separatorPattern   = regexp.MustCompile(`[.,+-]`)
)

// IsRedundant reports whether result only echoes the expression back, which
// happens when the engine "succeeds" without doing any real work. It is only
// meaningful for expressions that passed Classify and produced a non-empty
// result different from the expression itself.
//
// All checks apply to operator-free expressions only: with an operator present
// the engine did transform something.
func IsRedundant(expression, result string, currencyConversion bool) bool {
	if HasOperator(expression) {
		return false
	}
	return isNumericEcho(expression, result) ||
		isDecimalShift(expression, result) ||
		(!currencyConversion && isGibberish(expression))
}

// "1 klavye" -> "1", "31$" -> "31".
func isNumericEcho(expression, result string) bool {
	in, ok := firstNumericValue(expression)
	if !ok {
		return false
	}
	out, ok := firstNumericValue(result)
	return ok && in == out
}

// "9294" -> "9.294": same digits, the separator just moved.
func isDecimalShift(expression, result string) bool {
	out := numberPattern.FindString(result)
	if out == "" {
		return false
	}
	want := digitsOnly(out)
	for _, in := range numberPattern.FindAllString(expression, -1) {
		if digitsOnly(in) == want {
			return true
		}
	}
	return false
}

// "6 y 93 j 5272": several numbers with short letter noise between them,
// from which the engine picks one at random.
func isGibberish(expression string) bool {
	if len(numberPattern.FindAllString(expression, -1)) < 2 {
		return false
	}
	for _, tok := range strings.Fields(expression) {
		if wholeNumberPattern.MatchString(tok) {
			continue
		}
		if utf8.RuneCountInString(tok) <= 3 && isAllLetters(tok) {
			return true
		}
	}
	return false
}

func firstNumericValue(text string) (float64, bool) {
	lit := numberPattern.FindString(text)
	if lit == "" {
		return 0, false
	}
	if strings.Contains(lit, ",") && !strings.Contains(lit, ".") {
		lit = strings.ReplaceAll(lit, ",", ".")
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func digitsOnly(lit string) string {
	return separatorPattern.ReplaceAllString(lit, "")
}

func isAllLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
