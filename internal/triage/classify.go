package triage

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SkipReason explains why a message gets no reply. The zero value means the
// message should be answered.
type SkipReason string

const (
	ReasonEmpty                SkipReason = "empty"
	ReasonBareNumberNoOperator SkipReason = "bare_number_no_operator"
	ReasonSentenceLike         SkipReason = "sentence_like"
	ReasonTrailingOperator     SkipReason = "trailing_operator"
	ReasonPercentWithoutMath   SkipReason = "percent_without_math"
)

// Verdict is the outcome of Classify.
type Verdict struct {
	Reason SkipReason
	// CurrencyConversion is set for "<amount> <code> to|in <code>" phrases.
	// The redundancy filter needs it later on.
	CurrencyConversion bool
}

// Respond reports whether the message should be sent to the engine.
func (v Verdict) Respond() bool { return v.Reason == "" }

// String returns "respond" or the skip reason.
func (v Verdict) String() string {
	if v.Respond() {
		return "respond"
	}
	return string(v.Reason)
}

const operatorRunes = "+-*/%^×÷"

var (
	currencyPhrasePattern = regexp.MustCompile(`(?i)^\s*[-+]?(?:\d{1,3}(?:[.,]\d{3})+|\d+)(?:[.,]\d+)?\s+[a-z]{3}\s+(?:to|in)\s+[a-z]{3}\s*$`)
	simpleMathPattern     = regexp.MustCompile(`^[0-9+\-*/%^×÷().\s]+$`)
	operatorPattern       = regexp.MustCompile(`[+\-*/%^×÷]`)
	// Percent is left out on purpose: "100% test" has a percent sign but no math.
	mathOperatorPattern = regexp.MustCompile(`[+\-*/×÷^]`)
)

// features are computed once per message and shared by every gate.
type features struct {
	text               string
	currencyConversion bool
	simpleMath         bool
	alphaWords         []string
}

func extractFeatures(sanitized string) *features {
	text := strings.TrimSpace(sanitized)
	f := &features{
		text: text,
		// An unfinished phrase like "1 usd to try+" is still a currency phrase,
		// so it gets reported by the trailing-operator gate.
		currencyConversion: currencyPhrasePattern.MatchString(strings.TrimRight(text, operatorRunes)),
		simpleMath:         simpleMathPattern.MatchString(text),
	}
	for _, tok := range strings.Fields(text) {
		if strings.IndexFunc(tok, unicode.IsLetter) >= 0 {
			f.alphaWords = append(f.alphaWords, tok)
		}
	}
	return f
}

// gate returns a non-empty reason to stop the pipeline.
type gate func(f *features) SkipReason

// gates run in order; the first reason wins. Leading prose must be rejected
// before sentenceGate, and percentGate relies on sentenceGate having run.
var gates = []gate{
	emptyGate,
	bareNumberGate,
	leadingLetterGate,
	sentenceGate,
	percentGate,
	trailingOperatorGate,
}

// Classify decides whether a sanitized message is a calculation worth
// answering in a public channel. It is deterministic and side-effect free.
func Classify(sanitized string) Verdict {
	f := extractFeatures(sanitized)
	v := Verdict{CurrencyConversion: f.currencyConversion}
	for _, g := range gates {
		if reason := g(f); reason != "" {
			v.Reason = reason
			return v
		}
	}
	return v
}

func emptyGate(f *features) SkipReason {
	if f.text == "" {
		return ReasonEmpty
	}
	return ""
}

// A standalone number like "2077" only gets reformatted by the engine.
func bareNumberGate(f *features) SkipReason {
	if f.simpleMath && !operatorPattern.MatchString(f.text) {
		return ReasonBareNumberNoOperator
	}
	return ""
}

func leadingLetterGate(f *features) SkipReason {
	if f.simpleMath {
		return ""
	}
	first, _ := utf8.DecodeRuneInString(f.text)
	if unicode.IsLetter(first) {
		return ReasonSentenceLike
	}
	return ""
}

// Sentences pile up real words: two long ones or three of any length.
func sentenceGate(f *features) SkipReason {
	if f.simpleMath || f.currencyConversion {
		return ""
	}
	long := 0
	for _, w := range f.alphaWords {
		if utf8.RuneCountInString(w) >= 4 {
			long++
		}
	}
	if long >= 2 || len(f.alphaWords) >= 3 {
		return ReasonSentenceLike
	}
	return ""
}

func percentGate(f *features) SkipReason {
	if f.currencyConversion {
		return ""
	}
	if strings.Contains(f.text, "%") && !mathOperatorPattern.MatchString(f.text) && len(f.alphaWords) > 0 {
		return ReasonPercentWithoutMath
	}
	return ""
}

// "10+" is an unfinished thought.
func trailingOperatorGate(f *features) SkipReason {
	last, _ := utf8.DecodeLastRuneInString(f.text)
	if strings.ContainsRune(operatorRunes, last) {
		return ReasonTrailingOperator
	}
	return ""
}

// HasOperator reports whether text contains any arithmetic operator,
// percent included.
func HasOperator(text string) bool {
	return operatorPattern.MatchString(text)
}
