// Package pipeline runs every inbound chat message through triage, the
// calculation engine and the redundancy filter, and decides what to reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"calcbot/internal/calc"
	"calcbot/internal/triage"
)

// Outcome labels beyond the classifier's skip reasons.
const (
	LabelRespond     = "respond"
	LabelEngineError = "engine_error"
	LabelNoResult    = "no_result"
	LabelRedundant   = "redundant"
)

const missingExpressionReply = "Please provide an expression to calculate."

// Outcome is what the pipeline decided for one message.
type Outcome struct {
	Verdict    triage.Verdict
	Expression string
	Result     string
	Forced     bool
	Redundant  bool
	Err        error
	// Reply is the text to send; empty means stay silent.
	Reply string
}

// Replied reports whether anything should be sent.
func (o Outcome) Replied() bool { return o.Reply != "" }

// Label summarises the outcome for logs, metrics and the triage log.
func (o Outcome) Label() string {
	switch {
	case !o.Verdict.Respond():
		return o.Verdict.String()
	case o.Err != nil:
		return LabelEngineError
	case o.Redundant:
		return LabelRedundant
	case o.Result == "":
		return LabelNoResult
	default:
		return LabelRespond
	}
}

// Pipeline composes sanitizer, classifier, engine and redundancy filter.
type Pipeline struct {
	engine calc.Engine
}

// New creates a pipeline around engine.
func New(engine calc.Engine) *Pipeline {
	return &Pipeline{engine: engine}
}

// Evaluate handles an ambient message nobody explicitly addressed to the bot.
// Every failure is silent: a public channel never sees a parse error for a
// message that was only speculatively triaged.
func (p *Pipeline) Evaluate(ctx context.Context, content string) Outcome {
	expression := triage.Sanitize(content)
	out := Outcome{Expression: expression, Verdict: triage.Classify(expression)}
	if !out.Verdict.Respond() {
		return out
	}

	res, err := p.engine.Calculate(ctx, expression)
	if err != nil {
		out.Err = err
		return out
	}
	result := strings.TrimSpace(res.Value)
	if result == "" || result == expression {
		return out
	}
	out.Result = result

	if triage.IsRedundant(expression, result, out.Verdict.CurrencyConversion) {
		out.Redundant = true
		return out
	}
	out.Reply = "= " + result
	return out
}

// Force handles the explicit calculate command. Triage and the redundancy
// filter are skipped because the user asked, and failures are reported back.
func (p *Pipeline) Force(ctx context.Context, expression string) Outcome {
	expression = strings.TrimSpace(expression)
	out := Outcome{Expression: expression, Forced: true}
	if expression == "" {
		out.Err = calc.ErrUnsupported
		out.Reply = missingExpressionReply
		return out
	}

	res, err := p.engine.Calculate(ctx, expression)
	result := strings.TrimSpace(res.Value)
	if err == nil && result == "" {
		err = errors.New("empty result")
	}
	if err != nil {
		out.Err = err
		out.Reply = fmt.Sprintf("Could not evaluate `%s`.", expression)
		return out
	}
	out.Result = result
	out.Reply = "= " + result
	return out
}
