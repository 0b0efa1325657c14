// Package triage decides whether a free-text chat message is a calculation
// the author wants answered.
//
// The flow is Sanitize, then Classify, then (after the engine ran) IsRedundant.
// Every function here is pure and never blocks, so it is safe to call from any
// goroutine on the message path.
package triage
