package domain

import "time"

type InboundMessage struct {
	ID                string // assigned by the bus when empty
	Channel           string
	ChatID            string
	SenderID          string
	Content           string
	AuthorIsAutomated bool
	Forced            bool // explicit calculate command: skips triage
	Timestamp         time.Time
}

type OutboundMessage struct {
	Channel    string
	ChatID     string
	ReplyTo    string // InboundMessage.ID this answers
	Content    string // plain rendering, e.g. "= 2"
	Expression string // optional: the expression as the user wrote it
	Result     string // optional: engine result without the "= " prefix
	Failed     bool   // forced calculation that could not be evaluated
}

// TriageRecord is one pipeline decision, kept for tuning the heuristics.
type TriageRecord struct {
	MessageID  string
	Channel    string
	ChatID     string
	Content    string
	Expression string
	Verdict    string // "respond" or a skip reason
	Result     string
	Forced     bool
	Replied    bool
	CreatedAt  time.Time
}

// RefreshRecord describes one currency rate refresh attempt.
type RefreshRecord struct {
	Installed bool
	Entries   int
	FiatOK    bool
	CryptoOK  bool
	Duration  time.Duration
	StartedAt time.Time
}
