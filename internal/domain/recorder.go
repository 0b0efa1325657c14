package domain

import "context"

// TriageRecorder persists pipeline decisions.
type TriageRecorder interface {
	RecordTriage(ctx context.Context, rec TriageRecord) error
}

// RefreshRecorder persists rate refresh attempts.
type RefreshRecorder interface {
	RecordRefresh(ctx context.Context, rec RefreshRecord) error
}
