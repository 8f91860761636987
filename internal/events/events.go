package events

import (
	"context"
	"time"
)

// RecordSaved is published after a collection round was persisted. The
// workflow that moves rounds to DONE or ERROR consumes it.
type RecordSaved struct {
	RecordID     string    `json:"record_id"`
	BaseRecordID string    `json:"base_record_id"`
	RosterID     string    `json:"roster_id"`
	RespondentID string    `json:"respondent_id"`
	Degree       int       `json:"degree"`
	Status       string    `json:"status"`
	WarningCount int       `json:"warning_count"`
	SavedBy      string    `json:"saved_by,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Publisher delivers domain events.
type Publisher interface {
	PublishRecordSaved(ctx context.Context, ev RecordSaved) error
	Close() error
}

// Noop drops every event. Used when events are disabled.
type Noop struct{}

func (Noop) PublishRecordSaved(context.Context, RecordSaved) error { return nil }
func (Noop) Close() error                                          { return nil }
