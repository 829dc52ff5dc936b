package audit

import "time"

// Entry is one row of the audit trail, joined with the acting user's
// name when the actor still exists.
type Entry struct {
	ID         int64
	ActorID    int64
	ActorName  string
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	OccurredAt time.Time
}

// Filters narrows the audit timeline.
type Filters struct {
	Actor   string
	Action  string
	Entity  string
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}
