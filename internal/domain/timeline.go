package domain

import "time"

// TimelineStage is one step of the derived handover timeline. Stages are a
// read-only projection over a sale and its transfer record; they are never
// persisted.
type TimelineStage struct {
	Key         string        `json:"key"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Actions     []StageAction `json:"actions,omitempty"`
}

// StageAction is a role-specific suggested next step rendered on a stage.
type StageAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Stage status constants.
const (
	StageStatusCompleted = "completed"
	StageStatusActive    = "active"
	StageStatusUpcoming  = "upcoming"
	StageStatusSkipped   = "skipped"
	StageStatusFailed    = "failed"
)

// Timeline requester roles.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)
