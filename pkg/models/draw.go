package models

import (
	"errors"
	"time"
)

// ErrAssignmentsExist reports that a draw already has generated assignments.
// The persistence layer maps its uniqueness violation to this sentinel so a
// losing concurrent writer fails cleanly instead of double-generating.
var ErrAssignmentsExist = errors.New("assignments already generated for draw")

// Draw lifecycle states. A draw moves pending -> completed exactly once;
// the transition is guarded by the assignments table's uniqueness constraint,
// not by in-process locking.
const (
	DrawStatusPending   = "pending"
	DrawStatusCompleted = "completed"
	DrawStatusFailed    = "failed"
)

// Member is a group member eligible to give and receive in a draw.
type Member struct {
	ID       string    `json:"id"`
	GroupID  string    `json:"groupId"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Active   bool      `json:"active"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Exclusion is a manual "giver may not gift receiver" rule. When Mutual is
// set at creation time the reverse pair is materialized as a second directed
// constraint; mutuality is never stored as a single symmetric edge.
type Exclusion struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"groupId"`
	GiverID    string    `json:"giverId"`
	ReceiverID string    `json:"receiverId"`
	Mutual     bool      `json:"mutual"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Draw is a single gift-assignment round for a group.
type Draw struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"groupId"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Seed        string     `json:"seed,omitempty"`
	Lookback    int        `json:"lookback"` // completed draws to mine for historical exclusions
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Assignment is one solved giver->receiver pair for a draw. All assignments
// produced by a single solve share the same CreatedAt.
type Assignment struct {
	ID         string    `json:"id"`
	DrawID     string    `json:"drawId"`
	GiverID    string    `json:"giverId"`
	ReceiverID string    `json:"receiverId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Group is a named circle of members that runs draws together.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
