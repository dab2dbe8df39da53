package model

import (
	"time"
)

// Intent is the citizen's complaint category.
type Intent string

const (
	IntentWaterOutage       Intent = "water_outage"
	IntentElectricityOutage Intent = "electricity_outage"
	IntentGarbage           Intent = "garbage"
	IntentRoad              Intent = "road"
	IntentSewage            Intent = "sewage"
	IntentStreetlight       Intent = "streetlight"
	IntentEmergency         Intent = "emergency"
	IntentOther             Intent = "other"
)

var validIntents = map[Intent]bool{
	IntentWaterOutage: true, IntentElectricityOutage: true, IntentGarbage: true,
	IntentRoad: true, IntentSewage: true, IntentStreetlight: true,
	IntentEmergency: true, IntentOther: true,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool { return validIntents[i] }

// Status is the mutable handling state of a submission. It is never hashed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"

	// StatusWithdrawn is reported for soft-deleted submissions; it is never stored.
	StatusWithdrawn Status = "withdrawn"
)

// Valid reports whether s may be stored.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Priority orders submissions in the operator queue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Submission is one citizen complaint as held by the intake store.
type Submission struct {
	ID        int64      `json:"id"                   db:"id"`
	Intent    Intent     `json:"intent"               db:"intent"`
	Text      string     `json:"text"                 db:"text"`
	Status    Status     `json:"status"               db:"status"`
	Priority  Priority   `json:"priority"             db:"priority"`
	Language  string     `json:"language,omitempty"   db:"language"`
	Latitude  *float64   `json:"latitude,omitempty"   db:"latitude"`
	Longitude *float64   `json:"longitude,omitempty"  db:"longitude"`
	CreatedAt time.Time  `json:"created_at"           db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"           db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// SubmitRequest is the kiosk payload for filing a complaint.
type SubmitRequest struct {
	Intent    Intent   `json:"intent"    binding:"required"`
	Text      string   `json:"text"`
	Priority  Priority `json:"priority"`
	Language  string   `json:"language"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// StatusUpdateRequest is the operator payload for moving a submission along.
type StatusUpdateRequest struct {
	Status Status `json:"status" binding:"required"`
}

// ErrValidation is returned by service methods when the caller supplies invalid
// input. Handlers map it to HTTP 400.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }
