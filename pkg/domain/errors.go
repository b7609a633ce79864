package domain

import "fmt"

// ValidationError reports a missing or invalid required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PermissionError reports a failed capability check. The target record is
// never read-modify-written when this is returned.
type PermissionError struct {
	ActorID    string
	Capability string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("actor %s lacks %s", e.ActorID, e.Capability)
}

// InvalidTransitionError reports a status change outside the transition table.
type InvalidTransitionError struct {
	From   Status
	Action string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from status %s", e.Action, e.From)
}

// EvidenceRequiredError reports a conclude attempt without qualifying
// evidence: zero evidence records and no non-empty reference link.
type EvidenceRequiredError struct {
	ExperimentID string
}

func (e EvidenceRequiredError) Error() string {
	return fmt.Sprintf("experiment %s has no evidence or reference link", e.ExperimentID)
}

// NotFoundError reports an absent record reference.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError reports an optimistic-concurrency version mismatch on an
// experiment update.
type ConflictError struct {
	Entity   EntityType
	ID       string
	Expected int
	Actual   int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s version %d is stale (current %d)", e.Entity, e.ID, e.Expected, e.Actual)
}
