// Package statusmachine defines the project status enum and the transition
// rules that guard writes to a project's current_status column.
package statusmachine

import "fmt"

// Status is a project lifecycle state.
type Status string

const (
	Backlog    Status = "BACKLOG"
	Planned    Status = "PLANNED"
	InProgress Status = "IN_PROGRESS"
	Blocked    Status = "BLOCKED"
	Done       Status = "DONE"
	Archived   Status = "ARCHIVED"
)

// All returns every known status in a stable order.
func All() []Status {
	return []Status{Backlog, Planned, InProgress, Blocked, Done, Archived}
}

// ParseError is returned by Parse for an unrecognized status string.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid project status: %q", e.Value)
}

// Parse converts a wire/DB string into a Status.
func Parse(s string) (Status, error) {
	switch Status(s) {
	case Backlog, Planned, InProgress, Blocked, Done, Archived:
		return Status(s), nil
	default:
		return "", &ParseError{Value: s}
	}
}

// transitionKey identifies a (from, to) pair. A nil from represents project
// creation, encoded here as the empty string since Status never stringifies
// to "".
type transitionKey struct {
	from Status
	to   Status
}

var allowedTransitions = map[transitionKey]bool{
	{"", Backlog}:               true, // create
	{Backlog, Planned}:          true,
	{Backlog, Archived}:         true,
	{Planned, InProgress}:       true,
	{Planned, Archived}:         true,
	{InProgress, Blocked}:       true,
	{InProgress, Done}:          true,
	{Blocked, InProgress}:       true,
	{Done, Archived}:            true,
	{Done, InProgress}:          true, // rework
	{Archived, Backlog}:         true, // unarchive
}

var noteRequiredTransitions = map[transitionKey]bool{
	{Archived, Backlog}: true, // unarchive
	{Done, InProgress}:  true, // rework
	{Backlog, Archived}: true, // abandon
	{Planned, Archived}: true, // cancel
}

// CanTransition reports whether moving from (the zero value means project
// creation) to `to` is a legal state transition.
func CanTransition(from *Status, to Status) bool {
	key := transitionKey{to: to}
	if from != nil {
		key.from = *from
	}
	return allowedTransitions[key]
}

// NoteRequired reports whether this transition must carry a non-empty note
// explaining the change, as recorded in status_history.
func NoteRequired(from *Status, to Status) bool {
	key := transitionKey{to: to}
	if from != nil {
		key.from = *from
	}
	return noteRequiredTransitions[key]
}
