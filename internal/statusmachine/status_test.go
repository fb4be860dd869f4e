package statusmachine

import "testing"

func statusPtr(s Status) *Status { return &s }

func TestCanTransitionCreate(t *testing.T) {
	if !CanTransition(nil, Backlog) {
		t.Error("expected creation into BACKLOG to be allowed")
	}
	if CanTransition(nil, Done) {
		t.Error("creation should only be allowed into BACKLOG")
	}
}

func TestCanTransitionNormalFlow(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{Backlog, Planned},
		{Planned, InProgress},
		{InProgress, Done},
		{InProgress, Blocked},
		{Blocked, InProgress},
	}
	for _, c := range cases {
		if !CanTransition(statusPtr(c.from), c.to) {
			t.Errorf("expected %s -> %s to be allowed", c.from, c.to)
		}
	}
}

func TestInvalidTransition(t *testing.T) {
	if CanTransition(statusPtr(Backlog), Done) {
		t.Error("BACKLOG -> DONE should not be allowed")
	}
	if CanTransition(statusPtr(Done), Blocked) {
		t.Error("DONE -> BLOCKED should not be allowed")
	}
}

func TestReworkAndUnarchive(t *testing.T) {
	if !CanTransition(statusPtr(Done), InProgress) {
		t.Error("DONE -> IN_PROGRESS (rework) should be allowed")
	}
	if !CanTransition(statusPtr(Archived), Backlog) {
		t.Error("ARCHIVED -> BACKLOG (unarchive) should be allowed")
	}
}

func TestNoteRequired(t *testing.T) {
	requiresNote := []struct {
		from Status
		to   Status
	}{
		{Archived, Backlog},
		{Done, InProgress},
		{Backlog, Archived},
		{Planned, Archived},
	}
	for _, c := range requiresNote {
		if !NoteRequired(statusPtr(c.from), c.to) {
			t.Errorf("expected %s -> %s to require a note", c.from, c.to)
		}
	}

	if NoteRequired(statusPtr(Backlog), Planned) {
		t.Error("BACKLOG -> PLANNED should not require a note")
	}
	if NoteRequired(nil, Backlog) {
		t.Error("creation should not require a note")
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("IN_PROGRESS")
	if err != nil || s != InProgress {
		t.Fatalf("Parse(IN_PROGRESS) = %v, %v", s, err)
	}

	if _, err := Parse("NOT_A_STATUS"); err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestAllContainsEverySatus(t *testing.T) {
	if len(All()) != 6 {
		t.Errorf("All() len = %d, want 6", len(All()))
	}
}
