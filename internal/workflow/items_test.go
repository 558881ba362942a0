package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/exitticket/exitticket/internal/model"
)

func TestItemEditLifecycle(t *testing.T) {
	w, _, _ := reviewing(t, 3)

	for i, st := range w.ItemStates() {
		if st.Mode != ModeViewing {
			t.Fatalf("item %d starts in %q, want viewing", i, st.Mode)
		}
	}

	st, err := w.BeginEdit(1)
	if err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	if !st.Editing() || st.Pending == nil {
		t.Fatalf("expected editing with pending fields, got %+v", st)
	}
	if st.Pending.Text != "auto question 1" {
		t.Errorf("pending fields not seeded from the draft: %q", st.Pending.Text)
	}

	pending := *st.Pending
	pending.Text = "Edited text"
	if _, err := w.StageEdit(1, pending); err != nil {
		t.Fatalf("StageEdit: %v", err)
	}

	// Staged changes are not visible in the draft until saved.
	d, _ := w.Draft()
	if d.Questions[1].Text != "auto question 1" {
		t.Error("staged edit leaked into the draft")
	}

	q, err := w.SaveEdit(context.Background(), 1)
	if err != nil {
		t.Fatalf("SaveEdit: %v", err)
	}
	if q.Text != "Edited text" {
		t.Errorf("saved question text = %q", q.Text)
	}
	if w.ItemStates()[1].Editing() {
		t.Error("item should return to viewing after save")
	}
	d, _ = w.Draft()
	if d.Questions[1].Text != "Edited text" {
		t.Error("saved edit not committed")
	}
}

func TestCancelEdit(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	st, _ := w.BeginEdit(0)
	pending := *st.Pending
	pending.Text = "discard me"
	if _, err := w.StageEdit(0, pending); err != nil {
		t.Fatalf("StageEdit: %v", err)
	}
	if err := w.CancelEdit(0); err != nil {
		t.Fatalf("CancelEdit: %v", err)
	}
	if w.ItemStates()[0].Editing() {
		t.Error("item should be viewing after cancel")
	}
	d, _ := w.Draft()
	if d.Questions[0].Text == "discard me" {
		t.Error("cancelled edit reached the draft")
	}
}

func TestEditStatesAreIndependent(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	if _, err := w.BeginEdit(0); err != nil {
		t.Fatal(err)
	}
	if _, err := w.BeginEdit(2); err != nil {
		t.Fatal(err)
	}
	states := w.ItemStates()
	if !states[0].Editing() || states[1].Editing() || !states[2].Editing() {
		t.Errorf("unexpected states %+v", states)
	}
}

func TestInvalidSaveKeepsEditing(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	st, _ := w.BeginEdit(0)
	pending := *st.Pending
	pending.CorrectAnswer = model.OptionKey("Z")
	if _, err := w.StageEdit(0, pending); err != nil {
		t.Fatal(err)
	}
	var ve *ValidationError
	if _, err := w.SaveEdit(context.Background(), 0); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !w.ItemStates()[0].Editing() {
		t.Error("rejected save should keep the item in edit mode")
	}
}

func TestStageOrSaveWithoutEditMode(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	if _, err := w.StageEdit(0, QuestionFields{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StageEdit: expected ErrInvalidState, got %v", err)
	}
	if _, err := w.SaveEdit(context.Background(), 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SaveEdit: expected ErrInvalidState, got %v", err)
	}
	if _, err := w.BeginEdit(7); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("BeginEdit: expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestItemStatesReturnsCopy(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	if _, err := w.BeginEdit(0); err != nil {
		t.Fatal(err)
	}
	states := w.ItemStates()
	states[0].Pending.Text = "mutated outside"
	if w.ItemStates()[0].Pending.Text == "mutated outside" {
		t.Error("ItemStates leaks internal pending fields")
	}
}
