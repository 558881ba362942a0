package workflow

import (
	"context"
	"fmt"

	"github.com/exitticket/exitticket/internal/model"
)

// ItemMode is the edit mode of one draft question.
type ItemMode string

const (
	ModeViewing ItemMode = "viewing"
	ModeEditing ItemMode = "editing"
)

// ItemState is Viewing, or Editing with the operator's pending fields.
// Pending changes reach the draft only through SaveEdit.
type ItemState struct {
	Mode    ItemMode        `json:"mode"`
	Pending *QuestionFields `json:"pending,omitempty"`
}

// Editing reports whether the item is in edit mode.
func (s ItemState) Editing() bool {
	return s.Mode == ModeEditing
}

// QuestionFields are the operator-editable fields of a question.
type QuestionFields struct {
	Text          string          `json:"question"`
	Options       model.Options   `json:"options"`
	CorrectAnswer model.OptionKey `json:"correct_answer"`
	Explanation   string          `json:"explanation"`
	Topic         string          `json:"topic"`
	Subtopic      string          `json:"subtopic"`
}

// FieldsOf extracts the editable fields of q.
func FieldsOf(q model.Question) QuestionFields {
	return QuestionFields{
		Text:          q.Text,
		Options:       q.Options.Clone(),
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Topic:         q.Topic,
		Subtopic:      q.Subtopic,
	}
}

func (f QuestionFields) question(subject string) model.Question {
	return model.Question{
		Text:          f.Text,
		Options:       f.Options.Clone(),
		CorrectAnswer: f.CorrectAnswer,
		Explanation:   f.Explanation,
		Topic:         f.Topic,
		Subtopic:      f.Subtopic,
		Subject:       subject,
	}
}

func (f QuestionFields) clone() *QuestionFields {
	f.Options = f.Options.Clone()
	return &f
}

// ItemStates returns a copy of the per-question edit states.
func (w *Workflow) ItemStates() []ItemState {
	out := make([]ItemState, len(w.items))
	for i, s := range w.items {
		if s.Mode == "" {
			s.Mode = ModeViewing
		}
		if s.Pending != nil {
			s.Pending = s.Pending.clone()
		}
		out[i] = s
	}
	return out
}

// BeginEdit puts the question at index into edit mode, seeded with its
// current fields. Calling it on an item already being edited keeps the
// pending fields.
func (w *Workflow) BeginEdit(index int) (ItemState, error) {
	if err := w.checkIndex("begin edit", index); err != nil {
		return ItemState{}, err
	}
	if !w.items[index].Editing() {
		w.items[index] = ItemState{Mode: ModeEditing, Pending: FieldsOf(w.draft.Questions[index]).clone()}
	}
	return w.ItemStates()[index], nil
}

// StageEdit replaces the pending fields of an item in edit mode.
func (w *Workflow) StageEdit(index int, fields QuestionFields) (ItemState, error) {
	if err := w.checkIndex("stage edit", index); err != nil {
		return ItemState{}, err
	}
	if !w.items[index].Editing() {
		return ItemState{}, fmt.Errorf("stage edit of question %d not in edit mode: %w", index, ErrInvalidState)
	}
	w.items[index].Pending = fields.clone()
	return w.ItemStates()[index], nil
}

// SaveEdit commits the pending fields of an item and returns it to Viewing.
// A rejected edit keeps the item in edit mode.
func (w *Workflow) SaveEdit(ctx context.Context, index int) (model.Question, error) {
	if err := w.checkIndex("save edit", index); err != nil {
		return model.Question{}, err
	}
	st := w.items[index]
	if !st.Editing() || st.Pending == nil {
		return model.Question{}, fmt.Errorf("save edit of question %d not in edit mode: %w", index, ErrInvalidState)
	}
	return w.EditQuestion(ctx, index, *st.Pending)
}

// CancelEdit drops the pending fields of an item.
func (w *Workflow) CancelEdit(index int) error {
	if err := w.checkIndex("cancel edit", index); err != nil {
		return err
	}
	w.items[index] = ItemState{Mode: ModeViewing}
	return nil
}
