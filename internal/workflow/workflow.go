// Package workflow owns the exit-ticket authoring lifecycle:
// Input -> Reviewing -> Published (which immediately resets to Input).
//
// A Workflow is owned by a single authoring session and is not safe for
// concurrent use.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/exitticket/exitticket/internal/llm/prompts"
	"github.com/exitticket/exitticket/internal/model"
)

const (
	// MinQuestions is the smallest count a draft may request.
	MinQuestions = 3
	// MaxQuestions is the largest count a draft may request.
	MaxQuestions = 10

	// SourceAI marks questions logged straight from the generator.
	SourceAI = "ai"
	// SourceEdited marks questions logged after an operator edit.
	SourceEdited = "edited"
)

// Generator produces candidate questions.
type Generator interface {
	Generate(ctx context.Context, req model.GenerateRequest) ([]model.Question, error)
}

// Repository is the part of the ticket store the workflow writes to.
type Repository interface {
	SaveQuestion(ctx context.Context, q model.Question, source string) error
	CreateExitTicket(ctx context.Context, questions []model.Question, teacherName, subject, topics string) (model.ExitTicket, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status model.TicketStatus) (bool, error)
}

// State is the authoring state.
type State string

const (
	StateInput     State = "input"
	StateReviewing State = "reviewing"
	StatePublished State = "published"
)

// DraftRequest is the operator input that starts a draft.
type DraftRequest struct {
	Topics  string `json:"topics"`
	Subject string `json:"subject"`
	Preset  string `json:"preset"`
	Count   int    `json:"count"`
}

// Workflow is the authoring state machine for one session.
type Workflow struct {
	gen   Generator
	repo  Repository
	state State
	draft *model.Draft
	items []ItemState
}

// New creates a workflow in the Input state.
func New(gen Generator, repo Repository) *Workflow {
	return &Workflow{gen: gen, repo: repo, state: StateInput}
}

// State returns the current state.
func (w *Workflow) State() State {
	return w.state
}

// Draft returns a copy of the active draft, or false in the Input state.
func (w *Workflow) Draft() (model.Draft, bool) {
	if w.draft == nil {
		return model.Draft{}, false
	}
	return w.draft.Clone(), true
}

// RequestDraft generates a new draft and moves Input -> Reviewing.
// The generator must return at least req.Count questions; any surplus is kept.
func (w *Workflow) RequestDraft(ctx context.Context, req DraftRequest) (model.Draft, error) {
	if w.state != StateInput {
		return model.Draft{}, fmt.Errorf("request draft in %s: %w", w.state, ErrInvalidState)
	}
	if strings.TrimSpace(req.Topics) == "" {
		return model.Draft{}, &ValidationError{Field: "topics", Reason: "lecture topics are required"}
	}
	if req.Count < MinQuestions || req.Count > MaxQuestions {
		return model.Draft{}, &ValidationError{
			Field:  "count",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinQuestions, MaxQuestions, req.Count),
		}
	}
	preset, ok := prompts.LookupPreset(req.Preset)
	if !ok {
		return model.Draft{}, &ValidationError{Field: "preset", Reason: fmt.Sprintf("unknown preset %q", req.Preset)}
	}

	draft := model.Draft{
		Subject:        strings.TrimSpace(req.Subject),
		Topics:         req.Topics,
		Preset:         preset.Key,
		Instructions:   preset.Instruction,
		RequestedCount: req.Count,
	}
	questions, err := w.generate(ctx, "request draft", draft, req.Count)
	if err != nil {
		return model.Draft{}, err
	}

	draft.Questions = questions
	w.draft = &draft
	w.items = make([]ItemState, len(questions))
	w.state = StateReviewing
	slog.Info("draft ready for review",
		"subject", draft.Subject,
		"requested", req.Count,
		"generated", len(questions),
		"preset", draft.Preset,
	)
	return draft.Clone(), nil
}

// EditQuestion replaces the question at index with the supplied fields.
// Only the correct answer is checked against the supplied option keys.
func (w *Workflow) EditQuestion(ctx context.Context, index int, fields QuestionFields) (model.Question, error) {
	if err := w.checkIndex("edit question", index); err != nil {
		return model.Question{}, err
	}
	q := fields.question(w.draft.Subject)
	if !q.HasOption(q.CorrectAnswer) {
		return model.Question{}, &ValidationError{
			Field:  "correct_answer",
			Reason: fmt.Sprintf("%q is not one of the supplied options", q.CorrectAnswer),
		}
	}

	w.draft.Questions[index] = q
	w.items[index] = ItemState{Mode: ModeViewing}
	w.logQuestion(ctx, q, SourceEdited)
	slog.Debug("draft question edited", "index", index)
	return q.Clone(), nil
}

// RegenerateQuestion asks the generator for one replacement question.
// On failure the draft is left untouched.
func (w *Workflow) RegenerateQuestion(ctx context.Context, index int) (model.Question, error) {
	if err := w.checkIndex("regenerate question", index); err != nil {
		return model.Question{}, err
	}
	questions, err := w.generate(ctx, "regenerate question", *w.draft, 1)
	if err != nil {
		return model.Question{}, err
	}

	w.draft.Questions[index] = questions[0]
	w.items[index] = ItemState{Mode: ModeViewing}
	slog.Info("draft question regenerated", "index", index)
	return questions[0].Clone(), nil
}

// RegenerateAll replaces the whole draft with a fresh generation using the
// stored parameters. The workflow stays in Reviewing either way.
func (w *Workflow) RegenerateAll(ctx context.Context) (model.Draft, error) {
	if w.state != StateReviewing {
		return model.Draft{}, fmt.Errorf("regenerate all in %s: %w", w.state, ErrInvalidState)
	}
	questions, err := w.generate(ctx, "regenerate all", *w.draft, w.draft.RequestedCount)
	if err != nil {
		return model.Draft{}, err
	}

	w.draft.Questions = questions
	w.items = make([]ItemState, len(questions))
	slog.Info("draft regenerated", "requested", w.draft.RequestedCount, "generated", len(questions))
	return w.draft.Clone(), nil
}

// Publish snapshots the draft into a new exit ticket. On success the workflow
// passes through Published back to Input; on failure nothing changes.
func (w *Workflow) Publish(ctx context.Context, teacherName string) (model.ExitTicket, error) {
	if w.state != StateReviewing {
		return model.ExitTicket{}, fmt.Errorf("publish in %s: %w", w.state, ErrInvalidState)
	}
	if len(w.draft.Questions) == 0 {
		return model.ExitTicket{}, fmt.Errorf("publish empty draft: %w", ErrInvalidState)
	}
	teacherName = strings.TrimSpace(teacherName)
	if teacherName == "" {
		return model.ExitTicket{}, &ValidationError{Field: "teacher", Reason: "teacher name is required"}
	}

	subject := w.draft.Subject
	if subject == "" {
		subject = "Unknown Subject"
	}
	topics := w.draft.Topics
	if strings.TrimSpace(topics) == "" {
		topics = "No topics specified"
	}

	snapshot := model.CloneQuestions(w.draft.Questions)
	ticket, err := w.repo.CreateExitTicket(ctx, snapshot, teacherName, subject, topics)
	if err != nil {
		return model.ExitTicket{}, &PersistenceError{Op: "publish exit ticket", Err: err}
	}

	w.state = StatePublished
	slog.Info("exit ticket published",
		"ticket_id", ticket.TicketID,
		"teacher", teacherName,
		"questions", ticket.TotalQuestions,
	)
	w.reset()
	return ticket, nil
}

// SetStatus toggles a published ticket's availability. It is independent of
// the draft state.
func (w *Workflow) SetStatus(ctx context.Context, ticketID string, status model.TicketStatus) error {
	return SetTicketStatus(ctx, w.repo, ticketID, status)
}

// SetTicketStatus updates a ticket's status through repo.
func SetTicketStatus(ctx context.Context, repo Repository, ticketID string, status model.TicketStatus) error {
	if strings.TrimSpace(ticketID) == "" {
		return &ValidationError{Field: "ticket_id", Reason: "ticket id is required"}
	}
	if !status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	ok, err := repo.UpdateTicketStatus(ctx, ticketID, status)
	if err != nil {
		return &PersistenceError{Op: "update ticket status", Err: err}
	}
	if !ok {
		return &PersistenceError{Op: "update ticket status", Err: fmt.Errorf("ticket %s not updated", ticketID)}
	}
	slog.Info("ticket status updated", "ticket_id", ticketID, "status", status)
	return nil
}

// Discard abandons the active draft without persisting anything.
func (w *Workflow) Discard() {
	if w.draft != nil {
		slog.Info("draft discarded", "questions", len(w.draft.Questions))
	}
	w.reset()
}

func (w *Workflow) reset() {
	w.state = StateInput
	w.draft = nil
	w.items = nil
}

func (w *Workflow) checkIndex(op string, index int) error {
	if w.state != StateReviewing {
		return fmt.Errorf("%s in %s: %w", op, w.state, ErrInvalidState)
	}
	if index < 0 || index >= len(w.draft.Questions) {
		return fmt.Errorf("%s %d of %d: %w", op, index, len(w.draft.Questions), ErrIndexOutOfRange)
	}
	return nil
}

// generate makes exactly one generator call and enforces the minimum count.
func (w *Workflow) generate(ctx context.Context, op string, d model.Draft, count int) ([]model.Question, error) {
	questions, err := w.gen.Generate(ctx, model.GenerateRequest{
		Topics:       d.Topics,
		Instructions: d.Instructions,
		Count:        count,
		Subject:      d.Subject,
	})
	if err != nil {
		slog.Error("generation failed", "op", op, "count", count, "error", err)
		return nil, newGenerationError(op, count, err)
	}
	if len(questions) < count {
		slog.Warn("generator returned too few questions", "op", op, "requested", count, "got", len(questions))
		return nil, &GenerationError{Op: op, Requested: count, Got: len(questions)}
	}

	out := model.CloneQuestions(questions)
	for i := range out {
		if out[i].Subject == "" {
			out[i].Subject = d.Subject
		}
		w.logQuestion(ctx, out[i], SourceAI)
	}
	return out, nil
}

// logQuestion records a question in the best-effort question log.
func (w *Workflow) logQuestion(ctx context.Context, q model.Question, source string) {
	if err := w.repo.SaveQuestion(ctx, q, source); err != nil {
		slog.Warn("failed to log question", "source", source, "error", err)
	}
}
