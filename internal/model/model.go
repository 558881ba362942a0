package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// OptionKey identifies one of the four answer choices of a question.
type OptionKey string

const (
	OptionA OptionKey = "A"
	OptionB OptionKey = "B"
	OptionC OptionKey = "C"
	OptionD OptionKey = "D"
)

// OptionKeys lists the option keys in display order.
var OptionKeys = []OptionKey{OptionA, OptionB, OptionC, OptionD}

// Options maps each option key to its text.
type Options map[OptionKey]string

// Clone returns an independent copy of the options.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Question is one multiple-choice item.
type Question struct {
	Text          string    `json:"question"`
	Options       Options   `json:"options"`
	CorrectAnswer OptionKey `json:"correct_answer"`
	Explanation   string    `json:"explanation"`
	Topic         string    `json:"topic"`
	Subtopic      string    `json:"subtopic"`
	Subject       string    `json:"subject,omitempty"`
}

// HasOption reports whether k is one of the question's option keys.
func (q Question) HasOption(k OptionKey) bool {
	_, ok := q.Options[k]
	return ok
}

// Clone returns a deep copy of q.
func (q Question) Clone() Question {
	q.Options = q.Options.Clone()
	return q
}

// Validate checks the structural invariants of a generated question:
// exactly the four keys A-D and a correct answer among them.
func (q Question) Validate() error {
	if q.Text == "" {
		return errors.New("question text is empty")
	}
	if len(q.Options) != len(OptionKeys) {
		return fmt.Errorf("expected %d options, got %d", len(OptionKeys), len(q.Options))
	}
	for _, k := range OptionKeys {
		if !q.HasOption(k) {
			return fmt.Errorf("option %s is missing", k)
		}
	}
	if !q.HasOption(q.CorrectAnswer) {
		return fmt.Errorf("correct answer %q is not an option", q.CorrectAnswer)
	}
	return nil
}

// CloneQuestions deep-copies a question list.
func CloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

// Draft is an unpublished, session-local set of questions together with the
// parameters that produced it.
type Draft struct {
	Questions      []Question `json:"questions"`
	Subject        string     `json:"subject"`
	Topics         string     `json:"topics"`
	Preset         string     `json:"preset"`
	Instructions   string     `json:"instructions"`
	RequestedCount int        `json:"requested_count"`
}

// Clone returns a deep copy of d.
func (d Draft) Clone() Draft {
	d.Questions = CloneQuestions(d.Questions)
	return d
}

// GenerateRequest is the input of one question-generation call.
type GenerateRequest struct {
	Topics       string
	Instructions string
	Count        int
	Subject      string
}

// TicketStatus is the availability of a published ticket.
type TicketStatus string

const (
	TicketActive   TicketStatus = "active"
	TicketInactive TicketStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s == TicketActive || s == TicketInactive
}

// ExitTicket is a published, immutable snapshot of a draft.
type ExitTicket struct {
	TicketID       string       `json:"ticket_id"`
	Title          string       `json:"title"`
	TeacherName    string       `json:"teacher_name"`
	Subject        string       `json:"subject"`
	LectureTopics  string       `json:"lecture_topics"`
	Questions      []Question   `json:"questions"`
	Status         TicketStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	TotalQuestions int          `json:"total_questions"`
}

// Score is the stored result of one student response.
type Score struct {
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
	Percentage     float64 `json:"percentage"`
}

// StudentResponse is one student's submission against a ticket.
type StudentResponse struct {
	ID          string    `json:"id,omitempty"`
	TicketID    string    `json:"ticket_id"`
	StudentName string    `json:"student_name"`
	Responses   AnswerMap `json:"responses"`
	Flags       FlagMap   `json:"flags"`
	Score       Score     `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// FlagCount returns the number of questions this student flagged.
func (r StudentResponse) FlagCount() int {
	n := 0
	for _, f := range r.Flags {
		if f {
			n++
		}
	}
	return n
}

// AnalyticsSummary holds the headline numbers for a ticket.
type AnalyticsSummary struct {
	TotalResponses int               `json:"total_responses"`
	UniqueStudents int               `json:"unique_students"`
	AverageScore   float64           `json:"average_score"`
	Responses      []StudentResponse `json:"responses"`
}

// QuestionFlags is the flag detail of one question index.
type QuestionFlags struct {
	Index        int      `json:"index"`
	QuestionText string   `json:"question_text"`
	FlagCount    int      `json:"flag_count"`
	FlaggedBy    []string `json:"flagged_by"`
}

// FlagStatistics aggregates flags over a response set.
type FlagStatistics struct {
	TotalFlags       int             `json:"total_flags"`
	FlaggedQuestions int             `json:"flagged_questions"`
	Questions        []QuestionFlags `json:"questions"`
}

// AnswerDetail is one answered question in a response detail view.
type AnswerDetail struct {
	Index         int       `json:"index"`
	Selected      OptionKey `json:"selected"`
	SelectedText  string    `json:"selected_text"`
	Correct       bool      `json:"correct"`
	CorrectAnswer OptionKey `json:"correct_answer"`
	CorrectText   string    `json:"correct_text"`
	Flagged       bool      `json:"flagged"`
}

// ResponseDetail is the per-student breakdown shown in the analytics view.
type ResponseDetail struct {
	StudentName string         `json:"student_name"`
	Score       Score          `json:"score"`
	FlagCount   int            `json:"flag_count"`
	CompletedAt time.Time      `json:"completed_at"`
	Answers     []AnswerDetail `json:"answers"`
}

// TicketOverview is a ticket with its headline response numbers.
type TicketOverview struct {
	Ticket         ExitTicket `json:"ticket"`
	TotalResponses int        `json:"total_responses"`
	AverageScore   float64    `json:"average_score"`
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
