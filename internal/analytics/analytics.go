// Package analytics computes read-only statistics over the stored responses
// of an exit ticket. Every call recomputes from the full response set.
package analytics

import (
	"context"
	"sort"

	"github.com/exitticket/exitticket/internal/model"
	"github.com/exitticket/exitticket/internal/workflow"
)

const unknownStudent = "Unknown"

// Source is the read side of the ticket repository.
type Source interface {
	GetExitTicket(ctx context.Context, ticketID string) (model.ExitTicket, error)
	ListTicketsByTeacher(ctx context.Context, teacherName string) ([]model.ExitTicket, error)
	ListResponses(ctx context.Context, ticketID string) ([]model.StudentResponse, error)
}

// Summarize computes response counts and the mean of the stored percentages.
// Percentages are used as stored, even if stale relative to the counts.
func Summarize(responses []model.StudentResponse) model.AnalyticsSummary {
	summary := model.AnalyticsSummary{
		TotalResponses: len(responses),
		Responses:      responses,
	}
	if summary.Responses == nil {
		summary.Responses = []model.StudentResponse{}
	}
	if len(responses) == 0 {
		return summary
	}

	students := make(map[string]struct{}, len(responses))
	var total float64
	for _, r := range responses {
		students[r.StudentName] = struct{}{}
		total += r.Score.Percentage
	}
	summary.UniqueStudents = len(students)
	summary.AverageScore = total / float64(len(responses))
	return summary
}

// AggregateFlags counts flags per question index. Flags on indices outside
// the question list are ignored.
func AggregateFlags(responses []model.StudentResponse, questions []model.Question) model.FlagStatistics {
	stats := model.FlagStatistics{Questions: make([]model.QuestionFlags, len(questions))}
	for i, q := range questions {
		stats.Questions[i] = model.QuestionFlags{
			Index:        i,
			QuestionText: q.Text,
			FlaggedBy:    []string{},
		}
	}

	for _, r := range responses {
		name := studentName(r)
		for idx, flagged := range r.Flags {
			if !flagged || idx < 0 || idx >= len(questions) {
				continue
			}
			stats.Questions[idx].FlagCount++
			stats.Questions[idx].FlaggedBy = append(stats.Questions[idx].FlaggedBy, name)
		}
	}

	for _, qf := range stats.Questions {
		stats.TotalFlags += qf.FlagCount
		if qf.FlagCount > 0 {
			stats.FlaggedQuestions++
		}
	}
	return stats
}

// DetailFor recomputes per-answer correctness for one response against the
// ticket snapshot. Answers on indices outside the snapshot are skipped.
func DetailFor(r model.StudentResponse, questions []model.Question) model.ResponseDetail {
	detail := model.ResponseDetail{
		StudentName: studentName(r),
		Score:       r.Score,
		FlagCount:   r.FlagCount(),
		CompletedAt: r.CompletedAt,
		Answers:     []model.AnswerDetail{},
	}

	indices := make([]int, 0, len(r.Responses))
	for idx := range r.Responses {
		if idx >= 0 && idx < len(questions) {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	for _, idx := range indices {
		q := questions[idx]
		selected := r.Responses[idx]
		detail.Answers = append(detail.Answers, model.AnswerDetail{
			Index:         idx,
			Selected:      selected,
			SelectedText:  optionText(q, selected),
			Correct:       selected == q.CorrectAnswer,
			CorrectAnswer: q.CorrectAnswer,
			CorrectText:   optionText(q, q.CorrectAnswer),
			Flagged:       r.Flags[idx],
		})
	}
	return detail
}

// Details maps DetailFor over responses, keeping their order.
func Details(responses []model.StudentResponse, questions []model.Question) []model.ResponseDetail {
	out := make([]model.ResponseDetail, 0, len(responses))
	for _, r := range responses {
		out = append(out, DetailFor(r, questions))
	}
	return out
}

// Engine runs the analytics against a repository.
type Engine struct {
	src Source
}

// NewEngine creates an analytics engine over src.
func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Summarize fetches the responses of a ticket and summarizes them.
func (e *Engine) Summarize(ctx context.Context, ticketID string) (model.AnalyticsSummary, error) {
	responses, err := e.src.ListResponses(ctx, ticketID)
	if err != nil {
		return model.AnalyticsSummary{}, &workflow.PersistenceError{Op: "list responses", Err: err}
	}
	return Summarize(responses), nil
}

// TicketReport builds the full analytics view of one ticket.
func (e *Engine) TicketReport(ctx context.Context, ticketID string) (model.TicketReport, error) {
	ticket, err := e.src.GetExitTicket(ctx, ticketID)
	if err != nil {
		return model.TicketReport{}, &workflow.PersistenceError{Op: "get exit ticket", Err: err}
	}
	summary, err := e.Summarize(ctx, ticketID)
	if err != nil {
		return model.TicketReport{}, err
	}
	return model.TicketReport{
		Ticket:    ticket,
		Summary:   summary,
		Flags:     AggregateFlags(summary.Responses, ticket.Questions),
		Responses: Details(summary.Responses, ticket.Questions),
	}, nil
}

// Overviews lists a teacher's tickets with their response count and average.
func (e *Engine) Overviews(ctx context.Context, teacherName string) ([]model.TicketOverview, error) {
	tickets, err := e.src.ListTicketsByTeacher(ctx, teacherName)
	if err != nil {
		return nil, &workflow.PersistenceError{Op: "list tickets", Err: err}
	}
	out := make([]model.TicketOverview, 0, len(tickets))
	for _, t := range tickets {
		summary, err := e.Summarize(ctx, t.TicketID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.TicketOverview{
			Ticket:         t,
			TotalResponses: summary.TotalResponses,
			AverageScore:   summary.AverageScore,
		})
	}
	return out, nil
}

func studentName(r model.StudentResponse) string {
	if r.StudentName == "" {
		return unknownStudent
	}
	return r.StudentName
}

func optionText(q model.Question, k model.OptionKey) string {
	if text, ok := q.Options[k]; ok {
		return text
	}
	return "N/A"
}
