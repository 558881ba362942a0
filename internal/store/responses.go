package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/exitticket/exitticket/internal/analytics"
	"github.com/exitticket/exitticket/internal/model"
	"github.com/google/uuid"
)

// AddResponse stores one student submission. An empty ID is replaced by a
// fresh uuid and a zero completion time by the current time.
func (s *Store) AddResponse(ctx context.Context, r model.StudentResponse) (model.StudentResponse, error) {
	return s.insertResponse(ctx, s.db, r)
}

// ImportResponses stores a batch of responses read from path and records the
// file's hash in one transaction. Nothing is written if any insert fails.
func (s *Store) ImportResponses(ctx context.Context, path, hash string, responses []model.StudentResponse) ([]model.StudentResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stored := make([]model.StudentResponse, 0, len(responses))
	for i, r := range responses {
		r, err := s.insertResponse(ctx, tx, r)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", i, err)
		}
		stored = append(stored, r)
	}
	if err := s.setImportedFileHash(ctx, tx, path, hash); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return stored, nil
}

func (s *Store) insertResponse(ctx context.Context, ex execer, r model.StudentResponse) (model.StudentResponse, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = s.now()
	}
	r.CompletedAt = r.CompletedAt.UTC()

	answers, err := json.Marshal(r.Responses)
	if err != nil {
		return model.StudentResponse{}, fmt.Errorf("marshal answers: %w", err)
	}
	flags, err := json.Marshal(r.Flags)
	if err != nil {
		return model.StudentResponse{}, fmt.Errorf("marshal flags: %w", err)
	}

	_, err = ex.ExecContext(ctx, s.rebind(
		`INSERT INTO student_responses (id, ticket_id, student_name, responses_json, flags_json, correct_count, total_questions, percentage, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.TicketID, r.StudentName, string(answers), string(flags),
		r.Score.CorrectCount, r.Score.TotalQuestions, r.Score.Percentage, r.CompletedAt.UnixNano(),
	)
	if err != nil {
		return model.StudentResponse{}, fmt.Errorf("insert response: %w", err)
	}
	return r, nil
}

// ListResponses returns the responses of a ticket in completion order.
func (s *Store) ListResponses(ctx context.Context, ticketID string) ([]model.StudentResponse, error) {
	rows, err := s.query(ctx,
		`SELECT id, ticket_id, student_name, responses_json, flags_json, correct_count, total_questions, percentage, completed_at
		 FROM student_responses WHERE ticket_id = ? ORDER BY completed_at, id`,
		ticketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []model.StudentResponse{}
	for rows.Next() {
		var (
			r              model.StudentResponse
			answers, flags string
			completed      int64
		)
		if err := rows.Scan(&r.ID, &r.TicketID, &r.StudentName, &answers, &flags,
			&r.Score.CorrectCount, &r.Score.TotalQuestions, &r.Score.Percentage, &completed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Responses); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(flags), &r.Flags); err != nil {
			return nil, fmt.Errorf("decode flags of %s: %w", r.ID, err)
		}
		r.CompletedAt = time.Unix(0, completed).UTC()
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// GetTicketAnalytics summarizes the stored responses of a ticket.
func (s *Store) GetTicketAnalytics(ctx context.Context, ticketID string) (model.AnalyticsSummary, error) {
	responses, err := s.ListResponses(ctx, ticketID)
	if err != nil {
		return model.AnalyticsSummary{}, fmt.Errorf("list responses: %w", err)
	}
	return analytics.Summarize(responses), nil
}
