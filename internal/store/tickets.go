package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/exitticket/exitticket/internal/model"
)

const (
	ticketCodeLen      = 6
	ticketCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ticketCodeAttempts = 5
)

// newTicketCode returns a random short code of uppercase letters and digits.
func newTicketCode() (string, error) {
	max := big.NewInt(int64(len(ticketCodeAlphabet)))
	code := make([]byte, ticketCodeLen)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = ticketCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// ticketTitle formats the display title of a ticket published at t.
func ticketTitle(subject string, t time.Time) string {
	return fmt.Sprintf("%s Exit Ticket - %s", subject, t.Format("Jan 02, 2006"))
}

// CreateExitTicket stores a snapshot of questions under a fresh ticket code.
func (s *Store) CreateExitTicket(ctx context.Context, questions []model.Question, teacherName, subject, topics string) (model.ExitTicket, error) {
	if len(questions) == 0 {
		return model.ExitTicket{}, errors.New("create exit ticket: no questions")
	}
	qj, err := json.Marshal(questions)
	if err != nil {
		return model.ExitTicket{}, fmt.Errorf("marshal questions: %w", err)
	}

	now := s.now().UTC()
	ticket := model.ExitTicket{
		Title:          ticketTitle(subject, now),
		TeacherName:    teacherName,
		Subject:        subject,
		LectureTopics:  topics,
		Questions:      model.CloneQuestions(questions),
		Status:         model.TicketActive,
		CreatedAt:      now,
		TotalQuestions: len(questions),
	}

	for attempt := 1; attempt <= ticketCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return model.ExitTicket{}, fmt.Errorf("generate ticket code: %w", err)
		}
		_, err = s.exec(ctx,
			`INSERT INTO exit_tickets (ticket_id, title, teacher_name, subject, lecture_topics, questions_json, status, total_questions, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			code, ticket.Title, teacherName, subject, topics, string(qj), string(ticket.Status), ticket.TotalQuestions, now.UnixNano(),
		)
		if err == nil {
			ticket.TicketID = code
			return ticket, nil
		}
		taken, lookupErr := s.ticketExists(ctx, code)
		if lookupErr != nil || !taken {
			return model.ExitTicket{}, fmt.Errorf("insert exit ticket: %w", err)
		}
		slog.Warn("ticket code collision", "code", code, "attempt", attempt)
	}
	return model.ExitTicket{}, fmt.Errorf("insert exit ticket: no free code after %d attempts", ticketCodeAttempts)
}

func (s *Store) ticketExists(ctx context.Context, ticketID string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM exit_tickets WHERE ticket_id = ?`, ticketID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

const ticketColumns = `ticket_id, title, teacher_name, subject, lecture_topics, questions_json, status, total_questions, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (model.ExitTicket, error) {
	var (
		t       model.ExitTicket
		qjson   string
		status  string
		created int64
	)
	if err := row.Scan(&t.TicketID, &t.Title, &t.TeacherName, &t.Subject, &t.LectureTopics, &qjson, &status, &t.TotalQuestions, &created); err != nil {
		return model.ExitTicket{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &t.Questions); err != nil {
		return model.ExitTicket{}, fmt.Errorf("decode questions of %s: %w", t.TicketID, err)
	}
	t.Status = model.TicketStatus(status)
	t.CreatedAt = time.Unix(0, created).UTC()
	return t, nil
}

// GetExitTicket returns one ticket, or ErrNotFound.
func (s *Store) GetExitTicket(ctx context.Context, ticketID string) (model.ExitTicket, error) {
	t, err := scanTicket(s.queryRow(ctx, `SELECT `+ticketColumns+` FROM exit_tickets WHERE ticket_id = ?`, ticketID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExitTicket{}, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	if err != nil {
		return model.ExitTicket{}, err
	}
	return t, nil
}

// ListTicketsByTeacher returns a teacher's tickets, newest first.
func (s *Store) ListTicketsByTeacher(ctx context.Context, teacherName string) ([]model.ExitTicket, error) {
	rows, err := s.query(ctx,
		`SELECT `+ticketColumns+` FROM exit_tickets WHERE teacher_name = ? ORDER BY created_at DESC, ticket_id`,
		teacherName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []model.ExitTicket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// UpdateTicketStatus sets a ticket's status. It reports false when no ticket
// has that id.
func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, status model.TicketStatus) (bool, error) {
	res, err := s.exec(ctx, `UPDATE exit_tickets SET status = ? WHERE ticket_id = ?`, string(status), ticketID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
