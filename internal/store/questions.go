package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/exitticket/exitticket/internal/model"
	"github.com/google/uuid"
)

// SaveQuestion appends a question to the question log. source records where
// it came from ("ai" or "edited").
func (s *Store) SaveQuestion(ctx context.Context, q model.Question, source string) error {
	qj, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal question: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO question_log (id, question_json, subject, topic, source, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(qj), q.Subject, q.Topic, source, s.now().UnixNano(),
	)
	return err
}

// LoggedQuestionCount returns how many logged questions have the given source.
// An empty source counts all of them.
func (s *Store) LoggedQuestionCount(ctx context.Context, source string) (int, error) {
	var n int
	var err error
	if source == "" {
		err = s.queryRow(ctx, `SELECT COUNT(*) FROM question_log`).Scan(&n)
	} else {
		err = s.queryRow(ctx, `SELECT COUNT(*) FROM question_log WHERE source = ?`, source).Scan(&n)
	}
	return n, err
}
