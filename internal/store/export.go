package store

import (
	"context"
	"fmt"

	"github.com/exitticket/exitticket/internal/analytics"
	"github.com/exitticket/exitticket/internal/model"
)

// ExportTicket builds the export document of one ticket.
func (s *Store) ExportTicket(ctx context.Context, ticketID string) (model.TicketExport, error) {
	report, err := analytics.NewEngine(s).TicketReport(ctx, ticketID)
	if err != nil {
		return model.TicketExport{}, fmt.Errorf("ticket report %s: %w", ticketID, err)
	}
	return model.TicketExport{
		ExportedAt: s.now().UTC(),
		Report:     report,
	}, nil
}

// ExportTeacher builds export documents for all tickets of a teacher, newest
// first.
func (s *Store) ExportTeacher(ctx context.Context, teacherName string) ([]model.TicketExport, error) {
	tickets, err := s.ListTicketsByTeacher(ctx, teacherName)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	exports := make([]model.TicketExport, 0, len(tickets))
	for _, t := range tickets {
		e, err := s.ExportTicket(ctx, t.TicketID)
		if err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, nil
}
