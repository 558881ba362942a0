package model

import "time"

// TicketReport is everything the analytics view of one ticket shows.
type TicketReport struct {
	Ticket    ExitTicket       `json:"ticket"`
	Summary   AnalyticsSummary `json:"summary"`
	Flags     FlagStatistics   `json:"flags"`
	Responses []ResponseDetail `json:"responses"`
}

// TicketExport is the top-level JSON structure written by the export command.
type TicketExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Report     TicketReport `json:"report"`
}
