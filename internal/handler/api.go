package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/exitticket/exitticket/internal/i18n"
	"github.com/exitticket/exitticket/internal/llm/prompts"
	"github.com/exitticket/exitticket/internal/model"
	"github.com/exitticket/exitticket/internal/workflow"
)

type presetView struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Instruction string `json:"instruction"`
}

// draftView is the authoring state returned by the draft endpoints.
type draftView struct {
	State   workflow.State       `json:"state"`
	Draft   *model.Draft         `json:"draft,omitempty"`
	Items   []workflow.ItemState `json:"items,omitempty"`
	Message string               `json:"message,omitempty"`
}

func viewOf(wf *workflow.Workflow, message string) draftView {
	v := draftView{State: wf.State(), Message: message}
	if d, ok := wf.Draft(); ok {
		v.Draft = &d
		v.Items = wf.ItemStates()
	}
	return v
}

type questionView struct {
	Index    int                `json:"index"`
	Question model.Question     `json:"question"`
	Item     workflow.ItemState `json:"item"`
	Message  string             `json:"message,omitempty"`
}

func questionViewOf(wf *workflow.Workflow, index int, q model.Question, message string) questionView {
	return questionView{Index: index, Question: q, Item: wf.ItemStates()[index], Message: message}
}

func (h *Handler) handlePresets(w http.ResponseWriter, r *http.Request) {
	var out []presetView
	for _, p := range prompts.Presets() {
		out = append(out, presetView{
			Key:         p.Key,
			Label:       appI18n.T(r.Context(), p.LabelID),
			Instruction: p.Instruction,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	writeJSON(w, http.StatusOK, viewOf(wf, ""))
}

func (h *Handler) handleRequestDraft(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	var req workflow.DraftRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := wf.RequestDraft(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(wf, appI18n.Tp(r.Context(), "DraftReady", len(d.Questions))))
}

func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	wf.Discard()
	writeJSON(w, http.StatusOK, viewOf(wf, appI18n.T(r.Context(), "DraftDiscarded")))
}

func (h *Handler) handleEditQuestion(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	index, err := indexParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var fields workflow.QuestionFields
	if err := decodeJSON(r, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := wf.EditQuestion(r.Context(), index, fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := appI18n.Td(r.Context(), "QuestionUpdated", map[string]any{"Number": index + 1})
	writeJSON(w, http.StatusOK, questionViewOf(wf, index, q, msg))
}

func (h *Handler) handleBeginEdit(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	index, err := indexParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := wf.BeginEdit(index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleStageEdit(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	index, err := indexParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var fields workflow.QuestionFields
	if err := decodeJSON(r, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := wf.StageEdit(index, fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleSaveEdit(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	index, err := indexParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := wf.SaveEdit(r.Context(), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := appI18n.Td(r.Context(), "QuestionUpdated", map[string]any{"Number": index + 1})
	writeJSON(w, http.StatusOK, questionViewOf(wf, index, q, msg))
}

func (h *Handler) handleCancelEdit(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	index, err := indexParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := wf.CancelEdit(index); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf.ItemStates()[index])
}

func (h *Handler) handleRegenerateQuestion(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	index, err := indexParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := wf.RegenerateQuestion(r.Context(), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := appI18n.Td(r.Context(), "QuestionRegenerated", map[string]any{"Number": index + 1})
	writeJSON(w, http.StatusOK, questionViewOf(wf, index, q, msg))
}

func (h *Handler) handleRegenerateAll(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	if _, err := wf.RegenerateAll(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(wf, appI18n.T(r.Context(), "DraftRegenerated")))
}

type publishView struct {
	Ticket  model.ExitTicket `json:"ticket"`
	Links   ticketLinks      `json:"links"`
	Message string           `json:"message"`
}

// ticketLinks are API paths of a ticket, prefixed with the base path.
type ticketLinks struct {
	Self      string `json:"self"`
	Status    string `json:"status"`
	Analytics string `json:"analytics"`
}

func linksFor(ctx context.Context, ticketID string) ticketLinks {
	self := model.BasePathFromContext(ctx) + "/api/tickets/" + url.PathEscape(ticketID)
	return ticketLinks{
		Self:      self,
		Status:    self + "/status",
		Analytics: self + "/analytics",
	}
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow) {
	ticket, err := wf.Publish(r.Context(), h.config.Teacher)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, publishView{
		Ticket:  ticket,
		Links:   linksFor(r.Context(), ticket.TicketID),
		Message: appI18n.Td(r.Context(), "TicketPublished", map[string]any{"Code": ticket.TicketID}),
	})
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	overviews, err := h.engine.Overviews(r.Context(), h.config.Teacher)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overviews)
}

// getTicket loads a ticket, reporting read failures as persistence errors.
func (h *Handler) getTicket(ctx context.Context, ticketID string) (model.ExitTicket, error) {
	ticket, err := h.repo.GetExitTicket(ctx, ticketID)
	if err != nil {
		return model.ExitTicket{}, &workflow.PersistenceError{Op: "get exit ticket", Err: err}
	}
	return ticket, nil
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.getTicket(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type statusRequest struct {
	Status model.TicketStatus `json:"status"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.getTicket(r.Context(), ticketID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := workflow.SetTicketStatus(r.Context(), h.repo, ticketID, req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}

	msgID := "TicketDeactivated"
	if req.Status == model.TicketActive {
		msgID = "TicketActivated"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket_id": ticketID,
		"status":    req.Status,
		"message":   appI18n.Td(r.Context(), msgID, map[string]any{"Code": ticketID}),
	})
}

func (h *Handler) handleTicketAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.TicketReport(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
