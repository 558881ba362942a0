package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/exitticket/exitticket/internal/i18n"
	"github.com/exitticket/exitticket/internal/store"
	"github.com/exitticket/exitticket/internal/workflow"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// errBadRequest marks malformed requests (bad JSON, bad path parameters).
var errBadRequest = errors.New("bad request")

// writeError maps an error to a status code and a localized message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	body := errorBody{Detail: err.Error()}
	status := http.StatusInternalServerError

	var (
		ve *workflow.ValidationError
		ge *workflow.GenerationError
		pe *workflow.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body.Field = ve.Field
		body.Error = appI18n.Td(ctx, "ErrValidation", map[string]any{"Reason": ve.Reason})
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		body.Error = appI18n.T(ctx, "ErrBadRequest")
	case errors.Is(err, workflow.ErrInvalidState):
		status = http.StatusConflict
		body.Error = appI18n.T(ctx, "ErrInvalidState")
	case errors.Is(err, workflow.ErrIndexOutOfRange):
		status = http.StatusBadRequest
		body.Error = appI18n.T(ctx, "ErrIndexOutOfRange")
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		body.Error = appI18n.T(ctx, "ErrNotFound")
	case errors.As(err, &ge):
		status = http.StatusBadGateway
		body.Raw = ge.Raw
		if ge.Err == nil {
			body.Error = appI18n.Td(ctx, "ErrGenerationShort", map[string]any{"Got": ge.Got, "Requested": ge.Requested})
		} else {
			body.Error = appI18n.T(ctx, "ErrGeneration")
		}
	case errors.As(err, &pe):
		body.Error = appI18n.T(ctx, "ErrPersistence")
	default:
		body.Error = appI18n.T(ctx, "ErrInternal")
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode body: %v: %w", err, errBadRequest)
	}
	return nil
}

func indexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("question index %q: %w", raw, errBadRequest)
	}
	return i, nil
}
