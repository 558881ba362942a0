package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exitticket/exitticket/internal/workflow"
)

const (
	sessionCookieName  = "exitticket_session"
	sessionKeyValue    = "sid"
	sessionIdleTimeout = 12 * time.Hour
)

// authoring is one operator's draft. mu serialises requests of the session
// because a Workflow is not safe for concurrent use.
type authoring struct {
	mu       sync.Mutex
	wf       *workflow.Workflow
	lastSeen time.Time
}

type registry struct {
	mu       sync.Mutex
	sessions map[string]*authoring
	now      func() time.Time
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*authoring), now: time.Now}
}

// get returns the session for id, creating it if missing. Idle sessions are
// pruned on the way.
func (reg *registry) get(id string, create func() *workflow.Workflow) *authoring {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	now := reg.now()
	for sid, a := range reg.sessions {
		if sid != id && now.Sub(a.lastSeen) > sessionIdleTimeout {
			delete(reg.sessions, sid)
			slog.Debug("authoring session expired", "session", sid)
		}
	}

	a, ok := reg.sessions[id]
	if !ok {
		a = &authoring{wf: create()}
		reg.sessions[id] = a
		slog.Info("authoring session started", "session", id)
	}
	a.lastSeen = now
	return a
}

func (reg *registry) len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.sessions)
}

// sessionID reads the session key from the cookie, issuing a new one when the
// cookie is missing or unreadable.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := h.cookies.Get(r, sessionCookieName)
	if err != nil {
		// A cookie signed with an old secret: start over with a fresh one.
		slog.Debug("discarding unreadable session cookie", "error", err)
	}
	if id, ok := sess.Values[sessionKeyValue].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[sessionKeyValue] = id
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, wf *workflow.Workflow)

// withSession resolves the caller's authoring session and runs next while
// holding its lock.
func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.sessionID(w, r)
		if err != nil {
			slog.Error("failed to save session cookie", "error", err)
			h.writeError(w, r, err)
			return
		}
		a := h.sessions.get(id, func() *workflow.Workflow {
			return workflow.New(h.gen, h.repo)
		})

		a.mu.Lock()
		defer a.mu.Unlock()
		next(w, r, a.wf)
	}
}
