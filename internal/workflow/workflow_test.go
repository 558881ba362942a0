package workflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/exitticket/exitticket/internal/model"
)

type fakeGenerator struct {
	calls   []model.GenerateRequest
	results [][]model.Question
	errs    []error
}

func (g *fakeGenerator) Generate(_ context.Context, req model.GenerateRequest) ([]model.Question, error) {
	i := len(g.calls)
	g.calls = append(g.calls, req)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(g.results) {
		return g.results[i], nil
	}
	return makeQuestions("auto", req.Count), nil
}

type fakeRepo struct {
	saved      []string
	saveErr    error
	createErr  error
	created    [][]model.Question
	teacher    string
	statusOK   bool
	statusErr  error
	statusSeen map[string]model.TicketStatus
}

func (r *fakeRepo) SaveQuestion(_ context.Context, q model.Question, source string) error {
	r.saved = append(r.saved, source+":"+q.Text)
	return r.saveErr
}

func (r *fakeRepo) CreateExitTicket(_ context.Context, qs []model.Question, teacher, subject, topics string) (model.ExitTicket, error) {
	if r.createErr != nil {
		return model.ExitTicket{}, r.createErr
	}
	r.created = append(r.created, qs)
	r.teacher = teacher
	return model.ExitTicket{
		TicketID:       "ABC123",
		Title:          subject + " Exit Ticket",
		TeacherName:    teacher,
		Subject:        subject,
		LectureTopics:  topics,
		Questions:      qs,
		Status:         model.TicketActive,
		CreatedAt:      time.Now(),
		TotalQuestions: len(qs),
	}, nil
}

func (r *fakeRepo) UpdateTicketStatus(_ context.Context, id string, status model.TicketStatus) (bool, error) {
	if r.statusSeen == nil {
		r.statusSeen = map[string]model.TicketStatus{}
	}
	r.statusSeen[id] = status
	return r.statusOK, r.statusErr
}

func makeQuestions(prefix string, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			Text:          fmt.Sprintf("%s question %d", prefix, i),
			Options:       model.Options{model.OptionA: "a", model.OptionB: "b", model.OptionC: "c", model.OptionD: "d"},
			CorrectAnswer: model.OptionA,
			Topic:         "topic",
			Subtopic:      "subtopic",
		}
	}
	return qs
}

func networkingRequest(count int) DraftRequest {
	return DraftRequest{Topics: "OSI model, TCP handshake", Subject: "Networking", Count: count}
}

func reviewing(t *testing.T, count int) (*Workflow, *fakeGenerator, *fakeRepo) {
	t.Helper()
	gen := &fakeGenerator{}
	repo := &fakeRepo{statusOK: true}
	w := New(gen, repo)
	if _, err := w.RequestDraft(context.Background(), networkingRequest(count)); err != nil {
		t.Fatalf("RequestDraft: %v", err)
	}
	return w, gen, repo
}

func TestRequestDraftValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   DraftRequest
		field string
	}{
		{"empty topics", DraftRequest{Topics: "  ", Count: 5}, "topics"},
		{"count too low", DraftRequest{Topics: "x", Count: 2}, "count"},
		{"count too high", DraftRequest{Topics: "x", Count: 11}, "count"},
		{"unknown preset", DraftRequest{Topics: "x", Count: 5, Preset: "nope"}, "preset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			w := New(gen, &fakeRepo{})
			_, err := w.RequestDraft(context.Background(), tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
			if len(gen.calls) != 0 {
				t.Error("generator must not be called on invalid input")
			}
			if w.State() != StateInput {
				t.Errorf("expected Input, got %s", w.State())
			}
		})
	}
}

func TestRequestDraftLengthProperty(t *testing.T) {
	for n := MinQuestions; n <= MaxQuestions; n++ {
		for _, got := range []int{n - 1, n, n + 2} {
			t.Run(fmt.Sprintf("requested %d returned %d", n, got), func(t *testing.T) {
				gen := &fakeGenerator{results: [][]model.Question{makeQuestions("g", got)}}
				w := New(gen, &fakeRepo{})
				d, err := w.RequestDraft(context.Background(), networkingRequest(n))
				if got < n {
					var ge *GenerationError
					if !errors.As(err, &ge) {
						t.Fatalf("expected GenerationError, got %v", err)
					}
					if w.State() != StateInput {
						t.Errorf("expected Input, got %s", w.State())
					}
					if _, ok := w.Draft(); ok {
						t.Error("no draft should exist after failed generation")
					}
					return
				}
				if err != nil {
					t.Fatalf("RequestDraft: %v", err)
				}
				if len(d.Questions) != got {
					t.Errorf("expected %d questions kept, got %d", got, len(d.Questions))
				}
				if w.State() != StateReviewing {
					t.Errorf("expected Reviewing, got %s", w.State())
				}
			})
		}
	}
}

func TestRequestDraftShortGenerationScenario(t *testing.T) {
	gen := &fakeGenerator{results: [][]model.Question{makeQuestions("g", 3)}}
	w := New(gen, &fakeRepo{})

	_, err := w.RequestDraft(context.Background(), networkingRequest(5))
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if ge.Requested != 5 || ge.Got != 3 {
		t.Errorf("expected 3 of 5, got %d of %d", ge.Got, ge.Requested)
	}
	if w.State() != StateInput {
		t.Errorf("expected Input, got %s", w.State())
	}
	if len(gen.calls) != 1 {
		t.Errorf("expected exactly one generator call, got %d", len(gen.calls))
	}
	req := gen.calls[0]
	if req.Subject != "Networking" || req.Topics != "OSI model, TCP handshake" || req.Count != 5 {
		t.Errorf("unexpected generator request %+v", req)
	}
}

func TestRequestDraftGeneratorErrorCarriesRaw(t *testing.T) {
	gen := &fakeGenerator{errs: []error{rawErr{raw: "not json at all"}}}
	w := New(gen, &fakeRepo{})

	_, err := w.RequestDraft(context.Background(), networkingRequest(3))
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if ge.Raw != "not json at all" {
		t.Errorf("expected raw text surfaced, got %q", ge.Raw)
	}
	if !errors.Is(err, errRaw) {
		t.Error("GenerationError should unwrap to the generator error")
	}
}

var errRaw = errors.New("decode failed")

type rawErr struct{ raw string }

func (e rawErr) Error() string       { return "parse: " + errRaw.Error() }
func (e rawErr) Unwrap() error       { return errRaw }
func (e rawErr) RawResponse() string { return e.raw }

func TestRequestDraftStoresParamsAndLogsQuestions(t *testing.T) {
	gen := &fakeGenerator{}
	repo := &fakeRepo{saveErr: errors.New("log store down")}
	w := New(gen, repo)

	d, err := w.RequestDraft(context.Background(), DraftRequest{
		Topics: "Paging", Subject: "Operating Systems", Preset: "conceptual", Count: 3,
	})
	if err != nil {
		t.Fatalf("RequestDraft should ignore question log failures: %v", err)
	}
	if d.Preset != "conceptual" || d.Instructions == "" {
		t.Errorf("preset not resolved: %+v", d)
	}
	if gen.calls[0].Instructions != d.Instructions {
		t.Error("generator should receive the preset instruction text")
	}
	for _, q := range d.Questions {
		if q.Subject != "Operating Systems" {
			t.Errorf("question subject not stamped: %q", q.Subject)
		}
	}
	if len(repo.saved) != 3 {
		t.Errorf("expected 3 logged questions, got %d", len(repo.saved))
	}
}

func TestRequestDraftWhileReviewing(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	_, err := w.RequestDraft(context.Background(), networkingRequest(3))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestEditQuestionNonInterference(t *testing.T) {
	w, _, repo := reviewing(t, 5)
	before, _ := w.Draft()

	fields := QuestionFields{
		Text:          "Which layer handles routing?",
		Options:       model.Options{model.OptionA: "Network", model.OptionB: "Session", model.OptionC: "Physical", model.OptionD: "Data link"},
		CorrectAnswer: model.OptionA,
		Explanation:   "Routing is a network layer function.",
		Topic:         "OSI model",
		Subtopic:      "Layer 3",
	}
	q, err := w.EditQuestion(context.Background(), 2, fields)
	if err != nil {
		t.Fatalf("EditQuestion: %v", err)
	}
	if q.Subject != "Networking" {
		t.Errorf("edited question should keep draft subject, got %q", q.Subject)
	}

	after, _ := w.Draft()
	if len(after.Questions) != len(before.Questions) {
		t.Fatalf("draft length changed")
	}
	for j := range before.Questions {
		if j == 2 {
			if after.Questions[j].Text != fields.Text {
				t.Errorf("index 2 not replaced")
			}
			continue
		}
		if !reflect.DeepEqual(before.Questions[j], after.Questions[j]) {
			t.Errorf("index %d changed by edit of index 2", j)
		}
	}
	if w.State() != StateReviewing {
		t.Errorf("edit must not change state, got %s", w.State())
	}
	if last := repo.saved[len(repo.saved)-1]; last != SourceEdited+":"+fields.Text {
		t.Errorf("edited question not logged, last log %q", last)
	}
}

func TestEditQuestionChecks(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	good := FieldsOf(makeQuestions("x", 1)[0])

	if _, err := w.EditQuestion(context.Background(), 3, good); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := w.EditQuestion(context.Background(), -1, good); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}

	bad := good
	bad.CorrectAnswer = "E"
	var ve *ValidationError
	if _, err := w.EditQuestion(context.Background(), 0, bad); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	// Fewer than four options is accepted as long as the answer is among them.
	three := FieldsOf(makeQuestions("y", 1)[0])
	delete(three.Options, model.OptionD)
	if _, err := w.EditQuestion(context.Background(), 0, three); err != nil {
		t.Errorf("edit with three options should be accepted: %v", err)
	}

	idle := New(&fakeGenerator{}, &fakeRepo{})
	if _, err := idle.EditQuestion(context.Background(), 0, good); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState in Input, got %v", err)
	}
}

func TestRegenerateQuestion(t *testing.T) {
	w, gen, _ := reviewing(t, 4)
	before, _ := w.Draft()

	gen.results = append(gen.results, nil, makeQuestions("fresh", 1))
	q, err := w.RegenerateQuestion(context.Background(), 1)
	if err != nil {
		t.Fatalf("RegenerateQuestion: %v", err)
	}
	if q.Text != "fresh question 0" {
		t.Errorf("unexpected replacement %q", q.Text)
	}
	last := gen.calls[len(gen.calls)-1]
	if last.Count != 1 || last.Subject != "Networking" || last.Topics != before.Topics {
		t.Errorf("unexpected regenerate request %+v", last)
	}

	after, _ := w.Draft()
	if len(after.Questions) != len(before.Questions) {
		t.Fatalf("length changed from %d to %d", len(before.Questions), len(after.Questions))
	}
	for j := range before.Questions {
		if j == 1 {
			continue
		}
		if !reflect.DeepEqual(before.Questions[j], after.Questions[j]) {
			t.Errorf("index %d changed", j)
		}
	}
}

func TestRegenerateQuestionFailureLeavesDraft(t *testing.T) {
	tests := []struct {
		name   string
		result []model.Question
		err    error
	}{
		{"generator error", nil, errors.New("upstream timeout")},
		{"empty result", []model.Question{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, gen, _ := reviewing(t, 3)
			before, _ := w.Draft()
			gen.results = append(gen.results, nil, tt.result)
			gen.errs = []error{nil, tt.err}

			_, err := w.RegenerateQuestion(context.Background(), 0)
			var ge *GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			after, _ := w.Draft()
			if !reflect.DeepEqual(before, after) {
				t.Error("draft changed after failed regeneration")
			}
			if w.State() != StateReviewing {
				t.Errorf("expected Reviewing, got %s", w.State())
			}
		})
	}
}

func TestRegenerateAll(t *testing.T) {
	w, gen, _ := reviewing(t, 3)
	if _, err := w.BeginEdit(0); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}

	gen.results = append(gen.results, nil, makeQuestions("second", 4))
	d, err := w.RegenerateAll(context.Background())
	if err != nil {
		t.Fatalf("RegenerateAll: %v", err)
	}
	if len(d.Questions) != 4 || d.Questions[0].Text != "second question 0" {
		t.Errorf("draft not replaced: %+v", d.Questions)
	}
	if w.State() != StateReviewing {
		t.Errorf("expected to stay in Reviewing, got %s", w.State())
	}
	for i, st := range w.ItemStates() {
		if st.Editing() {
			t.Errorf("item %d still editing after regenerate all", i)
		}
	}
	if gen.calls[len(gen.calls)-1].Count != 3 {
		t.Error("regenerate all should request the stored count")
	}

	gen.results = append(gen.results, makeQuestions("short", 2))
	if _, err := w.RegenerateAll(context.Background()); err == nil {
		t.Fatal("expected GenerationError on short result")
	}
	kept, _ := w.Draft()
	if len(kept.Questions) != 4 {
		t.Error("draft must be unchanged after failed regenerate all")
	}
}

func TestPublishResetsToInput(t *testing.T) {
	w, _, repo := reviewing(t, 3)
	draft, _ := w.Draft()

	ticket, err := w.Publish(context.Background(), "Professor")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ticket.TicketID == "" || ticket.TotalQuestions != 3 {
		t.Errorf("unexpected ticket %+v", ticket)
	}
	if repo.teacher != "Professor" {
		t.Errorf("teacher identity not passed through, got %q", repo.teacher)
	}
	if w.State() != StateInput {
		t.Errorf("expected Input after publish, got %s", w.State())
	}
	if _, ok := w.Draft(); ok {
		t.Error("draft should be discarded after publish")
	}
	if len(w.ItemStates()) != 0 {
		t.Error("item states should be cleared after publish")
	}

	// Snapshot is independent of the (now discarded) draft.
	draft.Questions[0].Text = "mutated"
	if repo.created[0][0].Text == "mutated" {
		t.Error("published snapshot shares memory with the draft")
	}

	if _, err := w.Publish(context.Background(), "Professor"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second publish should fail with ErrInvalidState, got %v", err)
	}
	if len(repo.created) != 1 {
		t.Errorf("expected exactly one ticket created, got %d", len(repo.created))
	}
}

func TestPublishFailureKeepsDraft(t *testing.T) {
	w, _, repo := reviewing(t, 3)
	if _, err := w.BeginEdit(1); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	before, _ := w.Draft()
	repo.createErr = errors.New("disk full")

	_, err := w.Publish(context.Background(), "Professor")
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if w.State() != StateReviewing {
		t.Errorf("expected Reviewing, got %s", w.State())
	}
	after, _ := w.Draft()
	if !reflect.DeepEqual(before, after) {
		t.Error("draft changed after failed publish")
	}
	if !w.ItemStates()[1].Editing() {
		t.Error("edit flags must survive a failed publish")
	}
}

func TestPublishRequiresTeacher(t *testing.T) {
	w, _, _ := reviewing(t, 3)
	var ve *ValidationError
	if _, err := w.Publish(context.Background(), " "); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if w.State() != StateReviewing {
		t.Error("state should not change")
	}
}

func TestSetStatus(t *testing.T) {
	repo := &fakeRepo{statusOK: true}
	w := New(&fakeGenerator{}, repo)

	if err := w.SetStatus(context.Background(), "ABC123", model.TicketInactive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if repo.statusSeen["ABC123"] != model.TicketInactive {
		t.Error("status not forwarded to repository")
	}
	if w.State() != StateInput {
		t.Error("status toggle must not affect the draft state")
	}

	var ve *ValidationError
	if err := w.SetStatus(context.Background(), "ABC123", "archived"); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	repo.statusOK = false
	var pe *PersistenceError
	if err := w.SetStatus(context.Background(), "MISSING", model.TicketActive); !errors.As(err, &pe) {
		t.Errorf("expected PersistenceError, got %v", err)
	}

	repo.statusErr = errors.New("connection reset")
	if err := w.SetStatus(context.Background(), "ABC123", model.TicketActive); !errors.As(err, &pe) {
		t.Errorf("expected PersistenceError, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	w, _, repo := reviewing(t, 3)
	w.Discard()
	if w.State() != StateInput {
		t.Errorf("expected Input, got %s", w.State())
	}
	if len(repo.created) != 0 {
		t.Error("discard must not persist anything")
	}
}
