package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/exitticket/exitticket/internal/model"
)

const validSet = `{"questions": [
  {"question": "What does Ohm's law relate?",
   "options": {"A": "V, I and R", "B": "P and E", "C": "F and m", "D": "Q and t"},
   "correct_answer": "A", "explanation": "V = IR", "topic": "Circuits", "subtopic": "Ohm's law"},
  {"question": "Unit of resistance?",
   "options": {"A": "Volt", "B": "Ohm", "C": "Ampere", "D": "Watt"},
   "correct_answer": "B", "explanation": "Ohm", "topic": "Circuits", "subtopic": "Units"}
]}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"chatter around", `Sure! Here it is: {"a":{"b":2}} Hope this helps.`, `{"a":{"b":2}}`, false},
		{"no object", "I cannot help with that", "", true},
		{"close before open", "} oops {", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseQuestions(t *testing.T) {
	qs, err := ParseQuestions("```json\n" + validSet + "\n```")
	if err != nil {
		t.Fatalf("ParseQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[1].CorrectAnswer != model.OptionB || qs[1].Options[model.OptionB] != "Ohm" {
		t.Errorf("unexpected second question %+v", qs[1])
	}
}

func TestParseQuestionsDropsInvalid(t *testing.T) {
	raw := `{"questions": [
		{"question": "Q1", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "correct_answer": "A"},
		{"question": "Q2", "options": {"A": "a", "B": "b"}, "correct_answer": "A"},
		{"question": "Q3", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "correct_answer": "D"}
	]}`
	qs, err := ParseQuestions(raw)
	if err != nil {
		t.Fatalf("ParseQuestions: %v", err)
	}
	if len(qs) != 2 || qs[0].Text != "Q1" || qs[1].Text != "Q3" {
		t.Errorf("expected Q1 and Q3, got %+v", qs)
	}

	empty, err := ParseQuestions(`{"questions": []}`)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty set = %v, %v; want no questions and no error", empty, err)
	}
}

func TestParseQuestionsKeepsRaw(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "the model refused"},
		{"broken json", `{"questions": [ {"question": }`},
		{"missing option", `{"questions": [{"question": "Q", "options": {"A": "a", "B": "b", "C": "c"}, "correct_answer": "A"}]}`},
		{"answer not an option", `{"questions": [{"question": "Q", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "correct_answer": "E"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuestions(tt.raw)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if pe.RawResponse() != tt.raw {
				t.Errorf("raw text not preserved: %q", pe.RawResponse())
			}
		})
	}
}

// fakeOpenAI serves the two endpoints the client uses.
func fakeOpenAI(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "test-model",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "test-model", "object": "model"}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	var req map[string]any
	srv := fakeOpenAI(t, validSet, &req)
	c := New(srv.URL+"/v1", "test-key", "test-model", 0.4)

	qs, err := c.Generate(context.Background(), model.GenerateRequest{
		Topics:  "Ohm's law, resistance",
		Count:   2,
		Subject: "Electrical Engineering",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	for _, q := range qs {
		if q.Subject != "Electrical Engineering" {
			t.Errorf("subject not stamped: %q", q.Subject)
		}
	}

	if req["model"] != "test-model" {
		t.Errorf("model = %v", req["model"])
	}
	rf, _ := req["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", req["response_format"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)["content"].(string)
	if !strings.Contains(user, "Ohm's law, resistance") || !strings.Contains(user, "No additional instructions provided.") {
		t.Errorf("user prompt missing topics or fallback instructions:\n%s", user)
	}
}

func TestGenerateUnparsable(t *testing.T) {
	srv := fakeOpenAI(t, "Sorry, I can't do that.", nil)
	c := New(srv.URL+"/v1", "k", "test-model", 0)

	_, err := c.Generate(context.Background(), model.GenerateRequest{Topics: "x", Count: 3})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Raw != "Sorry, I can't do that." {
		t.Errorf("raw = %q", pe.Raw)
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := New(srv.URL+"/v1", "k", "test-model", 0)

	_, err := c.Generate(context.Background(), model.GenerateRequest{Topics: "x", Count: 3})
	if err == nil {
		t.Fatal("expected error from failing endpoint")
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		t.Error("transport failure should not be a ParseError")
	}
}

func TestPing(t *testing.T) {
	srv := fakeOpenAI(t, validSet, nil)
	if err := New(srv.URL+"/v1", "k", "test-model", 0).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := New(srv.URL+"/v1", "k", "other-model", 0).Ping(context.Background()); err != nil {
		t.Errorf("Ping with unlisted model should only warn: %v", err)
	}
}

func TestNewDefaultTemperature(t *testing.T) {
	c := New("", "k", "m", 0)
	if c.temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", c.temperature, DefaultTemperature)
	}
	if c.Model() != "m" {
		t.Errorf("Model() = %q", c.Model())
	}
}
