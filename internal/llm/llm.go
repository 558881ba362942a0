package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/exitticket/exitticket/internal/llm/prompts"
	"github.com/exitticket/exitticket/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTemperature is used when no temperature is configured.
const DefaultTemperature = 0.7

// ParseError reports model output that could not be turned into questions.
// The raw text is kept so the operator can see what the model said.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse LLM response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RawResponse returns the unparsed model output.
func (e *ParseError) RawResponse() string { return e.Raw }

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
}

// New creates a new LLM client. A non-positive temperature selects
// DefaultTemperature.
func New(baseURL, apiKey, modelName string, temperature float32) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: temperature,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Ping checks that the endpoint answers and knows the configured model.
func (c *Client) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not listed by endpoint", "model", c.model, "available", len(models.Models))
	return nil
}

type generatedSet struct {
	Questions []model.Question `json:"questions"`
}

// Generate asks the model for req.Count questions. It makes exactly one call
// and does not check the returned count.
func (c *Client) Generate(ctx context.Context, req model.GenerateRequest) ([]model.Question, error) {
	system, user, err := prompts.BuildGeneratePrompt(prompts.GenerateData{
		Subject:      req.Subject,
		Topics:       req.Topics,
		Instructions: req.Instructions,
		Count:        req.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	questions, err := ParseQuestions(raw)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].Subject == "" {
			questions[i].Subject = req.Subject
		}
	}
	return questions, nil
}

// ParseQuestions decodes a {"questions": [...]} object out of raw model
// output. Structurally invalid questions are dropped; the caller decides
// whether enough remain. It fails only when every question is invalid.
func ParseQuestions(raw string) ([]model.Question, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	var set generatedSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	valid := make([]model.Question, 0, len(set.Questions))
	var firstErr error
	for i, q := range set.Questions {
		if err := q.Validate(); err != nil {
			slog.Warn("dropping invalid generated question", "index", i, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("question %d: %w", i, err)
			}
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 && firstErr != nil {
		return nil, &ParseError{Raw: raw, Err: firstErr}
	}
	return valid, nil
}

// ExtractJSON returns the text between the first '{' and the last '}',
// which strips code fences and chatter around the object.
func ExtractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return raw[start : end+1], nil
}
