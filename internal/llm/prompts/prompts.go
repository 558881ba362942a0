package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	lectureTopicsRegex      = regexp.MustCompile(`(?i)</?\s*lecture-topics\b[^>]*>`)
	instructionsRegex       = regexp.MustCompile(`(?i)</?\s*additional-instructions\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxInputRunes = 10000

// PresetNone is the key of the empty instruction preset.
const PresetNone = "none"

// Preset is a canned instruction the operator can pick for generation.
type Preset struct {
	Key         string `json:"key"`
	LabelID     string `json:"label_id"`
	Instruction string `json:"instruction"`
}

var presets = []Preset{
	{Key: PresetNone, LabelID: "PresetNone", Instruction: ""},
	{Key: "conceptual", LabelID: "PresetConceptual", Instruction: "Emphasize conceptual understanding of the topics."},
	{Key: "numerical", LabelID: "PresetNumerical", Instruction: "Include numerical problems or questions requiring application of formulas."},
	{Key: "applications", LabelID: "PresetApplications", Instruction: "Generate questions that relate the concepts to real-world engineering applications."},
	{Key: "misconceptions", LabelID: "PresetMisconceptions", Instruction: "Focus on common misconceptions or tricky areas in the lecture topics."},
	{Key: "definitions", LabelID: "PresetDefinitions", Instruction: "Ask for precise definitions and terminology-based MCQs."},
	{Key: "convert", LabelID: "PresetConvert", Instruction: "Take the provided descriptive or paragraph-style questions and convert them into multiple-choice format."},
}

// Presets returns the instruction presets in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset resolves a preset key. An empty key means PresetNone.
func LookupPreset(key string) (Preset, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = PresetNone
	}
	for _, p := range presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

// GenerateData holds template data for a generation prompt.
type GenerateData struct {
	Subject      string
	Topics       string
	Instructions string
	Count        int
}

var (
	loadOnce       sync.Once
	loadErr        error
	systemTemplate *template.Template
	userTemplate   *template.Template
)

func load() error {
	loadOnce.Do(func() {
		systemTemplate, loadErr = parse("templates/system.txt")
		if loadErr != nil {
			return
		}
		userTemplate, loadErr = parse("templates/user.txt")
	})
	return loadErr
}

func parse(name string) (*template.Template, error) {
	content, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// BuildGeneratePrompt renders the system and user messages for a
// question-generation request.
func BuildGeneratePrompt(data GenerateData) (system, user string, err error) {
	if err := load(); err != nil {
		return "", "", fmt.Errorf("templates load failed: %w", err)
	}
	if data.Count < 1 {
		return "", "", fmt.Errorf("invalid question count %d", data.Count)
	}

	data.Topics = sanitizeInput(data.Topics)
	data.Instructions = strings.TrimSpace(sanitizeInput(data.Instructions))
	data.Subject = strings.TrimSpace(data.Subject)

	var sb, ub bytes.Buffer
	if err := systemTemplate.Execute(&sb, data); err != nil {
		return "", "", err
	}
	if err := userTemplate.Execute(&ub, data); err != nil {
		return "", "", err
	}
	return sb.String(), ub.String(), nil
}

func sanitizeInput(s string) string {
	s = lectureTopicsRegex.ReplaceAllString(s, "")
	s = instructionsRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxInputRunes {
		runes := []rune(s)
		s = string(runes[:maxInputRunes]) + "\n\n[Input truncated due to length]"
	}
	return s
}
