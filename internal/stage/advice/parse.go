package advice

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// adviceSchema is the contract the model's JSON output must satisfy before
// it is accepted.
var adviceSchema = jsonschema.MustCompileString("advice.schema.json", `{
	"type": "object",
	"required": ["advice", "summary"],
	"properties": {
		"advice": {"type": "array", "items": {"type": "string"}},
		"summary": {"type": "string"}
	}
}`)

type llmAdvice struct {
	Advice  []string `json:"advice"`
	Summary string   `json:"summary"`
}

// parseCompletion leniently extracts the {advice, summary} object from model
// output. Leading prose and code fences are stripped by locating the last
// {...} block; the candidate is then schema-checked.
func parseCompletion(text string) (llmAdvice, error) {
	candidate := extractJSONObject(text)
	if candidate == "" {
		return llmAdvice{}, fmt.Errorf("no JSON object in completion")
	}

	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return llmAdvice{}, fmt.Errorf("completion is not valid JSON: %w", err)
	}
	if err := adviceSchema.Validate(doc); err != nil {
		return llmAdvice{}, fmt.Errorf("completion violates advice schema: %w", err)
	}

	var parsed llmAdvice
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return llmAdvice{}, fmt.Errorf("decode advice object: %w", err)
	}

	cleaned := make([]string, 0, len(parsed.Advice))
	for _, item := range parsed.Advice {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	parsed.Advice = cleaned
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if len(parsed.Advice) == 0 && parsed.Summary == "" {
		return llmAdvice{}, fmt.Errorf("completion carries neither advice nor summary")
	}
	return parsed, nil
}

// extractJSONObject returns the widest {...} span, falling back to the
// narrowest one when the widest fails to cover a single object.
func extractJSONObject(text string) string {
	text = stripCodeFences(text)
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return ""
	}
	wide := text[first : last+1]
	if json.Valid([]byte(wide)) {
		return wide
	}
	narrowStart := strings.LastIndexByte(text[:last], '{')
	if narrowStart < 0 {
		return wide
	}
	return text[narrowStart : last+1]
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
