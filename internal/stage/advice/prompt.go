package advice

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tiger/pose-feedback-pipeline/providers/llm/chatcompat"
)

// maxDetectionHighlights caps how many detection findings reach the prompt.
const maxDetectionHighlights = 3

const systemPrompt = "You are a concise yoga coach. Answer in English and output strict JSON only."

// The per-item and summary length caps are a contract with the prompt; the
// model's compliance is expected, not validated in code.
const userPromptFormat = `Return strict JSON with this exact structure:
{"advice":["tip 1","tip 2"],"summary":"one-line summary"}
Rules:
- at most 3 advice items, each no longer than 20 characters
- summary no longer than 16 characters
- if the information is sparse, still give generic advice`

// buildMessages assembles the fixed two-message prompt: the system role pins
// language and output format, the user role embeds the pose context.
func buildMessages(in Input) []chatcompat.Message {
	lines := make([]string, 0, 4)
	if in.PoseName != "" || in.PoseID != "" {
		name := in.PoseName
		if name == "" {
			name = in.PoseID
		}
		lines = append(lines, "Pose: "+name)
	}
	lines = append(lines, fmt.Sprintf("Score: %.1f", in.Score))
	if highlights := formatDetections(in.Detections); highlights != "" {
		lines = append(lines, "Detected issues: "+highlights)
	}
	if len(in.ExistingAdvice) > 0 {
		lines = append(lines, "Existing hints: "+strings.Join(in.ExistingAdvice, "; "))
	}

	return []chatcompat.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: strings.Join(lines, "\n") + "\n" + userPromptFormat},
	}
}

// formatDetections renders the scorer's detection output (free text, a list,
// or a key/value object) into one prompt line of at most three highlights.
func formatDetections(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, maxDetectionHighlights)
		for _, item := range v {
			if len(parts) == maxDetectionHighlights {
				break
			}
			if text := stringify(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		parts := make([]string, 0, maxDetectionHighlights)
		for _, key := range sortedKeys(v) {
			if len(parts) == maxDetectionHighlights {
				break
			}
			if text := stringify(v[key]); text != "" {
				parts = append(parts, key+":"+text)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return stringify(raw)
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
