// Package normalize maps heterogeneous upstream JSON shapes into the
// pipeline's internal records. Upstream services are not schema-stable; every
// logical field is probed through an ordered candidate list across the
// top-level, "result", and "data" nesting roots.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// Keypoint is one normalized pose landmark.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// ScoreResult is the normalized scoring-backend response.
type ScoreResult struct {
	Score       float64
	Keypoints   []Keypoint
	AdviceHint  []string
	SkeletonURL string
	PoseID      string
	PoseName    string
	Detections  any
	Provider    string
}

// ErrNoScore reports a payload with no usable numeric score after probing
// every candidate. A true score of zero is a valid pose result; it must never
// be conflated with a malformed response.
type ErrNoScore struct{}

func (ErrNoScore) Error() string { return "no numeric score in payload" }

var (
	scoreKeys     = []string{"score", "value"}
	keypointKeys  = []string{"keypoints", "points", "keypoints2d"}
	adviceKeys    = []string{"advice", "msg", "message"}
	skeletonKeys  = []string{"skeletonUrl", "skeleton_url", "skeleton"}
	poseIDKeys    = []string{"poseId", "pose_id"}
	poseNameKeys  = []string{"poseName", "pose_name"}
	detectionKeys = []string{"detections", "detection"}

	probeRoots = []string{"", "result", "data"}
)

// Probe returns the first defined value for an ordered candidate-key list.
// Each candidate is searched in the raw object and then in its "result" and
// "data" sub-objects before the next candidate is considered.
func Probe(raw map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		for _, root := range probeRoots {
			node := raw
			if root != "" {
				sub, ok := raw[root].(map[string]any)
				if !ok {
					continue
				}
				node = sub
			}
			if value, ok := node[key]; ok && value != nil {
				return value, true
			}
		}
	}
	return nil, false
}

// ProbeString probes candidates and coerces the hit to a non-empty string.
func ProbeString(raw map[string]any, keys ...string) string {
	value, ok := Probe(raw, keys...)
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// ProbeNumber probes candidates and coerces the hit to a float64.
func ProbeNumber(raw map[string]any, keys ...string) (float64, bool) {
	value, ok := Probe(raw, keys...)
	if !ok {
		return 0, false
	}
	return toNumber(value)
}

// Score normalizes one scoring-backend payload. A payload with no usable
// numeric score is an error, not a zero score.
func Score(raw map[string]any) (ScoreResult, error) {
	if raw == nil {
		return ScoreResult{}, fmt.Errorf("empty payload: %w", ErrNoScore{})
	}
	score, ok := ProbeNumber(raw, scoreKeys...)
	if !ok {
		return ScoreResult{}, ErrNoScore{}
	}

	result := ScoreResult{
		Score:       score,
		SkeletonURL: ProbeString(raw, skeletonKeys...),
		PoseID:      ProbeString(raw, poseIDKeys...),
		PoseName:    ProbeString(raw, poseNameKeys...),
	}
	if kps, ok := Probe(raw, keypointKeys...); ok {
		result.Keypoints = Keypoints(kps)
	}
	if advice, ok := Probe(raw, adviceKeys...); ok {
		result.AdviceHint = AdviceList(advice)
	}
	if detections, ok := Probe(raw, detectionKeys...); ok {
		result.Detections = detections
	}
	return result, nil
}

// Keypoints accepts either a sequence of {x,y,score} records or raw
// [x,y,score] triples and returns one record shape. Missing confidence
// defaults to 1.0.
func Keypoints(raw any) []Keypoint {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]Keypoint, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case []any:
			if len(v) < 2 {
				continue
			}
			kp := Keypoint{Confidence: 1.0}
			if x, ok := toNumber(v[0]); ok {
				kp.X = x
			}
			if y, ok := toNumber(v[1]); ok {
				kp.Y = y
			}
			if len(v) >= 3 {
				if c, ok := toNumber(v[2]); ok {
					kp.Confidence = c
				}
			}
			out = append(out, kp)
		case map[string]any:
			kp := Keypoint{Confidence: 1.0}
			if x, ok := toNumber(v["x"]); ok {
				kp.X = x
			}
			if y, ok := toNumber(v["y"]); ok {
				kp.Y = y
			}
			for _, key := range []string{"confidence", "score", "s"} {
				if c, ok := toNumber(v[key]); ok {
					kp.Confidence = c
					break
				}
			}
			out = append(out, kp)
		}
	}
	return out
}

// AdviceList coerces upstream advice into an ordered list. A single string is
// split on the separators the backends are known to emit.
func AdviceList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		return splitAdvice(v)
	default:
		return nil
	}
}

func splitAdvice(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', '，', ';', '；', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
