// Package eval recovers structured answers from semi-structured model output
// and grades them against question ground truth.
package eval

import (
	"encoding/json"
	"fmt"
	"strings"

	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
)

// Stage identifies one topology classification level.
type Stage string

const (
	StageSubject  Stage = "subject"
	StageTopic    Stage = "topic"
	StageSubtopic Stage = "subtopic"
)

// ParsedAnswer is the structured payload recovered from an answer response.
type ParsedAnswer struct {
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// StagePrediction is the outcome of one topology stage. It carries the
// identifiers of earlier stages so a single record traces the whole cascade.
type StagePrediction struct {
	Stage      Stage    `json:"stage"`
	SubjectID  string   `json:"subjectId,omitempty"`
	TopicID    string   `json:"topicId,omitempty"`
	SubtopicID string   `json:"subtopicId,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ParseAnswer extracts a structured answer from raw model text. It tolerates
// code fences and prose around the first balanced JSON object, but a response
// with no decodable object or no answer field fails loudly: guessing a
// free-text answer here would corrupt grading downstream.
func ParseAnswer(raw string) (*ParsedAnswer, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeParseAnswer, "no JSON object in response")
	}

	var payload struct {
		Answer      any      `json:"answer"`
		Explanation string   `json:"explanation"`
		Confidence  *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, enginerrors.Wrap(err, enginerrors.ErrCodeParseAnswer, "response object is not valid JSON")
	}

	answer, ok := answerToString(payload.Answer)
	if !ok {
		return nil, enginerrors.New(enginerrors.ErrCodeParseAnswer, "response object has no answer field")
	}

	return &ParsedAnswer{
		Answer:      answer,
		Explanation: payload.Explanation,
		Confidence:  clampConfidence(payload.Confidence),
	}, nil
}

// ParseTopologyStage extracts a stage-specific identifier from raw model text.
// The stage's own id field is required (legacy name-keyed fields are accepted
// as a fallback); sentinel strings like "null" or "none" normalize to absent.
// Identifiers resolved by earlier stages are copied from prior.
func ParseTopologyStage(stage Stage, raw string, prior StagePrediction) (StagePrediction, error) {
	result := StagePrediction{
		Stage:      stage,
		SubjectID:  prior.SubjectID,
		TopicID:    prior.TopicID,
		SubtopicID: prior.SubtopicID,
	}

	obj, err := extractObject(raw)
	if err != nil {
		return result, enginerrors.Wrap(err, enginerrors.ErrCodeParseTopology, "no JSON object in response").
			WithContext("stage", string(stage))
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return result, enginerrors.Wrap(err, enginerrors.ErrCodeParseTopology, "response object is not valid JSON").
			WithContext("stage", string(stage))
	}

	idField, legacyField := stageFields(stage)
	value, ok := fields[idField]
	if !ok {
		value, ok = fields[legacyField]
	}
	if !ok {
		return result, enginerrors.New(enginerrors.ErrCodeParseTopology,
			fmt.Sprintf("response is missing the %s field", idField)).
			WithContext("stage", string(stage))
	}

	id := normalizeIdentifier(value)
	switch stage {
	case StageSubject:
		result.SubjectID = id
	case StageTopic:
		result.TopicID = id
	case StageSubtopic:
		result.SubtopicID = id
	}

	if conf, ok := fields["confidence"].(float64); ok {
		result.Confidence = clampConfidence(&conf)
	}

	return result, nil
}

func stageFields(stage Stage) (idField, legacyField string) {
	switch stage {
	case StageSubject:
		return "subjectId", "subject"
	case StageTopic:
		return "topicId", "topic"
	case StageSubtopic:
		return "subtopicId", "subtopic"
	default:
		return string(stage) + "Id", string(stage)
	}
}

// normalizeIdentifier maps sentinel values to the absent identifier.
func normalizeIdentifier(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "unknown":
		return ""
	}
	return s
}

func answerToString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", "), true
	case float64:
		return trimFloat(v), true
	case bool:
		return fmt.Sprintf("%t", v), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}

func clampConfidence(conf *float64) *float64 {
	if conf == nil {
		return nil
	}
	c := *conf
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return &c
}

// stripCodeFences removes markdown code fences so fenced JSON parses the same
// as bare JSON.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}

	var b strings.Builder
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// extractObject returns the first balanced top-level JSON object in the text.
func extractObject(raw string) (string, error) {
	text := stripCodeFences(raw)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no opening brace found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced braces in response")
}
