package eval

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
)

// Evaluation is the graded outcome of a single answer.
type Evaluation struct {
	Expected string  `json:"expected"`
	Received string  `json:"received"`
	Passed   bool    `json:"passed"`
	Score    float64 `json:"score"`
	Note     string  `json:"note,omitempty"`
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// EvaluateAnswer grades a parsed answer against the question's ground truth.
// It never returns an error: an answer that cannot be matched is a failed
// evaluation, not a broken one.
func EvaluateAnswer(q *question.Question, received string) Evaluation {
	switch q.Type {
	case question.TypeSingleChoice:
		return evaluateSingleChoice(q, received)
	case question.TypeMultiChoice:
		return evaluateMultiChoice(q, received)
	case question.TypeNumeric:
		return evaluateNumeric(q, received)
	case question.TypeBoolean:
		return evaluateBoolean(q, received)
	case question.TypeDescriptive:
		return evaluateDescriptive(q, received)
	default:
		return Evaluation{
			Received: received,
			Note:     fmt.Sprintf("unsupported question type %q", q.Type),
		}
	}
}

func evaluateSingleChoice(q *question.Question, received string) Evaluation {
	result := Evaluation{Received: received}
	if q.Answer.CorrectIndex == nil || *q.Answer.CorrectIndex < 0 || *q.Answer.CorrectIndex >= len(q.Options) {
		result.Note = "question has no valid correct option"
		return result
	}
	correct := q.Options[*q.Answer.CorrectIndex]
	result.Expected = correct.Text

	idx, ok := resolveOptionIndex(q.Options, received)
	if !ok {
		result.Note = "answer did not match any option"
		return result
	}

	if idx == *q.Answer.CorrectIndex {
		result.Passed = true
		result.Score = 1
	} else {
		result.Note = fmt.Sprintf("selected %q", q.Options[idx].Text)
	}
	return result
}

func evaluateMultiChoice(q *question.Question, received string) Evaluation {
	result := Evaluation{Received: received}
	if len(q.Answer.CorrectIndices) == 0 {
		result.Note = "question has no correct options"
		return result
	}

	expectedTexts := make([]string, 0, len(q.Answer.CorrectIndices))
	expectedSet := make(map[int]bool, len(q.Answer.CorrectIndices))
	for _, idx := range q.Answer.CorrectIndices {
		if idx < 0 || idx >= len(q.Options) {
			result.Note = "question references an out-of-range option"
			return result
		}
		expectedSet[idx] = true
		expectedTexts = append(expectedTexts, q.Options[idx].Text)
	}
	result.Expected = strings.Join(expectedTexts, ", ")

	// Union every resolvable segment; filler segments that match no option
	// are ignored rather than failing outright.
	selectedSet := make(map[int]bool)
	for _, part := range splitSelections(received) {
		if idx, ok := resolveOptionIndex(q.Options, part); ok {
			selectedSet[idx] = true
		}
	}

	// Exact set equality: missing or extra selections both fail.
	if len(selectedSet) == len(expectedSet) {
		match := true
		for idx := range expectedSet {
			if !selectedSet[idx] {
				match = false
				break
			}
		}
		if match {
			result.Passed = true
			result.Score = 1
			return result
		}
	}
	result.Note = "selection does not match the expected set"
	return result
}

func evaluateNumeric(q *question.Question, received string) Evaluation {
	result := Evaluation{Received: received}
	result.Expected = describeNumericExpectation(q.Answer)

	if value, ok := extractNumber(received); ok {
		if q.Answer.Range != nil && inRange(value, q.Answer.Range) {
			result.Passed = true
			result.Score = 1
			return result
		}
		for _, accepted := range q.Answer.AcceptedAnswers {
			if acceptedValue, err := strconv.ParseFloat(strings.TrimSpace(accepted), 64); err == nil && acceptedValue == value {
				result.Passed = true
				result.Score = 1
				return result
			}
		}
	}

	// Non-numeric accepted answers ("pi", "one half") still count.
	for _, accepted := range q.Answer.AcceptedAnswers {
		if stringsEqual(received, accepted, q.Answer.CaseSensitive) {
			result.Passed = true
			result.Score = 1
			return result
		}
	}

	result.Note = "value outside the accepted range"
	return result
}

var (
	truthyTokens = map[string]bool{"true": true, "yes": true, "y": true, "t": true, "1": true, "correct": true}
	falsyTokens  = map[string]bool{"false": true, "no": true, "n": true, "f": true, "0": true, "incorrect": true}
)

func evaluateBoolean(q *question.Question, received string) Evaluation {
	result := Evaluation{Received: received}
	if q.Answer.BoolValue == nil {
		result.Note = "question has no boolean ground truth"
		return result
	}
	result.Expected = strconv.FormatBool(*q.Answer.BoolValue)

	value, ok := parseBoolean(received)
	if !ok {
		result.Note = "answer is not a recognizable boolean"
		return result
	}

	if value == *q.Answer.BoolValue {
		result.Passed = true
		result.Score = 1
	} else {
		result.Note = "opposite of the expected value"
	}
	return result
}

func evaluateDescriptive(q *question.Question, received string) Evaluation {
	result := Evaluation{Received: received}
	if len(q.Answer.AcceptedAnswers) == 0 {
		result.Expected = "manual review required"
		result.Note = "no accepted answers configured; manual review required"
		return result
	}
	result.Expected = q.Answer.AcceptedAnswers[0]

	for _, accepted := range q.Answer.AcceptedAnswers {
		if stringsEqual(received, accepted, q.Answer.CaseSensitive) {
			result.Passed = true
			result.Score = 1
			return result
		}
	}
	result.Note = "answer does not match any accepted phrasing"
	return result
}

// resolveOptionIndex maps an answer fragment to an option index. It tries, in
// order: a 1-based position, a leading option letter, exact text equality, and
// finally a unique substring match.
func resolveOptionIndex(options []question.Option, answer string) (int, bool) {
	text := strings.TrimSpace(answer)
	if text == "" {
		return 0, false
	}

	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
		return 0, false
	}

	// "B" or "b) some text" style references.
	if letter := optionLetter(text); letter >= 0 && letter < len(options) {
		rest := strings.TrimLeft(text[1:], ".):- ")
		if rest == "" || stringsEqual(rest, options[letter].Text, false) {
			return letter, true
		}
	}

	normalized := normalizeText(text)
	for i, opt := range options {
		if normalizeText(opt.Text) == normalized {
			return i, true
		}
	}

	matched := -1
	for i, opt := range options {
		if strings.Contains(normalizeText(opt.Text), normalized) {
			if matched >= 0 {
				return 0, false // ambiguous
			}
			matched = i
		}
	}
	if matched >= 0 {
		return matched, true
	}
	return 0, false
}

func optionLetter(text string) int {
	if len(text) == 0 {
		return -1
	}
	ch := text[0]
	switch {
	case ch >= 'A' && ch <= 'Z':
		return int(ch - 'A')
	case ch >= 'a' && ch <= 'z':
		return int(ch - 'a')
	default:
		return -1
	}
}

var selectionSplitter = regexp.MustCompile(`\s*(?:,|;|/|\n|\band\b)\s*`)

func splitSelections(answer string) []string {
	parts := selectionSplitter.Split(answer, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func extractNumber(text string) (float64, bool) {
	match := numberPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func inRange(value float64, r *question.NumericRange) bool {
	if r.Min != nil && value < *r.Min {
		return false
	}
	if r.Max != nil && value > *r.Max {
		return false
	}
	return r.Min != nil || r.Max != nil
}

func describeNumericExpectation(spec question.AnswerSpec) string {
	if spec.Range != nil {
		switch {
		case spec.Range.Min != nil && spec.Range.Max != nil:
			if *spec.Range.Min == *spec.Range.Max {
				return trimFloat(*spec.Range.Min)
			}
			return fmt.Sprintf("between %s and %s", trimFloat(*spec.Range.Min), trimFloat(*spec.Range.Max))
		case spec.Range.Min != nil:
			return fmt.Sprintf("at least %s", trimFloat(*spec.Range.Min))
		case spec.Range.Max != nil:
			return fmt.Sprintf("at most %s", trimFloat(*spec.Range.Max))
		}
	}
	if len(spec.AcceptedAnswers) > 0 {
		return strings.Join(spec.AcceptedAnswers, " or ")
	}
	return ""
}

func parseBoolean(text string) (bool, bool) {
	for _, word := range strings.Fields(normalizeText(text)) {
		word = strings.Trim(word, ".,!?")
		if truthyTokens[word] {
			return true, true
		}
		if falsyTokens[word] {
			return false, true
		}
	}
	return false, false
}

func stringsEqual(a, b string, caseSensitive bool) bool {
	a = stripQuotes(strings.TrimSpace(a))
	b = stripQuotes(strings.TrimSpace(b))
	if caseSensitive {
		return a == b
	}
	return normalizeText(a) == normalizeText(b)
}

// stripQuotes removes matching surrounding quote or backtick pairs; models
// frequently echo the answer as a quoted string.
func stripQuotes(text string) string {
	for len(text) >= 2 && text[0] == text[len(text)-1] {
		switch text[0] {
		case '"', '\'', '`':
			text = strings.TrimSpace(text[1 : len(text)-1])
		default:
			return text
		}
	}
	return text
}

// normalizeText lowercases and collapses whitespace for forgiving comparison.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}
