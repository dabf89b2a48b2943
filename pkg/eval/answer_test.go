package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
)

func intPtr(i int) *int            { return &i }
func floatPtr(f float64) *float64  { return &f }
func boolPtr(b bool) *bool         { return &b }

func singleChoiceQuestion() *question.Question {
	return &question.Question{
		ID:   "q-single",
		Type: question.TypeSingleChoice,
		Options: []question.Option{
			{ID: "opt-a", Order: 0, Text: "Paris"},
			{ID: "opt-b", Order: 1, Text: "London"},
			{ID: "opt-c", Order: 2, Text: "Berlin"},
		},
		Answer: question.AnswerSpec{CorrectIndex: intPtr(1)},
	}
}

func TestSingleChoiceEquivalentForms(t *testing.T) {
	q := singleChoiceQuestion()
	for _, answer := range []string{"2", "B", "b", "London", "london", "B) London"} {
		result := EvaluateAnswer(q, answer)
		assert.True(t, result.Passed, "answer %q should pass", answer)
		assert.Equal(t, 1.0, result.Score, "answer %q", answer)
		assert.Equal(t, "London", result.Expected)
	}
}

func TestSingleChoiceWrongOption(t *testing.T) {
	result := EvaluateAnswer(singleChoiceQuestion(), "Paris")
	assert.False(t, result.Passed)
	assert.Equal(t, 0.0, result.Score)
	assert.Contains(t, result.Note, "Paris")
}

func TestSingleChoiceUnmatchable(t *testing.T) {
	result := EvaluateAnswer(singleChoiceQuestion(), "Madrid")
	assert.False(t, result.Passed)
	assert.Contains(t, result.Note, "did not match")
}

func multiChoiceQuestion() *question.Question {
	return &question.Question{
		ID:   "q-multi",
		Type: question.TypeMultiChoice,
		Options: []question.Option{
			{ID: "opt-a", Order: 0, Text: "red"},
			{ID: "opt-b", Order: 1, Text: "green"},
			{ID: "opt-c", Order: 2, Text: "blue"},
			{ID: "opt-d", Order: 3, Text: "yellow"},
		},
		Answer: question.AnswerSpec{CorrectIndices: []int{0, 2}},
	}
}

func TestMultiChoiceExactSet(t *testing.T) {
	q := multiChoiceQuestion()
	for _, answer := range []string{"red, blue", "blue, red", "1, 3", "A and C", "red; blue", "red/blue"} {
		result := EvaluateAnswer(q, answer)
		assert.True(t, result.Passed, "answer %q should pass", answer)
	}
}

func TestMultiChoiceMissingSelectionFails(t *testing.T) {
	result := EvaluateAnswer(multiChoiceQuestion(), "red")
	assert.False(t, result.Passed)
	assert.Equal(t, 0.0, result.Score)
}

func TestMultiChoiceExtraSelectionFails(t *testing.T) {
	result := EvaluateAnswer(multiChoiceQuestion(), "red, blue, yellow")
	assert.False(t, result.Passed)
}

func TestMultiChoiceIgnoresFillerSegments(t *testing.T) {
	q := multiChoiceQuestion()

	result := EvaluateAnswer(q, "red and blue, obviously")
	assert.True(t, result.Passed, "filler that matches no option does not poison the set")

	result = EvaluateAnswer(q, "none of them")
	assert.False(t, result.Passed, "an answer with no resolvable selection fails")
}

func TestNumericRangeInclusiveBoundaries(t *testing.T) {
	q := &question.Question{
		ID:   "q-num",
		Type: question.TypeNumeric,
		Answer: question.AnswerSpec{
			Range: &question.NumericRange{Min: floatPtr(9.5), Max: floatPtr(10.5)},
		},
	}

	assert.True(t, EvaluateAnswer(q, "9.5").Passed, "lower bound is inclusive")
	assert.True(t, EvaluateAnswer(q, "10.5").Passed, "upper bound is inclusive")
	assert.True(t, EvaluateAnswer(q, "10").Passed)
	assert.True(t, EvaluateAnswer(q, "approximately 10").Passed)
	assert.False(t, EvaluateAnswer(q, "9.49").Passed)
	assert.False(t, EvaluateAnswer(q, "10.51").Passed)
	assert.False(t, EvaluateAnswer(q, "no idea").Passed)
}

func TestNumericAcceptedStrings(t *testing.T) {
	q := &question.Question{
		ID:   "q-pi",
		Type: question.TypeNumeric,
		Answer: question.AnswerSpec{
			AcceptedAnswers: []string{"3.14", "pi"},
		},
	}

	assert.True(t, EvaluateAnswer(q, "3.14").Passed)
	assert.True(t, EvaluateAnswer(q, "Pi").Passed)
	assert.False(t, EvaluateAnswer(q, "3.15").Passed)
}

func TestBooleanTokenSets(t *testing.T) {
	q := &question.Question{
		ID:     "q-bool",
		Type:   question.TypeBoolean,
		Answer: question.AnswerSpec{BoolValue: boolPtr(true)},
	}

	for _, answer := range []string{"true", "Yes", "y", "1", "correct"} {
		assert.True(t, EvaluateAnswer(q, answer).Passed, "answer %q", answer)
	}
	for _, answer := range []string{"false", "No", "0"} {
		result := EvaluateAnswer(q, answer)
		assert.False(t, result.Passed, "answer %q", answer)
		assert.NotEmpty(t, result.Note)
	}

	result := EvaluateAnswer(q, "maybe")
	assert.False(t, result.Passed)
	assert.Contains(t, result.Note, "not a recognizable boolean")
}

func TestDescriptiveAcceptedPhrasings(t *testing.T) {
	q := &question.Question{
		ID:   "q-desc",
		Type: question.TypeDescriptive,
		Answer: question.AnswerSpec{
			AcceptedAnswers: []string{"photosynthesis", "the photosynthesis process"},
		},
	}

	assert.True(t, EvaluateAnswer(q, "Photosynthesis").Passed)
	assert.True(t, EvaluateAnswer(q, "  the photosynthesis   process ").Passed)
	assert.True(t, EvaluateAnswer(q, `"Photosynthesis"`).Passed, "quoted answers are unwrapped")
	assert.True(t, EvaluateAnswer(q, "`photosynthesis`").Passed, "backticked answers are unwrapped")
	assert.True(t, EvaluateAnswer(q, `'"photosynthesis"'`).Passed, "nested quoting is unwrapped")
	assert.False(t, EvaluateAnswer(q, "respiration").Passed)
}

func TestDescriptiveCaseSensitive(t *testing.T) {
	q := &question.Question{
		ID:   "q-desc-cs",
		Type: question.TypeDescriptive,
		Answer: question.AnswerSpec{
			AcceptedAnswers: []string{"DNA"},
			CaseSensitive:   true,
		},
	}

	assert.True(t, EvaluateAnswer(q, "DNA").Passed)
	assert.False(t, EvaluateAnswer(q, "dna").Passed)
}

func TestDescriptiveManualReview(t *testing.T) {
	q := &question.Question{
		ID:     "q-desc-open",
		Type:   question.TypeDescriptive,
		Answer: question.AnswerSpec{},
	}

	result := EvaluateAnswer(q, "some elaborate essay")
	assert.False(t, result.Passed)
	assert.Contains(t, result.Note, "manual review")
}
