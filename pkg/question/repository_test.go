package question

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bankQuestions() []Question {
	idx := func(i int) *int { return &i }
	return []Question{
		{
			ID:   "q1",
			Type: TypeSingleChoice,
			Prompt: "What is 2+2?",
			Options: []Option{
				{ID: "b", Order: 2, Text: "5"},
				{ID: "a", Order: 1, Text: "4"},
			},
			Answer:     AnswerSpec{CorrectIndex: idx(0)},
			Difficulty: "easy",
			Tags:       []string{"arithmetic"},
		},
		{
			ID:         "q2",
			Type:       TypeBoolean,
			Prompt:     "Is the sky blue?",
			Answer:     AnswerSpec{BoolValue: boolPtr(true)},
			Difficulty: "easy",
			Tags:       []string{"trivia"},
		},
		{
			ID:         "q3",
			Type:       TypeNumeric,
			Prompt:     "Approximate pi to two decimals.",
			Difficulty: "medium",
			Tags:       []string{"arithmetic", "constants"},
		},
	}
}

func boolPtr(b bool) *bool { return &b }

func TestNewRepositoryOrdersOptions(t *testing.T) {
	repo, err := NewRepository("test bank", bankQuestions())
	require.NoError(t, err)

	q, ok := repo.Get("q1")
	require.True(t, ok)
	assert.Equal(t, "a", q.Options[0].ID, "options sorted by order field")
	assert.Equal(t, "4", q.Options[0].Text)
}

func TestNewRepositoryRejectsDuplicates(t *testing.T) {
	qs := bankQuestions()
	qs = append(qs, Question{ID: "q1", Type: TypeBoolean})

	_, err := NewRepository("dup", qs)
	assert.Error(t, err)
}

func TestSelectByType(t *testing.T) {
	repo, err := NewRepository("test bank", bankQuestions())
	require.NoError(t, err)

	selected, summary := repo.Select(Filter{Types: []Type{TypeNumeric}})
	require.Len(t, selected, 1)
	assert.Equal(t, "q3", selected[0].ID)
	assert.Equal(t, 1, summary.Total)
	assert.Contains(t, summary.FilterDesc, "types=numeric")
}

func TestSelectByTagAndLimit(t *testing.T) {
	repo, err := NewRepository("test bank", bankQuestions())
	require.NoError(t, err)

	selected, summary := repo.Select(Filter{Tags: []string{"arithmetic"}, Limit: 1})
	require.Len(t, selected, 1)
	assert.Equal(t, "q1", selected[0].ID, "bank order preserved")
	assert.Contains(t, summary.FilterDesc, "limit=1")
}

func TestSelectAll(t *testing.T) {
	repo, err := NewRepository("test bank", bankQuestions())
	require.NoError(t, err)

	selected, summary := repo.Select(Filter{})
	assert.Len(t, selected, 3)
	assert.Equal(t, "all questions", summary.FilterDesc)
	assert.Equal(t, "test bank", summary.Label)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	data := []byte(`
label: sample
questions:
  - id: y1
    type: single-choice
    prompt: Pick one
    options:
      - id: o1
        order: 1
        text: first
      - id: o2
        order: 2
        text: second
    answer:
      correct_index: 1
    topology:
      subject_id: math
  - id: y2
    type: numeric
    prompt: How many sides does a hexagon have?
    answer:
      range:
        min: 6
        max: 6
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	repo, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())

	q, ok := repo.Get("y1")
	require.True(t, ok)
	require.NotNil(t, q.Answer.CorrectIndex)
	assert.Equal(t, 1, *q.Answer.CorrectIndex)
	assert.Equal(t, "math", q.Topology.SubjectID)

	n, ok := repo.Get("y2")
	require.True(t, ok)
	require.NotNil(t, n.Answer.Range)
	assert.Equal(t, 6.0, *n.Answer.Range.Min)
}
