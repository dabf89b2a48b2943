package benchmark

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/eval"
)

func reportFixtures() (*BenchmarkRun, []*BenchmarkAttempt) {
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Minute)
	run := &BenchmarkRun{
		ID:             "01RUN",
		Label:          "llama nightly",
		ProfileName:    "local llama",
		ProfileModelID: "llama3.1:8b-instruct",
		Status:         StatusCompleted,
		QuestionIDs:    []string{"q1", "q2"},
		DatasetLabel:   "physics set",
		DatasetTotal:   2,
		StartedAt:      &started,
		CompletedAt:    &completed,
	}
	attempts := []*BenchmarkAttempt{
		{
			RunID: "01RUN", QuestionID: "q1", Position: 0, QuestionType: "single-choice",
			AnswerEval:   &passEval,
			TopologyEval: &eval.TopologyEvaluation{Expected: "Physics", Received: "Physics", Passed: true, Score: 1},
			Latency:      1200 * time.Millisecond, PromptTokens: 40, CompletionTokens: 12,
		},
		{
			RunID: "01RUN", QuestionID: "q2", Position: 1, QuestionType: "boolean",
			Error:   "completion request timed out",
			Latency: 30 * time.Second,
		},
	}
	run.Metrics = ComputeMetrics(2, attempts)
	return run, attempts
}

func TestRenderMarkdown(t *testing.T) {
	run, attempts := reportFixtures()
	report := RenderMarkdown(run, attempts)

	assert.Contains(t, report, "# Benchmark report: llama nightly")
	assert.Contains(t, report, "llama3.1:8b-instruct")
	assert.Contains(t, report, "| Questions attempted | 2 / 2 |")
	assert.Contains(t, report, "Answer accuracy | 50.0%")
	assert.Contains(t, report, "## By question type")
	assert.Contains(t, report, "| single-choice | 1 | 1 | 100.0% |")
	assert.Contains(t, report, "## Attempts")
	assert.Contains(t, report, "completion request timed out")
}

func TestWriteXLSX(t *testing.T) {
	run, attempts := reportFixtures()
	path := filepath.Join(t.TempDir(), "report.xlsx")

	require.NoError(t, WriteXLSX(path, run, attempts))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	label, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "llama nightly", label)

	header, err := f.GetCellValue("Attempts", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Question ID", header)

	firstQuestion, err := f.GetCellValue("Attempts", "B2")
	require.NoError(t, err)
	assert.Equal(t, "q1", firstQuestion)
}
