package benchmark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/eval"
)

func TestProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)

	profile := testProfile()
	profile.APIKey = "sk-secret"
	profile.SystemPrompt = "Answer in JSON."
	supported := true
	profile.Diagnostics = &ProfileDiagnostics{
		LastLevel:        LevelHandshake,
		LastStatus:       DiagnosticsPass,
		StructuredOutput: &supported,
	}

	require.NoError(t, store.SaveProfile(profile))
	require.NotEmpty(t, profile.ID)

	loaded, err := store.GetProfile(profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.Name, loaded.Name)
	assert.Equal(t, "sk-secret", loaded.APIKey)
	assert.Equal(t, profile.RequestTimeout, loaded.RequestTimeout)
	assert.Equal(t, DefaultSteps(), loaded.Steps)
	require.NotNil(t, loaded.Diagnostics)
	assert.Equal(t, DiagnosticsPass, loaded.Diagnostics.LastStatus)
	require.NotNil(t, loaded.Diagnostics.StructuredOutput)
	assert.True(t, *loaded.Diagnostics.StructuredOutput)

	// Update persists new values under the same id.
	loaded.Name = "renamed"
	require.NoError(t, store.SaveProfile(loaded))
	again, err := store.GetProfile(profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)

	profiles, err := store.ListProfiles()
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestGetProfileNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetProfile("nope")
	require.Error(t, err)
	assert.True(t, enginerrors.IsCode(err, enginerrors.ErrCodeProfileInvalid))
}

func TestRunRoundTrip(t *testing.T) {
	store := newTestStore(t)
	profile := testProfile()
	require.NoError(t, store.SaveProfile(profile))

	run := createTestRun(t, store, profile, []string{"q1", "q2"})

	loaded, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, loaded.Status)
	assert.Equal(t, []string{"q1", "q2"}, loaded.QuestionIDs)
	assert.Nil(t, loaded.Metrics)

	now := time.Now()
	loaded.Status = StatusCompleted
	loaded.StartedAt = &now
	loaded.CompletedAt = &now
	loaded.Metrics = ComputeMetrics(2, nil)
	require.NoError(t, store.UpdateRun(loaded))

	final, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	require.NotNil(t, final.Metrics)
	assert.Equal(t, 2, final.Metrics.TotalQuestions)
	require.NotNil(t, final.StartedAt)
}

func TestListRunsFiltersByStatus(t *testing.T) {
	store := newTestStore(t)
	profile := testProfile()
	require.NoError(t, store.SaveProfile(profile))

	r1 := createTestRun(t, store, profile, []string{"q1"})
	r2 := createTestRun(t, store, profile, []string{"q2"})
	r2.Status = StatusCompleted
	require.NoError(t, store.UpdateRun(r2))

	queued, err := store.ListRuns(StatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, r1.ID, queued[0].ID)

	all, err := store.ListRuns()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateRunNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateRun(&BenchmarkRun{ID: "ghost", QuestionIDs: []string{}})
	require.Error(t, err)
	assert.True(t, enginerrors.IsCode(err, enginerrors.ErrCodeRunNotFound))
}

func TestAttemptRoundTripAndIdempotentReplay(t *testing.T) {
	store := newTestStore(t)
	profile := testProfile()
	require.NoError(t, store.SaveProfile(profile))
	run := createTestRun(t, store, profile, []string{"q1"})

	conf := 0.9
	attempt := &BenchmarkAttempt{
		RunID:          run.ID,
		QuestionID:     "q1",
		Position:       0,
		QuestionType:   "single-choice",
		QuestionPrompt: "What is 2 + 2?",
		Steps: []StepResult{
			{Kind: StepClassifySubject, Prompt: "classify", Response: `{"subjectId":"phys"}`, PromptTokens: 10, CompletionTokens: 5},
			{Kind: StepAnswer, Prompt: "answer", Response: `{"answer":"B"}`, PromptTokens: 12, CompletionTokens: 6},
		},
		AnswerEval:   &passEval,
		TopologyEval: &eval.TopologyEvaluation{Expected: "Physics", Received: "Physics", Passed: true, Score: 1, Confidence: &conf},
		TopologyPred: &eval.TopologyPrediction{SubjectID: "phys"},
		Latency:      1500 * time.Millisecond,
		PromptTokens: 22, CompletionTokens: 11,
	}
	require.NoError(t, store.SaveAttempt(attempt))

	// Replaying the same question overwrites rather than duplicating.
	attempt.ID = ""
	require.NoError(t, store.SaveAttempt(attempt))

	attempts, err := store.ListAttempts(run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	got := attempts[0]
	assert.Equal(t, "q1", got.QuestionID)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, StepClassifySubject, got.Steps[0].Kind)
	require.NotNil(t, got.AnswerEval)
	assert.True(t, got.AnswerEval.Passed)
	require.NotNil(t, got.TopologyEval)
	require.NotNil(t, got.TopologyEval.Confidence)
	assert.Equal(t, 0.9, *got.TopologyEval.Confidence)
	require.NotNil(t, got.TopologyPred)
	assert.Equal(t, "phys", got.TopologyPred.SubjectID)
	assert.Equal(t, 1500*time.Millisecond, got.Latency)

	count, err := store.CountAttempts(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDiagnosticsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	profile := testProfile()
	require.NoError(t, store.SaveProfile(profile))

	now := time.Now()
	result := &DiagnosticsResult{
		ProfileID: profile.ID,
		Level:     LevelReadiness,
		Status:    DiagnosticsFail,
		Summary:   "pipeline stage broke protocol",
		StartedAt: now.Add(-time.Second),
		CompletedAt: &now,
		Log: []DiagnosticsLogEntry{
			{Timestamp: now, Severity: "info", Message: "listing models"},
			{Timestamp: now, Severity: "error", Message: "parse failure"},
		},
		Metadata: map[string]any{"structuredOutput": false},
	}
	require.NoError(t, store.SaveDiagnostics(result))

	results, err := store.ListDiagnostics(profile.ID, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	got := results[0]
	assert.Equal(t, LevelReadiness, got.Level)
	assert.Equal(t, DiagnosticsFail, got.Status)
	require.Len(t, got.Log, 2)
	assert.Equal(t, "parse failure", got.Log[1].Message)
	assert.Equal(t, false, got.Metadata["structuredOutput"])
}

func TestDeleteRunCascadesAttempts(t *testing.T) {
	store := newTestStore(t)
	profile := testProfile()
	require.NoError(t, store.SaveProfile(profile))
	run := createTestRun(t, store, profile, []string{"q1"})

	require.NoError(t, store.SaveAttempt(&BenchmarkAttempt{
		RunID: run.ID, QuestionID: "q1", QuestionType: "single-choice", QuestionPrompt: "p",
	}))
	require.NoError(t, store.DeleteRun(run.ID))

	count, err := store.CountAttempts(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
