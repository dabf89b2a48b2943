package benchmark

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/catalog"
	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/logging"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/model"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// Dependencies wires the engine's collaborators together.
type Dependencies struct {
	Store     *Store
	Questions *question.Repository
	Catalog   *catalog.Catalog
	Hub       *telemetry.Hub

	LogDir       string
	ExcerptLimit int

	NetworkLogsEnabled bool
	NetworkLogDir      string

	// NewCompleter overrides client construction; tests inject fakes here.
	NewCompleter func(profile *ModelProfile) Completer
}

// Engine executes benchmark runs sequentially, one question at a time.
type Engine struct {
	deps Dependencies
}

// NewEngine builds a run engine.
func NewEngine(deps Dependencies) *Engine {
	if deps.NewCompleter == nil {
		deps.NewCompleter = func(profile *ModelProfile) Completer {
			return model.NewClient(profile.EndpointBaseURL, profile.APIKey, profile.RequestTimeout, model.ClientOptions{
				ProfileLabel:       profile.Name,
				NetworkLogsEnabled: deps.NetworkLogsEnabled,
				NetworkLogDir:      deps.NetworkLogDir,
			})
		}
	}
	return &Engine{deps: deps}
}

// Completer builds a completion client for a profile using the engine's
// configured factory. Diagnostics and discovery share it.
func (e *Engine) Completer(profile *ModelProfile) Completer {
	return e.deps.NewCompleter(profile)
}

// Execute drives one run from running to a terminal state. Stage failures
// abort individual questions, never the run; only storage failures and
// cancellation end a run early.
func (e *Engine) Execute(ctx context.Context, run *BenchmarkRun) error {
	profile, err := e.deps.Store.GetProfile(run.ProfileID)
	if err != nil {
		e.finishRun(run, StatusFailed, fmt.Sprintf("loading profile: %v", err))
		return err
	}

	if !CanTransition(run.Status, StatusRunning) {
		return enginerrors.New(enginerrors.ErrCodeRunConflict, "run cannot start from its current status").
			WithContext("runId", run.ID).
			WithContext("status", string(run.Status))
	}

	logger, err := logging.NewLogger(e.deps.LogDir, run.ID)
	if err != nil {
		e.finishRun(run, StatusFailed, fmt.Sprintf("opening run log: %v", err))
		return err
	}
	defer logger.Close()
	logger.SetProfileID(profile.ID)

	now := time.Now()
	run.Status = StatusRunning
	run.StartedAt = &now
	if err := e.deps.Store.UpdateRun(run); err != nil {
		return err
	}
	e.publish(telemetry.EventRunStarted, run, map[string]any{
		"label":     run.Label,
		"questions": len(run.QuestionIDs),
	})
	logger.Info(logging.CategoryBenchmark, "run.started", "benchmark run started", map[string]any{
		"questions": len(run.QuestionIDs),
		"model":     profile.ModelID,
	})

	pipeline := NewPipeline(e.deps.NewCompleter(profile), profile, e.deps.Catalog, e.deps.ExcerptLimit)
	tracer := telemetry.Tracer()

	runCtx, span := tracer.Start(ctx, "benchmark.run",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("profile.model", profile.ModelID),
		))
	defer span.End()

	var attempts []*BenchmarkAttempt
	for position, questionID := range run.QuestionIDs {
		if runCtx.Err() != nil {
			return e.cancelRun(run, attempts, logger)
		}

		attempt, err := e.executeQuestion(runCtx, tracer, pipeline, run, questionID, position)
		if err != nil && runCtx.Err() != nil {
			// The stage failure was the cancellation itself.
			return e.cancelRun(run, attempts, logger)
		}

		if saveErr := e.deps.Store.SaveAttempt(attempt); saveErr != nil {
			logger.Error(logging.CategoryStorage, "attempt.save_failed", saveErr.Error(), nil)
			e.finishRun(run, StatusFailed, fmt.Sprintf("persisting attempt: %v", saveErr))
			span.SetStatus(codes.Error, "storage failure")
			return saveErr
		}
		attempts = append(attempts, attempt)

		e.publish(telemetry.EventAttemptRecorded, run, map[string]any{
			"questionId": attempt.QuestionID,
			"position":   attempt.Position,
			"passed":     attempt.AnswerEval != nil && attempt.AnswerEval.Passed,
			"error":      attempt.Error,
		})
		telemetry.QuestionsEvaluated.WithLabelValues(string(attempt.QuestionType), attemptOutcome(attempt)).Inc()

		// Keep the stored metrics fresh so dashboards see progress mid-run.
		run.Metrics = ComputeMetrics(len(run.QuestionIDs), attempts)
		if err := e.deps.Store.UpdateRun(run); err != nil {
			logger.Error(logging.CategoryStorage, "run.update_failed", err.Error(), nil)
		}
	}

	run.Metrics = ComputeMetrics(len(run.QuestionIDs), attempts)
	e.finishRun(run, StatusCompleted, "")
	e.publish(telemetry.EventRunCompleted, run, map[string]any{"metrics": run.Metrics})
	logger.Info(logging.CategoryBenchmark, "run.completed", "benchmark run completed", map[string]any{
		"answerAccuracy":   run.Metrics.AnswerAccuracy,
		"topologyAccuracy": run.Metrics.TopologyAccuracy,
	})
	return nil
}

func (e *Engine) executeQuestion(ctx context.Context, tracer trace.Tracer, pipeline *Pipeline, run *BenchmarkRun, questionID string, position int) (*BenchmarkAttempt, error) {
	attempt := &BenchmarkAttempt{
		RunID:      run.ID,
		QuestionID: questionID,
		Position:   position,
		CreatedAt:  time.Now(),
	}

	q, ok := e.deps.Questions.Get(questionID)
	if !ok {
		attempt.Error = fmt.Sprintf("question %s not found in the loaded bank", questionID)
		return attempt, nil
	}
	attempt.QuestionType = q.Type
	attempt.QuestionPrompt = q.Prompt
	attempt.QuestionDifficulty = q.Difficulty

	e.publish(telemetry.EventQuestionStarted, run, map[string]any{
		"questionId": questionID,
		"position":   position,
	})

	qCtx, span := tracer.Start(ctx, "benchmark.question",
		trace.WithAttributes(
			attribute.String("question.id", questionID),
			attribute.String("question.type", string(q.Type)),
		))
	defer span.End()

	start := time.Now()
	outcome, err := pipeline.Execute(qCtx, q)
	attempt.Latency = time.Since(start)
	attempt.Steps = outcome.Steps
	attempt.AnswerEval = outcome.AnswerEval
	attempt.TopologyEval = outcome.TopologyEval
	attempt.TopologyPred = outcome.TopologyPred
	for _, step := range outcome.Steps {
		attempt.PromptTokens += step.PromptTokens
		attempt.CompletionTokens += step.CompletionTokens
	}
	if outcome.FallbackUsed {
		e.publish(telemetry.EventModelFallback, run, map[string]any{"questionId": questionID})
	}
	if err != nil {
		attempt.Error = err.Error()
		span.SetStatus(codes.Error, err.Error())
		return attempt, err
	}
	return attempt, nil
}

func (e *Engine) cancelRun(run *BenchmarkRun, attempts []*BenchmarkAttempt, logger *logging.Logger) error {
	run.Metrics = ComputeMetrics(len(run.QuestionIDs), attempts)
	e.finishRun(run, StatusCancelled, "cancelled")
	e.publish(telemetry.EventRunCancelled, run, map[string]any{"attempted": len(attempts)})
	logger.Warn(logging.CategoryBenchmark, "run.cancelled", "benchmark run cancelled", map[string]any{
		"attempted": len(attempts),
	})
	return nil
}

// finishRun moves a run to a terminal state and persists it. Persistence
// failures here are logged by callers; the in-memory record is authoritative
// for the scheduler either way.
func (e *Engine) finishRun(run *BenchmarkRun, status RunStatus, errMsg string) {
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	if errMsg != "" && status == StatusFailed {
		run.Error = errMsg
	}
	_ = e.deps.Store.UpdateRun(run)
	if status == StatusFailed {
		e.publish(telemetry.EventRunFailed, run, map[string]any{"error": errMsg})
	}
}

func (e *Engine) publish(eventType telemetry.EventType, run *BenchmarkRun, data map[string]any) {
	if e.deps.Hub == nil {
		return
	}
	e.deps.Hub.Publish(telemetry.Event{
		Type:      eventType,
		RunID:     run.ID,
		ProfileID: run.ProfileID,
		Data:      data,
	})
}

func attemptOutcome(attempt *BenchmarkAttempt) string {
	switch {
	case attempt.Error != "":
		return "error"
	case attempt.AnswerEval != nil && attempt.AnswerEval.Passed:
		return "pass"
	default:
		return "fail"
	}
}

// ComputeMetrics folds attempts into the aggregate scorecard. It is also used
// during restart reconciliation to rebuild metrics from persisted attempts.
func ComputeMetrics(totalQuestions int, attempts []*BenchmarkAttempt) *RunMetrics {
	metrics := &RunMetrics{
		TotalQuestions: totalQuestions,
		ByType:         make(map[string]TypeMetrics),
	}

	var totalLatency time.Duration
	var topologyScoreSum float64
	topologyScored := 0

	for _, a := range attempts {
		metrics.Attempted++
		metrics.TotalPromptTokens += a.PromptTokens
		metrics.TotalCompletionTokens += a.CompletionTokens
		totalLatency += a.Latency

		if a.Error != "" {
			metrics.Errored++
		}
		for _, step := range a.Steps {
			if step.FallbackUsed {
				metrics.FallbackCount++
			}
		}

		byType := metrics.ByType[string(a.QuestionType)]
		byType.Total++

		if a.AnswerEval != nil && a.AnswerEval.Passed {
			metrics.AnswerPassed++
			byType.Passed++
		}
		metrics.ByType[string(a.QuestionType)] = byType

		if a.TopologyEval != nil {
			topologyScored++
			topologyScoreSum += a.TopologyEval.Score
			if a.TopologyEval.Passed {
				metrics.TopologyPassed++
			}
		} else if a.Error != "" {
			// A stage failure before any classification was graded still
			// counts against topology accuracy, as a zero-score miss.
			topologyScored++
		}
	}

	if metrics.Attempted > 0 {
		metrics.AnswerAccuracy = float64(metrics.AnswerPassed) / float64(metrics.Attempted)
		metrics.AvgLatency = totalLatency / time.Duration(metrics.Attempted)
	}
	if topologyScored > 0 {
		metrics.TopologyAccuracy = float64(metrics.TopologyPassed) / float64(topologyScored)
		metrics.AvgTopologyScore = topologyScoreSum / float64(topologyScored)
	}
	for key, tm := range metrics.ByType {
		if tm.Total > 0 {
			tm.Accuracy = float64(tm.Passed) / float64(tm.Total)
			metrics.ByType[key] = tm
		}
	}
	return metrics
}
