package benchmark

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/catalog"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/eval"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/model"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// EndpointClient is the full client surface diagnostics needs: completions
// plus the model catalog.
type EndpointClient interface {
	Completer
	ListModels(ctx context.Context) ([]model.ModelInfo, error)
}

// DiagnosticsRunner executes handshake and readiness checks against a
// profile's endpoint and records the transcript.
type DiagnosticsRunner struct {
	store        *Store
	catalog      *catalog.Catalog
	hub          *telemetry.Hub
	excerptLimit int
	newClient    func(profile *ModelProfile) EndpointClient
}

// NewDiagnosticsRunner builds a diagnostics runner. newClient may be nil, in
// which case real HTTP clients are constructed per profile.
func NewDiagnosticsRunner(store *Store, cat *catalog.Catalog, hub *telemetry.Hub, excerptLimit int, newClient func(*ModelProfile) EndpointClient) *DiagnosticsRunner {
	if newClient == nil {
		newClient = func(profile *ModelProfile) EndpointClient {
			return model.NewClient(profile.EndpointBaseURL, profile.APIKey, profile.RequestTimeout, model.ClientOptions{
				ProfileLabel: profile.Name,
			})
		}
	}
	return &DiagnosticsRunner{
		store:        store,
		catalog:      cat,
		hub:          hub,
		excerptLimit: excerptLimit,
		newClient:    newClient,
	}
}

// readinessQuestion is the fixed probe question for readiness checks. Only
// protocol compliance is judged; the model's actual answer is irrelevant.
func readinessQuestion() *question.Question {
	idx := 1
	return &question.Question{
		ID:     "diagnostics-probe",
		Type:   question.TypeSingleChoice,
		Prompt: "What is 2 + 2?",
		Options: []question.Option{
			{ID: "probe-a", Order: 0, Text: "3"},
			{ID: "probe-b", Order: 1, Text: "4"},
			{ID: "probe-c", Order: 2, Text: "5"},
		},
		Answer: question.AnswerSpec{CorrectIndex: &idx},
	}
}

// Run executes a diagnostics check at the requested level. The result is
// persisted and the profile's cached diagnostics summary updated even when
// the check fails; a failed check is a result, not an error.
func (r *DiagnosticsRunner) Run(ctx context.Context, profile *ModelProfile, level DiagnosticsLevel) (*DiagnosticsResult, error) {
	result := &DiagnosticsResult{
		ID:        uuid.NewString(),
		ProfileID: profile.ID,
		Level:     level,
		Status:    DiagnosticsPass,
		StartedAt: time.Now(),
		Metadata:  make(map[string]any),
	}
	r.publish(telemetry.EventDiagnosticsStarted, profile, map[string]any{"level": string(level)})

	client := r.newClient(profile)
	r.handshake(ctx, client, profile, result)
	if level == LevelReadiness && result.Status == DiagnosticsPass {
		r.readiness(ctx, client, profile, result)
	}

	now := time.Now()
	result.CompletedAt = &now
	if result.Summary == "" {
		if result.Status == DiagnosticsPass {
			result.Summary = fmt.Sprintf("%s check passed", level)
		} else {
			result.Summary = fmt.Sprintf("%s check failed", level)
		}
	}

	if err := r.store.SaveDiagnostics(result); err != nil {
		return result, err
	}
	r.cacheOnProfile(profile, result)

	telemetry.DiagnosticsChecks.WithLabelValues(string(level), string(result.Status)).Inc()
	r.publish(telemetry.EventDiagnosticsCompleted, profile, map[string]any{
		"level":  string(level),
		"status": string(result.Status),
	})
	return result, nil
}

// handshake verifies the endpoint answers the model catalog and a trivial
// structured echo completion.
func (r *DiagnosticsRunner) handshake(ctx context.Context, client EndpointClient, profile *ModelProfile, result *DiagnosticsResult) {
	r.log(result, "info", "listing models at "+profile.EndpointBaseURL)

	models, err := client.ListModels(ctx)
	if err != nil {
		result.Status = DiagnosticsFail
		result.Summary = "endpoint did not answer the model catalog request"
		r.log(result, "error", err.Error())
		return
	}
	r.log(result, "info", fmt.Sprintf("endpoint reports %d models", len(models)))
	result.Metadata["modelCount"] = len(models)

	found := false
	for _, m := range models {
		if m.ID == profile.ModelID {
			found = true
			break
		}
	}
	result.Metadata["modelListed"] = found
	if !found {
		// Some servers accept completions for models they do not list.
		r.log(result, "warn", fmt.Sprintf("model %q not present in the catalog", profile.ModelID))
	}

	echo, err := client.Complete(ctx, model.CompletionRequest{
		Model:       profile.ModelID,
		Messages:    []model.Message{{Role: "user", Content: `Reply with exactly this JSON object: {"answer": "ready"}`}},
		Temperature: 0,
		MaxTokens:   64,
		Structured:  true,
		Schema:      model.SchemaEcho,
	})
	if err != nil {
		result.Status = DiagnosticsFail
		result.Summary = "endpoint did not answer the echo completion"
		r.log(result, "error", err.Error())
		return
	}

	structured := !echo.FallbackUsed
	result.Metadata["structuredOutput"] = structured
	if echo.FallbackUsed {
		r.log(result, "warn", "endpoint rejected structured output; plain-text fallback engaged")
	}

	parsed, err := eval.ParseAnswer(echo.Text)
	if err != nil {
		result.Status = DiagnosticsFail
		result.Summary = "echo response was not parseable JSON"
		r.log(result, "error", err.Error())
		return
	}
	if !strings.EqualFold(strings.TrimSpace(parsed.Answer), "ready") {
		result.Status = DiagnosticsFail
		result.Summary = fmt.Sprintf("echo answered %q instead of \"ready\"", parsed.Answer)
		r.log(result, "error", result.Summary)
		return
	}
	r.log(result, "info", "echo completion answered ready")
}

// readiness drives the full pipeline against the fixed probe question. Every
// stage must produce parseable output; correctness is not judged.
func (r *DiagnosticsRunner) readiness(ctx context.Context, client EndpointClient, profile *ModelProfile, result *DiagnosticsResult) {
	pipeline := NewPipeline(client, profile, r.catalog, r.excerptLimit)
	q := readinessQuestion()

	r.log(result, "info", "running the full pipeline against the probe question")
	outcome, err := pipeline.Execute(ctx, q)

	// The partial trace is kept even on failure so operators can see which
	// stage broke protocol.
	stages := make([]map[string]any, 0, len(outcome.Steps))
	for _, step := range outcome.Steps {
		stages = append(stages, map[string]any{
			"kind":         string(step.Kind),
			"response":     step.Response,
			"latencyMs":    step.Latency.Milliseconds(),
			"fallbackUsed": step.FallbackUsed,
			"error":        step.Error,
		})
	}
	result.Metadata["stages"] = stages

	if err != nil {
		result.Status = DiagnosticsFail
		result.Summary = "pipeline stage broke protocol on the probe question"
		r.log(result, "error", err.Error())
		return
	}
	if outcome.FallbackUsed {
		result.Metadata["structuredOutput"] = false
	}
	r.log(result, "info", fmt.Sprintf("all %d stages produced parseable output", len(outcome.Steps)))
}

// cacheOnProfile stores the latest diagnostics summary on the profile record.
func (r *DiagnosticsRunner) cacheOnProfile(profile *ModelProfile, result *DiagnosticsResult) {
	meta := &ProfileDiagnostics{
		LastLevel:  result.Level,
		LastStatus: result.Status,
		CheckedAt:  result.CompletedAt,
	}
	if v, ok := result.Metadata["structuredOutput"].(bool); ok {
		meta.StructuredOutput = &v
	}
	if old := profile.Diagnostics; old != nil {
		meta.EndpointReachable = old.EndpointReachable
		meta.LastSeenAt = old.LastSeenAt
	}
	profile.Diagnostics = meta
	_ = r.store.SaveProfile(profile)
}

func (r *DiagnosticsRunner) log(result *DiagnosticsResult, severity, message string) {
	result.Log = append(result.Log, DiagnosticsLogEntry{
		Timestamp: time.Now(),
		Severity:  severity,
		Message:   message,
	})
}

func (r *DiagnosticsRunner) publish(eventType telemetry.EventType, profile *ModelProfile, data map[string]any) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(telemetry.Event{
		Type:      eventType,
		ProfileID: profile.ID,
		Data:      data,
	})
}
