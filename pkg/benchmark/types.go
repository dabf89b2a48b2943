// Package benchmark contains the run engine: model profiles, the staged
// question pipeline, diagnostics, run records, and the queue scheduler.
package benchmark

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/eval"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
)

// RunStatus is the lifecycle state of a benchmark run.
type RunStatus string

const (
	StatusDraft     RunStatus = "draft"
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions encodes the run lifecycle. Terminal states have no exits.
var validTransitions = map[RunStatus][]RunStatus{
	StatusDraft:   {StatusQueued, StatusRunning, StatusCancelled},
	StatusQueued:  {StatusRunning, StatusDraft, StatusCancelled, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to RunStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StepKind names one stage of the question pipeline.
type StepKind string

const (
	StepClassifySubject  StepKind = "classify-subject"
	StepClassifyTopic    StepKind = "classify-topic"
	StepClassifySubtopic StepKind = "classify-subtopic"
	StepAnswer           StepKind = "answer"
)

// PipelineStep is one configured stage of a profile's pipeline.
type PipelineStep struct {
	Kind    StepKind `json:"kind"`
	Enabled bool     `json:"enabled"`
}

// DefaultSteps returns the full classification-then-answer pipeline.
func DefaultSteps() []PipelineStep {
	return []PipelineStep{
		{Kind: StepClassifySubject, Enabled: true},
		{Kind: StepClassifyTopic, Enabled: true},
		{Kind: StepClassifySubtopic, Enabled: true},
		{Kind: StepAnswer, Enabled: true},
	}
}

// ProfileDiagnostics summarizes the most recent diagnostics outcome for a
// profile, cached on the profile record for quick display.
type ProfileDiagnostics struct {
	LastLevel         DiagnosticsLevel  `json:"lastLevel,omitempty"`
	LastStatus        DiagnosticsStatus `json:"lastStatus,omitempty"`
	StructuredOutput  *bool             `json:"structuredOutput,omitempty"`
	CheckedAt         *time.Time        `json:"checkedAt,omitempty"`
	EndpointReachable *bool             `json:"endpointReachable,omitempty"`
	LastSeenAt        *time.Time        `json:"lastSeenAt,omitempty"`
}

// ModelProfile describes one endpoint/model pairing with its generation
// parameters and pipeline configuration.
type ModelProfile struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	EndpointBaseURL  string              `json:"endpointBaseUrl"`
	APIKey           string              `json:"-"`
	ModelID          string              `json:"modelId"`
	Temperature      float64             `json:"temperature"`
	TopP             float64             `json:"topP"`
	FrequencyPenalty float64             `json:"frequencyPenalty"`
	PresencePenalty  float64             `json:"presencePenalty"`
	MaxOutputTokens  int                 `json:"maxOutputTokens"`
	RequestTimeout   time.Duration       `json:"requestTimeout"`
	SystemPrompt     string              `json:"systemPrompt,omitempty"`
	Steps            []PipelineStep      `json:"steps"`
	Diagnostics      *ProfileDiagnostics `json:"diagnostics,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// EnabledSteps returns the profile's pipeline in execution order, falling back
// to the default pipeline when none is configured.
func (p *ModelProfile) EnabledSteps() []StepKind {
	steps := p.Steps
	if len(steps) == 0 {
		steps = DefaultSteps()
	}
	kinds := make([]StepKind, 0, len(steps))
	for _, s := range steps {
		if s.Enabled {
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

// StepResult records one pipeline stage of one attempt.
type StepResult struct {
	Kind             StepKind      `json:"kind"`
	Prompt           string        `json:"prompt"`
	Response         string        `json:"response,omitempty"`
	Latency          time.Duration `json:"latencyMs"`
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	UsageEstimated   bool          `json:"usageEstimated,omitempty"`
	FallbackUsed     bool          `json:"fallbackUsed,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// BenchmarkAttempt is the full per-question record of a run.
type BenchmarkAttempt struct {
	ID                 string                   `json:"id"`
	RunID              string                   `json:"runId"`
	QuestionID         string                   `json:"questionId"`
	Position           int                      `json:"position"`
	QuestionType       question.Type            `json:"questionType"`
	QuestionPrompt     string                   `json:"questionPrompt"`
	QuestionDifficulty string                   `json:"questionDifficulty,omitempty"`
	Steps              []StepResult             `json:"steps"`
	AnswerEval         *eval.Evaluation         `json:"answerEval,omitempty"`
	TopologyEval       *eval.TopologyEvaluation `json:"topologyEval,omitempty"`
	TopologyPred       *eval.TopologyPrediction `json:"topologyPred,omitempty"`
	Latency            time.Duration            `json:"latencyMs"`
	PromptTokens       int                      `json:"promptTokens"`
	CompletionTokens   int                      `json:"completionTokens"`
	Error              string                   `json:"error,omitempty"`
	CreatedAt          time.Time                `json:"createdAt"`
}

// TypeMetrics aggregates outcomes for one question type.
type TypeMetrics struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Accuracy float64 `json:"accuracy"`
}

// RunMetrics is the aggregate scorecard of a run.
type RunMetrics struct {
	TotalQuestions        int                    `json:"totalQuestions"`
	Attempted             int                    `json:"attempted"`
	Errored               int                    `json:"errored"`
	AnswerPassed          int                    `json:"answerPassed"`
	AnswerAccuracy        float64                `json:"answerAccuracy"`
	TopologyPassed        int                    `json:"topologyPassed"`
	TopologyAccuracy      float64                `json:"topologyAccuracy"`
	AvgTopologyScore      float64                `json:"avgTopologyScore"`
	TotalPromptTokens     int                    `json:"totalPromptTokens"`
	TotalCompletionTokens int                    `json:"totalCompletionTokens"`
	AvgLatency            time.Duration          `json:"avgLatencyMs"`
	FallbackCount         int                    `json:"fallbackCount"`
	ByType                map[string]TypeMetrics `json:"byType,omitempty"`
}

// BenchmarkRun is the persistent record of one benchmark execution. Profile
// name and model id are denormalized so a run stays readable after its
// profile is edited or deleted.
type BenchmarkRun struct {
	ID             string      `json:"id"`
	Label          string      `json:"label"`
	ProfileID      string      `json:"profileId"`
	ProfileName    string      `json:"profileName"`
	ProfileModelID string      `json:"profileModelId"`
	Status         RunStatus   `json:"status"`
	QuestionIDs    []string    `json:"questionIds"`
	DatasetLabel   string      `json:"datasetLabel,omitempty"`
	DatasetTotal   int         `json:"datasetTotal"`
	DatasetFilter  string      `json:"datasetFilter,omitempty"`
	Metrics        *RunMetrics `json:"metrics,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	StartedAt      *time.Time  `json:"startedAt,omitempty"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
}

// DiagnosticsLevel selects the depth of a diagnostics check.
type DiagnosticsLevel string

const (
	LevelHandshake DiagnosticsLevel = "handshake"
	LevelReadiness DiagnosticsLevel = "readiness"
)

// DiagnosticsStatus is the overall verdict of a diagnostics check.
type DiagnosticsStatus string

const (
	DiagnosticsPass DiagnosticsStatus = "pass"
	DiagnosticsFail DiagnosticsStatus = "fail"
)

// DiagnosticsLogEntry is one timestamped line of a diagnostics transcript.
type DiagnosticsLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"` // info | warn | error
	Message   string    `json:"message"`
}

// DiagnosticsResult is the persistent record of one diagnostics check.
type DiagnosticsResult struct {
	ID          string                `json:"id"`
	ProfileID   string                `json:"profileId"`
	Level       DiagnosticsLevel      `json:"level"`
	Status      DiagnosticsStatus     `json:"status"`
	Summary     string                `json:"summary,omitempty"`
	StartedAt   time.Time             `json:"startedAt"`
	CompletedAt *time.Time            `json:"completedAt,omitempty"`
	Log         []DiagnosticsLogEntry `json:"log,omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
}

// newID generates a lexically sortable unique identifier.
func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
