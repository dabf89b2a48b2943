package benchmark

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/catalog"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/eval"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/model"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/storage"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// fakeClient is a scripted endpoint: each schema class maps to a canned
// response body.
type fakeClient struct {
	mu        sync.Mutex
	responses map[model.SchemaClass]string
	errOn     map[model.SchemaClass]error
	fallback  bool
	models    []model.ModelInfo
	listErr   error
	listCalls int
	calls     []model.CompletionRequest
	delay     time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		responses: map[model.SchemaClass]string{
			model.SchemaTopologySubject:  `{"subjectId": "phys", "confidence": 0.9}`,
			model.SchemaTopologyTopic:    `{"topicId": "mech", "confidence": 0.8}`,
			model.SchemaTopologySubtopic: `{"subtopicId": "kin", "confidence": 0.7}`,
			model.SchemaAnswer:           `{"answer": "B", "explanation": "four", "confidence": 0.95}`,
			model.SchemaEcho:             `{"answer": "ready"}`,
		},
		errOn:  map[model.SchemaClass]error{},
		models: []model.ModelInfo{{ID: "test-model", OwnedBy: "library"}},
	}
}

func (f *fakeClient) Complete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if err := f.errOn[req.Schema]; err != nil {
		return nil, err
	}
	return &model.CompletionResult{
		Text:         f.responses[req.Schema],
		Usage:        model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Latency:      time.Millisecond,
		FallbackUsed: f.fallback,
	}, nil
}

func (f *fakeClient) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var (
	passEval = eval.Evaluation{Expected: "4", Received: "4", Passed: true, Score: 1}
	failEval = eval.Evaluation{Expected: "4", Received: "3", Passed: false, Score: 0}
)

func testTopology() *catalog.Catalog {
	return catalog.New([]catalog.Subject{
		{
			ID: "phys", Name: "Physics",
			Topics: []catalog.Topic{
				{
					ID: "mech", Name: "Mechanics",
					Subtopics: []catalog.Subtopic{
						{ID: "kin", Name: "Kinematics"},
						{ID: "dyn", Name: "Dynamics"},
					},
				},
			},
		},
		{ID: "chem", Name: "Chemistry"},
	})
}

func testQuestions(t *testing.T) *question.Repository {
	t.Helper()
	idx := 1
	truthy := true
	repo, err := question.NewRepository("unit test bank", []question.Question{
		{
			ID:   "q1",
			Type: question.TypeSingleChoice,
			Prompt: "What is 2 + 2?",
			Options: []question.Option{
				{ID: "q1-a", Order: 0, Text: "3"},
				{ID: "q1-b", Order: 1, Text: "4"},
				{ID: "q1-c", Order: 2, Text: "5"},
			},
			Answer:   question.AnswerSpec{CorrectIndex: &idx},
			Topology: question.Topology{SubjectID: "phys", TopicID: "mech", SubtopicID: "kin"},
		},
		{
			ID:       "q2",
			Type:     question.TypeBoolean,
			Prompt:   "Is the sky blue?",
			Answer:   question.AnswerSpec{BoolValue: &truthy},
			Topology: question.Topology{SubjectID: "phys"},
		},
	})
	require.NoError(t, err)
	return repo
}

func testProfile() *ModelProfile {
	return &ModelProfile{
		Name:            "local llama",
		EndpointBaseURL: "http://localhost:11434/v1",
		ModelID:         "test-model",
		Temperature:     0.2,
		TopP:            0.9,
		MaxOutputTokens: 256,
		RequestTimeout:  30 * time.Second,
		Steps:           DefaultSteps(),
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.DB())
}

func newTestEngine(t *testing.T, store *Store, client *fakeClient, hub *telemetry.Hub) *Engine {
	t.Helper()
	return NewEngine(Dependencies{
		Store:        store,
		Questions:    testQuestions(t),
		Catalog:      testTopology(),
		Hub:          hub,
		LogDir:       t.TempDir(),
		ExcerptLimit: 40,
		NewCompleter: func(*ModelProfile) Completer { return client },
	})
}
