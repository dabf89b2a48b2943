package benchmark

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/model"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

func newTestDiagnostics(t *testing.T, client *fakeClient) (*DiagnosticsRunner, *Store, *ModelProfile) {
	t.Helper()
	store := newTestStore(t)
	hub := telemetry.NewHub()
	t.Cleanup(hub.Close)

	profile := testProfile()
	require.NoError(t, store.SaveProfile(profile))

	runner := NewDiagnosticsRunner(store, testTopology(), hub, 40,
		func(*ModelProfile) EndpointClient { return client })
	return runner, store, profile
}

func TestHandshakePasses(t *testing.T) {
	runner, store, profile := newTestDiagnostics(t, newFakeClient())

	result, err := runner.Run(context.Background(), profile, LevelHandshake)
	require.NoError(t, err)

	assert.Equal(t, DiagnosticsPass, result.Status)
	assert.Equal(t, LevelHandshake, result.Level)
	assert.Equal(t, true, result.Metadata["structuredOutput"])
	assert.Equal(t, true, result.Metadata["modelListed"])
	require.NotNil(t, result.CompletedAt)
	assert.NotEmpty(t, result.Log)

	// The result is persisted and cached on the profile.
	history, err := store.ListDiagnostics(profile.ID, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)

	cached, err := store.GetProfile(profile.ID)
	require.NoError(t, err)
	require.NotNil(t, cached.Diagnostics)
	assert.Equal(t, DiagnosticsPass, cached.Diagnostics.LastStatus)
	require.NotNil(t, cached.Diagnostics.StructuredOutput)
	assert.True(t, *cached.Diagnostics.StructuredOutput)
}

func TestHandshakeFailsOnWrongEchoAnswer(t *testing.T) {
	client := newFakeClient()
	client.responses[model.SchemaEcho] = `{"answer": "hello there"}`
	runner, _, profile := newTestDiagnostics(t, client)

	result, err := runner.Run(context.Background(), profile, LevelHandshake)
	require.NoError(t, err, "a failed check is a result, not an error")
	assert.Equal(t, DiagnosticsFail, result.Status)
	assert.Contains(t, result.Summary, "hello there")
}

func TestHandshakeFailsWhenCatalogUnreachable(t *testing.T) {
	client := newFakeClient()
	client.listErr = errors.New("connection refused")
	runner, _, profile := newTestDiagnostics(t, client)

	result, err := runner.Run(context.Background(), profile, LevelHandshake)
	require.NoError(t, err, "a failed check is a result, not an error")
	assert.Equal(t, DiagnosticsFail, result.Status)
	assert.Contains(t, result.Summary, "model catalog")
}

func TestHandshakeRecordsFallback(t *testing.T) {
	client := newFakeClient()
	client.fallback = true
	runner, store, profile := newTestDiagnostics(t, client)

	result, err := runner.Run(context.Background(), profile, LevelHandshake)
	require.NoError(t, err)

	assert.Equal(t, DiagnosticsPass, result.Status, "fallback degrades, it does not fail")
	assert.Equal(t, false, result.Metadata["structuredOutput"])

	cached, err := store.GetProfile(profile.ID)
	require.NoError(t, err)
	require.NotNil(t, cached.Diagnostics.StructuredOutput)
	assert.False(t, *cached.Diagnostics.StructuredOutput)
}

func TestHandshakeWarnsOnUnlistedModel(t *testing.T) {
	client := newFakeClient()
	client.models = []model.ModelInfo{{ID: "some-other-model"}}
	runner, _, profile := newTestDiagnostics(t, client)

	result, err := runner.Run(context.Background(), profile, LevelHandshake)
	require.NoError(t, err)

	assert.Equal(t, DiagnosticsPass, result.Status, "an unlisted model is a warning, not a failure")
	assert.Equal(t, false, result.Metadata["modelListed"])
}

func TestReadinessRunsFullPipeline(t *testing.T) {
	client := newFakeClient()
	runner, _, profile := newTestDiagnostics(t, client)

	result, err := runner.Run(context.Background(), profile, LevelReadiness)
	require.NoError(t, err)

	assert.Equal(t, DiagnosticsPass, result.Status)
	stages, ok := result.Metadata["stages"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, stages, 4, "readiness exercises every pipeline stage")
}

func TestReadinessFailsOnProtocolBreakButKeepsTrace(t *testing.T) {
	client := newFakeClient()
	client.responses[model.SchemaTopologySubtopic] = "plain prose, no JSON"
	runner, _, profile := newTestDiagnostics(t, client)

	result, err := runner.Run(context.Background(), profile, LevelReadiness)
	require.NoError(t, err)

	assert.Equal(t, DiagnosticsFail, result.Status)
	stages, ok := result.Metadata["stages"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, stages, 3, "partial trace up to the broken stage is preserved")
	assert.NotEmpty(t, stages[2]["error"])
	assert.NotEmpty(t, stages[0]["response"], "raw responses survive into the trace")
	assert.NotEmpty(t, stages[1]["response"])
	assert.Equal(t, "plain prose, no JSON", stages[2]["response"])
}
