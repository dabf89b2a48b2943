package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/catalog"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
)

func testCatalog() *catalog.Catalog {
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
				{ID: "thermo", Name: "Thermodynamics"},
			},
		},
		{ID: "chem", Name: "Chemistry"},
	})
}

func TestTopologyAllLevelsMatch(t *testing.T) {
	truth := question.Topology{SubjectID: "phys", TopicID: "mech", SubtopicID: "kin"}
	pred := TopologyPrediction{SubjectID: "phys", TopicID: "mech", SubtopicID: "kin"}

	result := EvaluateTopology(truth, pred, testCatalog())
	assert.True(t, result.Passed)
	assert.Equal(t, 1.0, result.Score)
	assert.Empty(t, result.Note)
	assert.Equal(t, "Physics > Mechanics > Kinematics", result.Expected)
}

func TestTopologySubjectOnlyGroundTruth(t *testing.T) {
	// Only the subject is defined, so topic and subtopic predictions are not
	// scored either way.
	truth := question.Topology{SubjectID: "phys"}
	pred := TopologyPrediction{SubjectID: "phys", TopicID: "thermo", SubtopicID: "dyn"}

	result := EvaluateTopology(truth, pred, testCatalog())
	assert.True(t, result.Passed)
	assert.Equal(t, 1.0, result.Score)
}

func TestTopologyPartialCredit(t *testing.T) {
	truth := question.Topology{SubjectID: "phys", TopicID: "mech", SubtopicID: "kin"}
	pred := TopologyPrediction{SubjectID: "phys", TopicID: "mech", SubtopicID: "dyn"}

	result := EvaluateTopology(truth, pred, testCatalog())
	assert.False(t, result.Passed)
	assert.InDelta(t, 2.0/3.0, result.Score, 1e-9)
	assert.Contains(t, result.Note, "subtopic: expected Kinematics, got Dynamics")
}

func TestTopologyAbsentPredictionScoresZero(t *testing.T) {
	truth := question.Topology{SubjectID: "phys", TopicID: "mech"}
	pred := TopologyPrediction{SubjectID: "phys"}

	result := EvaluateTopology(truth, pred, testCatalog())
	assert.False(t, result.Passed)
	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.Contains(t, result.Note, "got (none)")
}

func TestTopologyNoGroundTruthPassesTrivially(t *testing.T) {
	result := EvaluateTopology(question.Topology{}, TopologyPrediction{SubjectID: "chem"}, testCatalog())
	assert.True(t, result.Passed)
	assert.Equal(t, 1.0, result.Score)
}

func TestTopologyConfidenceFallsBackToShallowerStage(t *testing.T) {
	pred := TopologyPrediction{
		SubjectID:         "phys",
		SubjectConfidence: floatPtr(0.6),
		TopicID:           "mech",
		TopicConfidence:   floatPtr(0.4),
	}

	result := EvaluateTopology(question.Topology{SubjectID: "phys"}, pred, testCatalog())
	assert.NotNil(t, result.Confidence)
	assert.Equal(t, 0.4, *result.Confidence)

	pred.TopicConfidence = nil
	result = EvaluateTopology(question.Topology{SubjectID: "phys"}, pred, testCatalog())
	assert.Equal(t, 0.6, *result.Confidence)
}

func TestMergeStages(t *testing.T) {
	subject := StagePrediction{Stage: StageSubject, SubjectID: "phys", Confidence: floatPtr(0.9)}
	topic := StagePrediction{Stage: StageTopic, SubjectID: "phys", TopicID: "mech", Confidence: floatPtr(0.7)}
	subtopic := StagePrediction{Stage: StageSubtopic, SubjectID: "phys", TopicID: "mech", SubtopicID: "kin"}

	pred := MergeStages(subject, topic, subtopic)
	assert.Equal(t, "phys", pred.SubjectID)
	assert.Equal(t, "mech", pred.TopicID)
	assert.Equal(t, "kin", pred.SubtopicID)
	assert.Equal(t, 0.9, *pred.SubjectConfidence)
	assert.Equal(t, 0.7, *pred.TopicConfidence)
	assert.Nil(t, pred.SubtopicConfidence)
}
