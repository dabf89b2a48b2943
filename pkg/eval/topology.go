package eval

import (
	"fmt"
	"strings"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
)

// TopologyPrediction is the accumulated outcome of the classification cascade.
type TopologyPrediction struct {
	SubjectID  string `json:"subjectId,omitempty"`
	TopicID    string `json:"topicId,omitempty"`
	SubtopicID string `json:"subtopicId,omitempty"`

	SubjectConfidence  *float64 `json:"subjectConfidence,omitempty"`
	TopicConfidence    *float64 `json:"topicConfidence,omitempty"`
	SubtopicConfidence *float64 `json:"subtopicConfidence,omitempty"`
}

// TopologyEvaluation is the graded outcome of the classification cascade.
type TopologyEvaluation struct {
	Expected   string   `json:"expected"`
	Received   string   `json:"received"`
	Passed     bool     `json:"passed"`
	Score      float64  `json:"score"`
	Note       string   `json:"note,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// NameResolver resolves topology identifiers to display names for notes.
// *catalog.Catalog satisfies it.
type NameResolver interface {
	SubjectName(id string) string
	TopicName(id string) string
	SubtopicName(id string) string
}

// MergeStages folds per-stage predictions into one record. Later stages win
// for identifiers they own; confidences are kept per stage.
func MergeStages(stages ...StagePrediction) TopologyPrediction {
	var pred TopologyPrediction
	for _, s := range stages {
		switch s.Stage {
		case StageSubject:
			pred.SubjectID = s.SubjectID
			pred.SubjectConfidence = s.Confidence
		case StageTopic:
			if s.SubjectID != "" {
				pred.SubjectID = s.SubjectID
			}
			pred.TopicID = s.TopicID
			pred.TopicConfidence = s.Confidence
		case StageSubtopic:
			if s.SubjectID != "" {
				pred.SubjectID = s.SubjectID
			}
			if s.TopicID != "" {
				pred.TopicID = s.TopicID
			}
			pred.SubtopicID = s.SubtopicID
			pred.SubtopicConfidence = s.Confidence
		}
	}
	return pred
}

// EvaluateTopology grades a prediction against the question's topology ground
// truth. Only levels with ground truth defined are scored; identifiers compare
// by exact string equality, and the score is the matched fraction of scored
// levels. A question with no topology passes trivially.
func EvaluateTopology(truth question.Topology, pred TopologyPrediction, names NameResolver) TopologyEvaluation {
	type level struct {
		label      string
		expected   string
		received   string
		expectName string
		gotName    string
	}

	levels := []level{}
	if truth.SubjectID != "" {
		levels = append(levels, level{
			label: "subject", expected: truth.SubjectID, received: pred.SubjectID,
			expectName: resolveName(names, StageSubject, truth.SubjectID),
			gotName:    resolveName(names, StageSubject, pred.SubjectID),
		})
	}
	if truth.TopicID != "" {
		levels = append(levels, level{
			label: "topic", expected: truth.TopicID, received: pred.TopicID,
			expectName: resolveName(names, StageTopic, truth.TopicID),
			gotName:    resolveName(names, StageTopic, pred.TopicID),
		})
	}
	if truth.SubtopicID != "" {
		levels = append(levels, level{
			label: "subtopic", expected: truth.SubtopicID, received: pred.SubtopicID,
			expectName: resolveName(names, StageSubtopic, truth.SubtopicID),
			gotName:    resolveName(names, StageSubtopic, pred.SubtopicID),
		})
	}

	result := TopologyEvaluation{
		Expected:   describeChain(names, truth),
		Received:   describePrediction(names, pred),
		Confidence: deepestConfidence(pred),
	}

	if len(levels) == 0 {
		result.Passed = true
		result.Score = 1
		return result
	}

	matched := 0
	var mismatches []string
	for _, l := range levels {
		if l.expected == l.received {
			matched++
			continue
		}
		got := l.gotName
		if got == "" {
			got = "(none)"
		}
		mismatches = append(mismatches, fmt.Sprintf("%s: expected %s, got %s", l.label, l.expectName, got))
	}

	result.Score = float64(matched) / float64(len(levels))
	result.Passed = matched == len(levels)
	result.Note = strings.Join(mismatches, "; ")
	return result
}

// deepestConfidence prefers the most specific stage that reported one.
func deepestConfidence(pred TopologyPrediction) *float64 {
	if pred.SubtopicConfidence != nil {
		return pred.SubtopicConfidence
	}
	if pred.TopicConfidence != nil {
		return pred.TopicConfidence
	}
	return pred.SubjectConfidence
}

func resolveName(names NameResolver, stage Stage, id string) string {
	if id == "" {
		return ""
	}
	if names == nil {
		return id
	}
	switch stage {
	case StageSubject:
		return names.SubjectName(id)
	case StageTopic:
		return names.TopicName(id)
	default:
		return names.SubtopicName(id)
	}
}

func describeChain(names NameResolver, truth question.Topology) string {
	return joinChain(
		resolveName(names, StageSubject, truth.SubjectID),
		resolveName(names, StageTopic, truth.TopicID),
		resolveName(names, StageSubtopic, truth.SubtopicID),
	)
}

func describePrediction(names NameResolver, pred TopologyPrediction) string {
	return joinChain(
		resolveName(names, StageSubject, pred.SubjectID),
		resolveName(names, StageTopic, pred.TopicID),
		resolveName(names, StageSubtopic, pred.SubtopicID),
	)
}

func joinChain(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "(none)"
	}
	return strings.Join(out, " > ")
}
