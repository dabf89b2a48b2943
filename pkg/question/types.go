// Package question defines the immutable question bank records and the
// read-only repository the benchmark engine draws runs from.
package question

// Type enumerates the supported question kinds.
type Type string

const (
	TypeSingleChoice Type = "single-choice"
	TypeMultiChoice  Type = "multi-choice"
	TypeNumeric      Type = "numeric"
	TypeBoolean      Type = "boolean"
	TypeDescriptive  Type = "descriptive"
)

// Option is one selectable answer of a choice question.
type Option struct {
	ID    string `yaml:"id" json:"id"`
	Order int    `yaml:"order" json:"order"`
	Text  string `yaml:"text" json:"text"`
}

// NumericRange is an inclusive [min,max] acceptance window.
type NumericRange struct {
	Min *float64 `yaml:"min" json:"min,omitempty"`
	Max *float64 `yaml:"max" json:"max,omitempty"`
}

// AnswerSpec holds the ground truth; which fields are set depends on Type.
type AnswerSpec struct {
	CorrectIndex    *int          `yaml:"correct_index" json:"correctIndex,omitempty"`
	CorrectIndices  []int         `yaml:"correct_indices" json:"correctIndices,omitempty"`
	Range           *NumericRange `yaml:"range" json:"range,omitempty"`
	AcceptedAnswers []string      `yaml:"accepted_answers" json:"acceptedAnswers,omitempty"`
	CaseSensitive   bool          `yaml:"case_sensitive" json:"caseSensitive,omitempty"`
	BoolValue       *bool         `yaml:"bool_value" json:"boolValue,omitempty"`
}

// Topology is the three-level classification ground truth. Each level is
// optional; unset levels are not scored.
type Topology struct {
	SubjectID  string `yaml:"subject_id" json:"subjectId,omitempty"`
	TopicID    string `yaml:"topic_id" json:"topicId,omitempty"`
	SubtopicID string `yaml:"subtopic_id" json:"subtopicId,omitempty"`
}

// Question is an immutable record from the curated question bank.
type Question struct {
	ID           string     `yaml:"id" json:"id"`
	Type         Type       `yaml:"type" json:"type"`
	Prompt       string     `yaml:"prompt" json:"prompt"`
	Instructions string     `yaml:"instructions" json:"instructions,omitempty"`
	Options      []Option   `yaml:"options" json:"options,omitempty"`
	Answer       AnswerSpec `yaml:"answer" json:"answer"`
	Difficulty   string     `yaml:"difficulty" json:"difficulty,omitempty"`
	Topology     Topology   `yaml:"topology" json:"topology"`
	Tags         []string   `yaml:"tags" json:"tags,omitempty"`
}
