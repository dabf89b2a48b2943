package question

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Summary describes a dataset selection for display and run records.
type Summary struct {
	Label      string `json:"label"`
	Total      int    `json:"total"`
	FilterDesc string `json:"filterDesc,omitempty"`
}

// Filter narrows the question bank for a run.
type Filter struct {
	Types        []Type
	Tags         []string
	Difficulties []string
	Limit        int
}

// Repository is a read-only ordered collection of questions.
type Repository struct {
	label     string
	questions []Question
	byID      map[string]*Question
}

// Load reads a question bank from a YAML file.
func Load(path string) (*Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank: %w", err)
	}

	var doc struct {
		Label     string     `yaml:"label"`
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}

	return NewRepository(doc.Label, doc.Questions)
}

// NewRepository builds a repository from in-memory questions, normalizing
// option order and rejecting duplicate ids.
func NewRepository(label string, questions []Question) (*Repository, error) {
	if label == "" {
		label = "question bank"
	}

	repo := &Repository{
		label:     label,
		questions: make([]Question, 0, len(questions)),
		byID:      make(map[string]*Question, len(questions)),
	}

	for _, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("question with empty id")
		}
		if _, dup := repo.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		sort.SliceStable(q.Options, func(i, j int) bool {
			return q.Options[i].Order < q.Options[j].Order
		})
		repo.questions = append(repo.questions, q)
	}
	for i := range repo.questions {
		repo.byID[repo.questions[i].ID] = &repo.questions[i]
	}
	return repo, nil
}

// Get returns the question with the given id.
func (r *Repository) Get(id string) (*Question, bool) {
	q, ok := r.byID[id]
	return q, ok
}

// All returns every question in bank order.
func (r *Repository) All() []Question {
	out := make([]Question, len(r.questions))
	copy(out, r.questions)
	return out
}

// Len returns the number of questions in the bank.
func (r *Repository) Len() int {
	return len(r.questions)
}

// Select applies a filter and returns the matching questions in bank order,
// along with a summary describing the selection.
func (r *Repository) Select(filter Filter) ([]Question, Summary) {
	var selected []Question
	for _, q := range r.questions {
		if !matchesFilter(q, filter) {
			continue
		}
		selected = append(selected, q)
		if filter.Limit > 0 && len(selected) >= filter.Limit {
			break
		}
	}

	return selected, Summary{
		Label:      r.label,
		Total:      len(selected),
		FilterDesc: describeFilter(filter),
	}
}

func matchesFilter(q Question, filter Filter) bool {
	if len(filter.Types) > 0 && !containsType(filter.Types, q.Type) {
		return false
	}
	if len(filter.Difficulties) > 0 && !containsFold(filter.Difficulties, q.Difficulty) {
		return false
	}
	if len(filter.Tags) > 0 {
		found := false
		for _, want := range filter.Tags {
			if containsFold(q.Tags, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func describeFilter(filter Filter) string {
	var parts []string
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		parts = append(parts, "types="+strings.Join(types, ","))
	}
	if len(filter.Tags) > 0 {
		parts = append(parts, "tags="+strings.Join(filter.Tags, ","))
	}
	if len(filter.Difficulties) > 0 {
		parts = append(parts, "difficulty="+strings.Join(filter.Difficulties, ","))
	}
	if filter.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", filter.Limit))
	}
	if len(parts) == 0 {
		return "all questions"
	}
	return strings.Join(parts, " ")
}
