// Package catalog provides the subject→topic→subtopic topology used both for
// classification prompts and for resolving identifiers to human-readable names.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Subtopic is a leaf node of the topology.
type Subtopic struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Topic groups subtopics under a subject.
type Topic struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Subtopics []Subtopic `yaml:"subtopics" json:"subtopics,omitempty"`
}

// Subject is a top-level node of the topology.
type Subject struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Topics []Topic `yaml:"topics" json:"topics,omitempty"`
}

// Entry is a single id/name pair offered to the model during classification.
type Entry struct {
	ID   string
	Name string
}

// Catalog is a read-only hierarchical topology lookup.
type Catalog struct {
	subjects []Subject

	subjectByID  map[string]*Subject
	topicByID    map[string]*Topic
	subtopicByID map[string]*Subtopic
}

// Load reads a topology catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var doc struct {
		Subjects []Subject `yaml:"subjects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	return New(doc.Subjects), nil
}

// New builds a catalog from an in-memory subject tree.
func New(subjects []Subject) *Catalog {
	c := &Catalog{
		subjects:     subjects,
		subjectByID:  make(map[string]*Subject),
		topicByID:    make(map[string]*Topic),
		subtopicByID: make(map[string]*Subtopic),
	}
	for i := range c.subjects {
		subject := &c.subjects[i]
		c.subjectByID[subject.ID] = subject
		for j := range subject.Topics {
			topic := &subject.Topics[j]
			c.topicByID[topic.ID] = topic
			for k := range topic.Subtopics {
				c.subtopicByID[topic.Subtopics[k].ID] = &topic.Subtopics[k]
			}
		}
	}
	return c
}

// Subjects returns all top-level entries.
func (c *Catalog) Subjects() []Entry {
	entries := make([]Entry, 0, len(c.subjects))
	for i := range c.subjects {
		entries = append(entries, Entry{ID: c.subjects[i].ID, Name: c.subjects[i].Name})
	}
	return entries
}

// TopicsOf returns the topic entries under a subject. Unknown or empty subject
// ids yield an empty slice, never an error; classification prompts handle the
// no-options case explicitly.
func (c *Catalog) TopicsOf(subjectID string) []Entry {
	subject, ok := c.subjectByID[subjectID]
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, len(subject.Topics))
	for i := range subject.Topics {
		entries = append(entries, Entry{ID: subject.Topics[i].ID, Name: subject.Topics[i].Name})
	}
	return entries
}

// SubtopicsOf returns the subtopic entries under a topic.
func (c *Catalog) SubtopicsOf(topicID string) []Entry {
	topic, ok := c.topicByID[topicID]
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, len(topic.Subtopics))
	for i := range topic.Subtopics {
		entries = append(entries, Entry{ID: topic.Subtopics[i].ID, Name: topic.Subtopics[i].Name})
	}
	return entries
}

// SubjectName resolves a subject id to its display name, falling back to the id.
func (c *Catalog) SubjectName(id string) string {
	if subject, ok := c.subjectByID[id]; ok {
		return subject.Name
	}
	return id
}

// TopicName resolves a topic id to its display name, falling back to the id.
func (c *Catalog) TopicName(id string) string {
	if topic, ok := c.topicByID[id]; ok {
		return topic.Name
	}
	return id
}

// SubtopicName resolves a subtopic id to its display name, falling back to the id.
func (c *Catalog) SubtopicName(id string) string {
	if subtopic, ok := c.subtopicByID[id]; ok {
		return subtopic.Name
	}
	return id
}
