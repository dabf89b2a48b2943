package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return New([]Subject{
		{
			ID: "math", Name: "Mathematics",
			Topics: []Topic{
				{
					ID: "algebra", Name: "Algebra",
					Subtopics: []Subtopic{
						{ID: "linear-eq", Name: "Linear Equations"},
						{ID: "quadratics", Name: "Quadratics"},
					},
				},
				{ID: "geometry", Name: "Geometry"},
			},
		},
		{ID: "physics", Name: "Physics"},
	})
}

func TestSubjects(t *testing.T) {
	c := testCatalog()
	subjects := c.Subjects()
	require.Len(t, subjects, 2)
	assert.Equal(t, Entry{ID: "math", Name: "Mathematics"}, subjects[0])
}

func TestTopicsOf(t *testing.T) {
	c := testCatalog()

	topics := c.TopicsOf("math")
	require.Len(t, topics, 2)
	assert.Equal(t, "algebra", topics[0].ID)

	assert.Empty(t, c.TopicsOf("physics"), "subject without topics yields empty slice")
	assert.Empty(t, c.TopicsOf("unknown"))
	assert.Empty(t, c.TopicsOf(""))
}

func TestSubtopicsOf(t *testing.T) {
	c := testCatalog()

	subtopics := c.SubtopicsOf("algebra")
	require.Len(t, subtopics, 2)
	assert.Equal(t, "Linear Equations", subtopics[0].Name)

	assert.Empty(t, c.SubtopicsOf("geometry"), "empty topic yields empty slice")
}

func TestNameResolutionFallsBackToID(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, "Mathematics", c.SubjectName("math"))
	assert.Equal(t, "Algebra", c.TopicName("algebra"))
	assert.Equal(t, "Quadratics", c.SubtopicName("quadratics"))
	assert.Equal(t, "ghost", c.SubjectName("ghost"))
	assert.Equal(t, "ghost", c.TopicName("ghost"))
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	data := []byte(`
subjects:
  - id: cs
    name: Computer Science
    topics:
      - id: algos
        name: Algorithms
        subtopics:
          - id: sorting
            name: Sorting
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Computer Science", c.SubjectName("cs"))
	require.Len(t, c.SubtopicsOf("algos"), 1)
	assert.Equal(t, "Sorting", c.SubtopicsOf("algos")[0].Name)
}
