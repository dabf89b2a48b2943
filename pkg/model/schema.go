package model

// SchemaClass tags a completion request with the structured-output schema it
// expects the endpoint to constrain the response to.
type SchemaClass string

const (
	SchemaAnswer           SchemaClass = "answer"
	SchemaTopologySubject  SchemaClass = "topology-subject"
	SchemaTopologyTopic    SchemaClass = "topology-topic"
	SchemaTopologySubtopic SchemaClass = "topology-subtopic"
	SchemaEcho             SchemaClass = "echo"
)

// schemaFor returns the response_format payload for a schema class. Unknown
// classes return nil, which sends the request without a constraint.
func schemaFor(class SchemaClass) *ResponseFormat {
	schema := schemaBody(class)
	if schema == nil {
		return nil
	}
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name:   string(class),
			Strict: true,
			Schema: schema,
		},
	}
}

func schemaBody(class SchemaClass) map[string]any {
	switch class {
	case SchemaAnswer:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"anyOf": []any{
						map[string]any{"type": "string"},
						map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
				"explanation": map[string]any{"type": "string"},
				"confidence":  map[string]any{"type": "number"},
			},
			"required":             []any{"answer"},
			"additionalProperties": false,
		}
	case SchemaTopologySubject:
		return idSchema("subjectId")
	case SchemaTopologyTopic:
		return idSchema("topicId")
	case SchemaTopologySubtopic:
		return idSchema("subtopicId")
	case SchemaEcho:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{"type": "string"},
			},
			"required":             []any{"answer"},
			"additionalProperties": false,
		}
	default:
		return nil
	}
}

func idSchema(field string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			field: map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "null"},
				},
			},
			"confidence": map[string]any{"type": "number"},
		},
		"required":             []any{field},
		"additionalProperties": false,
	}
}
