package question

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const bulkPayloadSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"minItems": 1,
			"maxItems": 1000,
			"items": {
				"type": "object",
				"required": ["subject", "academic_year", "difficulty", "prompt", "options", "correct_answer"],
				"properties": {
					"subject": {"type": "string", "minLength": 1},
					"academic_year": {"type": "string", "minLength": 1},
					"difficulty": {"type": "string"},
					"topic": {"type": "string"},
					"prompt": {
						"oneOf": [
							{"type": "string", "minLength": 1},
							{
								"type": "object",
								"properties": {
									"kind": {"enum": ["plain_text", "qa_pair"]},
									"text": {"type": "string"},
									"question": {"type": "string"},
									"answer": {"type": "string"}
								}
							}
						]
					},
					"options": {
						"type": "array",
						"minItems": 2,
						"items": {"type": "string"}
					},
					"correct_answer": {"type": "integer", "minimum": 0},
					"explanation": {"type": "string"}
				}
			}
		}
	}
}`

var (
	bulkSchemaOnce sync.Once
	bulkSchema     *gojsonschema.Schema
	bulkSchemaErr  error
)

type bulkPayload struct {
	Questions []QuestionInput `json:"questions"`
}

func loadBulkSchema() (*gojsonschema.Schema, error) {
	bulkSchemaOnce.Do(func() {
		bulkSchema, bulkSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(bulkPayloadSchema))
	})
	return bulkSchema, bulkSchemaErr
}

// DecodeBulkPayload checks raw against the bulk import schema before decoding
// it. Schema violations come back as a *BulkError keyed by 1-based row.
func DecodeBulkPayload(raw []byte) ([]QuestionInput, error) {
	schema, err := loadBulkSchema()
	if err != nil {
		return nil, fmt.Errorf("load bulk schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, invalid("body", "malformed JSON")
	}
	if !result.Valid() {
		rows := make([]RowError, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			row, field := splitSchemaField(e.Field())
			rows = append(rows, RowError{Row: row, Field: field, Error: e.Description()})
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Row < rows[j].Row })
		return nil, &BulkError{Rows: rows}
	}

	var payload bulkPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, invalid("body", err.Error())
	}
	return payload.Questions, nil
}

// splitSchemaField turns "questions.2.options" into (3, "options").
func splitSchemaField(path string) (int, string) {
	parts := strings.Split(path, ".")
	if len(parts) >= 2 && parts[0] == "questions" {
		if idx, err := strconv.Atoi(parts[1]); err == nil {
			return idx + 1, strings.Join(parts[2:], ".")
		}
	}
	return 0, path
}
