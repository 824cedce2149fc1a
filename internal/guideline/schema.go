package guideline

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// guidelineSchemaJSON is the structured-output contract for guideline
// extraction. The same schema is sent to the model as a response constraint
// and used to revalidate what comes back before it is adopted.
const guidelineSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"description": {"type": "string"},
		"applicable_categories": {
			"type": "array",
			"items": {"type": "string", "enum": ["IMAGE", "VIDEO"]}
		},
		"criteria": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"criterion_id": {"type": "string"},
					"name": {"type": "string"},
					"criterion_value": {"type": "string"},
					"severity": {"type": "string", "enum": ["WARNING", "BLOCKER"]},
					"category": {"type": "string"}
				},
				"required": ["name", "criterion_value", "severity", "category"]
			}
		}
	},
	"required": ["name", "description", "criteria"]
}`

const schemaResource = "guideline.schema.json"

// compileGuidelineSchema compiles the extraction output schema.
func compileGuidelineSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(guidelineSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse guideline schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("add guideline schema resource: %w", err)
	}

	schema, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile guideline schema: %w", err)
	}
	return schema, nil
}
