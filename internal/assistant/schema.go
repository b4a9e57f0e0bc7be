package assistant

import "encoding/json"

// Field describes one property of the medication response schema.
type Field struct {
	Name        string
	Description string
	List        bool
}

// MedicationFields lists the five required properties in display order.
var MedicationFields = []Field{
	{Name: "name", Description: `The common brand name or generic name of the medication. If unknown, return "Unknown".`},
	{Name: "description", Description: "A brief description of what the medication is used for."},
	{Name: "dosage", Description: "Common dosage information or instructions."},
	{Name: "sideEffects", Description: "A list of common side effects.", List: true},
	{Name: "warnings", Description: "A list of important warnings or contraindications.", List: true},
}

// MedicationSchema returns MedicationFields as a JSON Schema object.
func MedicationSchema() json.RawMessage {
	props := make(map[string]any, len(MedicationFields))
	required := make([]string, 0, len(MedicationFields))
	for _, f := range MedicationFields {
		if f.List {
			props[f.Name] = map[string]any{
				"type":        "array",
				"description": f.Description,
				"items":       map[string]any{"type": "string"},
			}
		} else {
			props[f.Name] = map[string]any{"type": "string", "description": f.Description}
		}
		required = append(required, f.Name)
	}

	schema, err := json.Marshal(map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	})
	if err != nil {
		panic(err)
	}
	return schema
}
