package assistant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vbonduro/pillpal/internal/domain"
)

var (
	ErrInvalidJSON  = errors.New("response is not a JSON object")
	ErrMissingField = errors.New("response is missing a required field")
	ErrFieldType    = errors.New("response field has the wrong type")
)

// ParseMedication decodes the model's JSON answer. All five fields must be
// present; list fields must be arrays of strings. A Markdown code fence
// around the object is tolerated.
func ParseMedication(raw string) (*domain.Medication, error) {
	body := stripFence(raw)
	if !gjson.Valid(body) {
		return nil, ErrInvalidJSON
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return nil, ErrInvalidJSON
	}

	med := &domain.Medication{}
	strs := map[string]*string{
		"name":        &med.Name,
		"description": &med.Description,
		"dosage":      &med.Dosage,
	}
	lists := map[string]*[]string{
		"sideEffects": &med.SideEffects,
		"warnings":    &med.Warnings,
	}

	for _, f := range MedicationFields {
		v := doc.Get(f.Name)
		if !v.Exists() {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.Name)
		}
		if !f.List {
			if v.Type != gjson.String {
				return nil, fmt.Errorf("%w: %s must be a string", ErrFieldType, f.Name)
			}
			*strs[f.Name] = strings.TrimSpace(v.String())
			continue
		}
		list, err := stringList(f.Name, v)
		if err != nil {
			return nil, err
		}
		*lists[f.Name] = list
	}

	return med, nil
}

func stringList(name string, v gjson.Result) ([]string, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: %s must be an array", ErrFieldType, name)
	}
	elems := v.Array()
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if e.Type != gjson.String {
			return nil, fmt.Errorf("%w: %s must contain only strings", ErrFieldType, name)
		}
		out = append(out, e.String())
	}
	return out, nil
}

// stripFence removes a surrounding ```json ... ``` block if present.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
