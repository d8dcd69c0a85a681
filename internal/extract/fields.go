package extract

import (
	"encoding/json"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
)

// Outcome is the tagged result of one field: Ok(Value) when Err is nil,
// Failed(Err) otherwise.
type Outcome struct {
	Field constants.FieldName
	Value string
	Err   error
}

func (o Outcome) OK() bool { return o.Err == nil }

// FieldsResult holds one outcome per field, in extraction order.
type FieldsResult struct {
	Outcomes []Outcome
}

// Map collapses outcomes to the wire shape: every field present, failures as "".
func (r FieldsResult) Map() map[string]string {
	out := make(map[string]string, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.OK() {
			out[string(o.Field)] = o.Value
		} else {
			out[string(o.Field)] = ""
		}
	}
	return out
}

func (r FieldsResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// Failures maps failed fields to their reasons.
func (r FieldsResult) Failures() map[string]string {
	out := map[string]string{}
	for _, o := range r.Outcomes {
		if !o.OK() {
			out[string(o.Field)] = o.Err.Error()
		}
	}
	return out
}

// Empty lists fields whose value is empty, whether failed or not found.
func (r FieldsResult) Empty() []string {
	var out []string
	for _, o := range r.Outcomes {
		if !o.OK() || o.Value == "" {
			out = append(out, string(o.Field))
		}
	}
	return out
}

// Get returns the value of field, or "" when absent or failed.
func (r FieldsResult) Get(field constants.FieldName) string {
	for _, o := range r.Outcomes {
		if o.Field == field && o.OK() {
			return o.Value
		}
	}
	return ""
}
