// Package intake holds the client-side questionnaire engine: the question
// schema as served by the intake API, visibility evaluation for conditional
// questions, category grouping, field-key derivation, submission validation
// and payload construction.
package intake

// Question is one node of the questionnaire forest as returned by
// GET /api/questions. A question with a ParentQuestionID is only shown when
// the parent's answer equals TriggerValue.
type Question struct {
	ID               int64    `json:"id" yaml:"id"`
	Question         string   `json:"question" yaml:"question"`
	Category         string   `json:"category" yaml:"category"`
	FieldName        string   `json:"field_name" yaml:"field_name"`
	Options          []string `json:"options" yaml:"options"`
	ParentQuestionID *int64   `json:"parent_question_id" yaml:"parent_question_id,omitempty"`
	TriggerValue     *string  `json:"trigger_value" yaml:"trigger_value,omitempty"`
	Optional         bool     `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// HasParent reports whether the question depends on another question.
func (q Question) HasParent() bool {
	return q.ParentQuestionID != nil
}

// Required reports whether a visible question must be answered.
func (q Question) Required() bool {
	return !q.Optional
}

// FreeText reports whether the question has no fixed option list.
func (q Question) FreeText() bool {
	return len(q.Options) == 0
}

// Answers maps a field key to the current answer. Absent keys are
// unanswered.
type Answers map[string]string

// Clone returns an independent copy of the answer set.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// CategoryGroup is one category and its questions in schema order.
type CategoryGroup struct {
	Category  string     `json:"category"`
	Questions []Question `json:"questions"`
}

// GroupByCategory groups questions by category. Categories appear in the
// order they are first seen and questions keep their relative input order.
func GroupByCategory(questions []Question) []CategoryGroup {
	var groups []CategoryGroup
	index := make(map[string]int)
	for _, q := range questions {
		i, ok := index[q.Category]
		if !ok {
			i = len(groups)
			index[q.Category] = i
			groups = append(groups, CategoryGroup{Category: q.Category})
		}
		groups[i].Questions = append(groups[i].Questions, q)
	}
	return groups
}
