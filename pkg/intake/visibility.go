package intake

// Schema indexes a loaded question list for parent lookups. It is
// read-only after construction and safe for concurrent use.
type Schema struct {
	questions []Question
	byID      map[int64]int
}

// NewSchema builds a schema over questions, keeping their order. When two
// questions share an id the first one wins.
func NewSchema(questions []Question) *Schema {
	s := &Schema{
		questions: make([]Question, len(questions)),
		byID:      make(map[int64]int, len(questions)),
	}
	copy(s.questions, questions)
	for i, q := range s.questions {
		if _, dup := s.byID[q.ID]; !dup {
			s.byID[q.ID] = i
		}
	}
	return s
}

// Questions returns the schema's questions in schema order.
func (s *Schema) Questions() []Question {
	out := make([]Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// Len returns the number of questions.
func (s *Schema) Len() int {
	return len(s.questions)
}

// Lookup returns the question with the given id.
func (s *Schema) Lookup(id int64) (Question, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Question{}, false
	}
	return s.questions[i], true
}

// IsVisible reports whether q is shown for the given answers. Questions
// without a parent are always visible. A dependent question is visible iff
// its parent exists in the schema and the parent's answer equals the
// trigger value exactly. A missing parent hides the question.
func (s *Schema) IsVisible(q Question, answers Answers) bool {
	if !q.HasParent() {
		return true
	}
	parent, ok := s.Lookup(*q.ParentQuestionID)
	if !ok {
		return false
	}
	return IsVisible(q, &parent, answers)
}

// IsVisible evaluates q against an already resolved parent. A nil parent
// for a dependent question means the parent could not be found.
func IsVisible(q Question, parent *Question, answers Answers) bool {
	if !q.HasParent() {
		return true
	}
	if parent == nil || q.TriggerValue == nil {
		return false
	}
	answer, ok := answers[parent.FieldName]
	if !ok {
		return false
	}
	return answer == *q.TriggerValue
}

// Visible returns the questions shown for answers, in schema order.
func (s *Schema) Visible(answers Answers) []Question {
	var out []Question
	for _, q := range s.questions {
		if s.IsVisible(q, answers) {
			out = append(out, q)
		}
	}
	return out
}

// Validate checks answers against the currently visible questions.
func (s *Schema) Validate(answers Answers) ValidationErrors {
	return ValidateSubmission(answers, s.Visible(answers))
}

// PruneHidden returns a copy of answers without values for hidden
// questions. Removing an answer can hide further descendants, so pruning
// repeats until nothing changes. Keys that do not belong to any question are
// kept.
func (s *Schema) PruneHidden(answers Answers) Answers {
	out := answers.Clone()
	for {
		changed := false
		for _, q := range s.questions {
			if _, ok := out[q.FieldName]; !ok {
				continue
			}
			if !s.IsVisible(q, out) {
				delete(out, q.FieldName)
				changed = true
			}
		}
		if !changed {
			return out
		}
	}
}
