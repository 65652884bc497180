package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func smokerSchema() *Schema {
	return NewSchema([]Question{
		{ID: 1, Question: "Do you smoke?", Category: "Lifestyle", FieldName: "smoker", Options: []string{"Yes", "No"}},
		{ID: 2, Question: "Packs per day?", Category: "Lifestyle", FieldName: "packs_per_day",
			ParentQuestionID: ptr(int64(1)), TriggerValue: ptr("Yes")},
	})
}

func TestIsVisible_TopLevelAlwaysVisible(t *testing.T) {
	s := smokerSchema()
	q, _ := s.Lookup(1)
	assert.True(t, s.IsVisible(q, nil))
	assert.True(t, s.IsVisible(q, Answers{"smoker": "No"}))
}

func TestIsVisible_ExactTriggerMatch(t *testing.T) {
	s := smokerSchema()
	child, _ := s.Lookup(2)

	cases := []struct {
		answer string
		want   bool
	}{
		{"Yes", true},
		{"No", false},
		{"yes", false},
		{"Yes ", false},
		{" Yes", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.answer, func(t *testing.T) {
			assert.Equal(t, tc.want, s.IsVisible(child, Answers{"smoker": tc.answer}))
		})
	}
}

func TestIsVisible_UnansweredParentHidesChild(t *testing.T) {
	s := smokerSchema()
	child, _ := s.Lookup(2)
	assert.False(t, s.IsVisible(child, Answers{}))
}

func TestIsVisible_MissingParentFailsClosed(t *testing.T) {
	s := NewSchema([]Question{
		{ID: 7, FieldName: "orphan", ParentQuestionID: ptr(int64(99)), TriggerValue: ptr("Yes")},
	})
	q, _ := s.Lookup(7)
	assert.False(t, s.IsVisible(q, Answers{"anything": "Yes"}))
}

func TestIsVisible_ReevaluatesAfterAnswerChange(t *testing.T) {
	s := smokerSchema()
	child, _ := s.Lookup(2)
	answers := Answers{"smoker": "Yes"}
	require.True(t, s.IsVisible(child, answers))

	answers["smoker"] = "No"
	assert.False(t, s.IsVisible(child, answers))
}

func TestVisible_SchemaOrder(t *testing.T) {
	s := smokerSchema()
	visible := s.Visible(Answers{"smoker": "Yes"})
	require.Len(t, visible, 2)
	assert.Equal(t, "smoker", visible[0].FieldName)
	assert.Equal(t, "packs_per_day", visible[1].FieldName)
}

func TestValidate_ScenarioA(t *testing.T) {
	s := smokerSchema()

	errs := s.Validate(Answers{"smoker": "No"})
	assert.Empty(t, errs)
	assert.NoError(t, errs.Err())

	errs = s.Validate(Answers{"smoker": "Yes", "packs_per_day": ""})
	require.Len(t, errs, 1)
	assert.Equal(t, "packs_per_day", errs[0].Field)
	assert.Equal(t, int64(2), errs[0].QuestionID)
}

func TestValidateSubmission_OneErrorPerVisibleEmptyField(t *testing.T) {
	visible := []Question{
		{ID: 1, FieldName: "allergies"},
		{ID: 2, FieldName: "medications"},
		{ID: 3, FieldName: "diet", Optional: true},
		{ID: 4, FieldName: "primary_concern"},
	}
	errs := ValidateSubmission(Answers{"allergies": "none", "medications": "   "}, visible)
	assert.Equal(t, []string{"medications", "primary_concern"}, errs.Fields())
}

func TestValidateSubmission_HiddenFieldsNeverError(t *testing.T) {
	s := smokerSchema()
	// the stale answer for the hidden child is irrelevant either way
	for _, stale := range []string{"", "3", "lots"} {
		errs := s.Validate(Answers{"smoker": "No", "packs_per_day": stale})
		assert.Empty(t, errs)
	}
}

func TestPruneHidden_RemovesHiddenSubtree(t *testing.T) {
	s := NewSchema([]Question{
		{ID: 1, FieldName: "pregnant", Options: []string{"Yes", "No"}},
		{ID: 2, FieldName: "trimester", ParentQuestionID: ptr(int64(1)), TriggerValue: ptr("Yes"), Options: []string{"1", "2", "3"}},
		{ID: 3, FieldName: "third_trimester_notes", ParentQuestionID: ptr(int64(2)), TriggerValue: ptr("3")},
	})
	answers := Answers{"pregnant": "No", "trimester": "3", "third_trimester_notes": "swelling", "extra": "kept"}

	pruned := s.PruneHidden(answers)

	assert.Equal(t, Answers{"pregnant": "No", "extra": "kept"}, pruned)
	assert.Len(t, answers, 4, "input must not be modified")
}

func TestSchema_DuplicateIDFirstWins(t *testing.T) {
	s := NewSchema([]Question{
		{ID: 1, FieldName: "first"},
		{ID: 1, FieldName: "second"},
	})
	q, ok := s.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "first", q.FieldName)
	assert.Equal(t, 2, s.Len())
}
