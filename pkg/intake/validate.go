package intake

import (
	"fmt"
	"strings"
)

// ValidationError reports one visible required question without an answer.
type ValidationError struct {
	Field      string `json:"field"`
	QuestionID int64  `json:"question_id"`
	Message    string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the field-level result of ValidateSubmission. A nil or
// empty value means the submission may proceed.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return "validation failed"
	case 1:
		return "validation failed: " + ve[0].Error()
	default:
		return fmt.Sprintf("validation failed: %d fields require an answer", len(ve))
	}
}

// Fields returns the offending field keys in error order.
func (ve ValidationErrors) Fields() []string {
	out := make([]string, len(ve))
	for i, e := range ve {
		out[i] = e.Field
	}
	return out
}

// Err returns ve as an error, or nil when there is nothing to report.
func (ve ValidationErrors) Err() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}

// ValidateSubmission returns one error per required question in visible
// whose answer is absent or blank. Only the questions passed in are
// checked, so hidden questions never produce errors.
func ValidateSubmission(answers Answers, visible []Question) ValidationErrors {
	var errs ValidationErrors
	for _, q := range visible {
		if !q.Required() {
			continue
		}
		if strings.TrimSpace(answers[q.FieldName]) != "" {
			continue
		}
		errs = append(errs, ValidationError{
			Field:      q.FieldName,
			QuestionID: q.ID,
			Message:    "an answer is required",
		})
	}
	return errs
}
