package questionnaire

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vekaria04/hospital-management-system/pkg/intake"
)

var (
	ErrNotFound           = errors.New("question not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrDuplicateField     = errors.New("field_name already in use")
	ErrInvalidQuestion    = errors.New("invalid question")
	ErrInvalidSubmission  = errors.New("invalid submission")
)

// Question is the stored form of a questionnaire node.
type Question struct {
	ID               int64     `json:"id"`
	Question         string    `json:"question"`
	Category         string    `json:"category"`
	FieldName        string    `json:"field_name"`
	Options          []string  `json:"options"`
	ParentQuestionID *int64    `json:"parent_question_id"`
	TriggerValue     *string   `json:"trigger_value"`
	Optional         bool      `json:"optional"`
	SortOrder        int       `json:"sort_order"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Schema renders q for the public schema endpoint, with tr applied when it
// is non-nil.
func (q *Question) Schema(tr *Translation) intake.Question {
	out := intake.Question{
		ID:               q.ID,
		Question:         q.Question,
		Category:         q.Category,
		FieldName:        q.FieldName,
		Options:          q.Options,
		ParentQuestionID: q.ParentQuestionID,
		TriggerValue:     q.TriggerValue,
		Optional:         q.Optional,
	}
	if tr != nil {
		if tr.Question != "" {
			out.Question = tr.Question
		}
		if len(tr.Options) == len(q.Options) && len(tr.Options) > 0 {
			out.Options = tr.Options
		}
	}
	if out.Options == nil {
		out.Options = []string{}
	}
	return out
}

// Translation overrides the prompt and option labels of one question for one
// language. Options must line up index for index with the base options.
type Translation struct {
	QuestionID int64    `json:"question_id"`
	Lang       string   `json:"lang"`
	Question   string   `json:"question"`
	Options    []string `json:"options,omitempty"`
}

type QuestionRequest struct {
	Question         string   `json:"question" validate:"notblank"`
	Category         string   `json:"category" validate:"notblank"`
	FieldName        string   `json:"field_name"`
	Options          []string `json:"options"`
	ParentQuestionID *int64   `json:"parent_question_id"`
	TriggerValue     *string  `json:"trigger_value"`
	Optional         bool     `json:"optional"`
	SortOrder        int      `json:"sort_order"`
}

type TranslationRequest struct {
	Question string   `json:"question" validate:"notblank"`
	Options  []string `json:"options"`
}

// Submission is one stored questionnaire. PatientRef is whatever the kiosk
// sent, a placeholder id included; PatientID is set only when it names a
// registered patient.
type Submission struct {
	ID         uuid.UUID          `json:"id"`
	PatientRef string             `json:"patientRef"`
	PatientID  *uuid.UUID         `json:"patientId"`
	Answers    map[string]*string `json:"answers"`
	PainLevel  *int               `json:"painLevel"`
	Lang       string             `json:"lang"`
	CreatedAt  time.Time          `json:"createdAt"`
}
