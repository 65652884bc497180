// Package reporting serves the staff-facing reports over registered patients
// and their questionnaire submissions.
package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoSubmission is returned when a patient has nothing to report on.
var ErrNoSubmission = errors.New("no questionnaire submitted for this patient")

// ReportedPatient is a registered patient with at least one linked
// submission.
type ReportedPatient struct {
	ID              uuid.UUID `json:"id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Email           string    `json:"email"`
	Submissions     int       `json:"submissions"`
	LastSubmittedAt time.Time `json:"lastSubmittedAt"`
}

// Prompt is the current wording of one question, used to label answers.
type Prompt struct {
	FieldName string
	Question  string
	Category  string
	SortOrder int
}

// PatientSubmission is a patient's submission with the identifying fields a
// report header needs.
type PatientSubmission struct {
	PatientID   uuid.UUID
	FirstName   string
	LastName    string
	Email       string
	Age         *int
	Gender      string
	SubmittedAt time.Time
	PainLevel   *int
	Lang        string
	Answers     map[string]*string
}

// ExportRow is one submission in the spreadsheet export.
type ExportRow struct {
	SubmissionID uuid.UUID
	PatientRef   string
	PatientName  string
	Email        string
	PainLevel    *int
	Lang         string
	SubmittedAt  time.Time
	Answers      map[string]*string
}

// MeasureDefinition is a named aggregate query over intake data.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

// MeasureReport holds the rows produced by evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patient-count",
		Name:        "Patient Count",
		Description: "Registered patients, with how many belong to a family group and how many have an assigned doctor",
		SQL: `SELECT COUNT(*) AS total,
			COUNT(family_group_id) AS in_family_group,
			COUNT(assigned_doctor_id) AS assigned
			FROM patients`,
	},
	{
		ID:          "submissions-by-day",
		Name:        "Submissions by Day",
		Description: "Questionnaire submissions per day over the last 30 days",
		SQL: `SELECT date_trunc('day', created_at)::date AS day, COUNT(*) AS total
			FROM questionnaire_submissions
			WHERE created_at >= NOW() - INTERVAL '30 days'
			GROUP BY 1 ORDER BY 1`,
	},
	{
		ID:          "pain-level-distribution",
		Name:        "Pain Level Distribution",
		Description: "Count of submissions at each reported pain level",
		SQL: `SELECT pain_level, COUNT(*) AS total FROM questionnaire_submissions
			WHERE pain_level IS NOT NULL GROUP BY pain_level ORDER BY pain_level`,
	},
	{
		ID:          "submissions-by-language",
		Name:        "Submissions by Language",
		Description: "Count of submissions per questionnaire language",
		SQL:         `SELECT lang, COUNT(*) AS total FROM questionnaire_submissions GROUP BY lang ORDER BY total DESC`,
	},
	{
		ID:          "unlinked-submissions",
		Name:        "Unlinked Submissions",
		Description: "Submissions stored under a placeholder patient id that never matched a registered patient",
		SQL: `SELECT COUNT(*) AS total FROM questionnaire_submissions
			WHERE patient_id IS NULL AND patient_ref LIKE 'temp-%'`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Store is the read side the reports are built from.
type Store interface {
	ReportedPatients(ctx context.Context) ([]*ReportedPatient, error)
	LatestSubmission(ctx context.Context, patientID uuid.UUID) (*PatientSubmission, error)
	Prompts(ctx context.Context) ([]Prompt, error)
	ExportRows(ctx context.Context, since time.Time) ([]*ExportRow, error)
	Evaluate(ctx context.Context, sql string) ([]map[string]interface{}, error)
}
