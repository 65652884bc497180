package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) ReportedPatients(ctx context.Context) ([]*ReportedPatient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.first_name, p.last_name, p.email, COUNT(q.id), MAX(q.created_at)
		FROM patients p
		JOIN questionnaire_submissions q ON q.patient_id = p.id
		GROUP BY p.id
		ORDER BY MAX(q.created_at) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ReportedPatient
	for rows.Next() {
		var rp ReportedPatient
		if err := rows.Scan(&rp.ID, &rp.FirstName, &rp.LastName, &rp.Email, &rp.Submissions, &rp.LastSubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, &rp)
	}
	return out, rows.Err()
}

func (s *pgStore) LatestSubmission(ctx context.Context, patientID uuid.UUID) (*PatientSubmission, error) {
	var ps PatientSubmission
	var answers []byte
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.first_name, p.last_name, p.email, p.age, p.gender,
			q.created_at, q.pain_level, q.lang, q.answers
		FROM questionnaire_submissions q
		JOIN patients p ON p.id = q.patient_id
		WHERE q.patient_id = $1
		ORDER BY q.created_at DESC
		LIMIT 1`, patientID).Scan(
		&ps.PatientID, &ps.FirstName, &ps.LastName, &ps.Email, &ps.Age, &ps.Gender,
		&ps.SubmittedAt, &ps.PainLevel, &ps.Lang, &answers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSubmission
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &ps.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return &ps, nil
}

func (s *pgStore) Prompts(ctx context.Context) ([]Prompt, error) {
	rows, err := s.pool.Query(ctx, `SELECT field_name, question, category, sort_order FROM questions ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Prompt
	for rows.Next() {
		var p Prompt
		if err := rows.Scan(&p.FieldName, &p.Question, &p.Category, &p.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *pgStore) ExportRows(ctx context.Context, since time.Time) ([]*ExportRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.patient_ref,
			COALESCE(p.first_name || ' ' || p.last_name, ''), COALESCE(p.email, ''),
			q.pain_level, q.lang, q.created_at, q.answers
		FROM questionnaire_submissions q
		LEFT JOIN patients p ON p.id = q.patient_id
		WHERE q.created_at >= $1
		ORDER BY q.created_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ExportRow
	for rows.Next() {
		var r ExportRow
		var answers []byte
		if err := rows.Scan(&r.SubmissionID, &r.PatientRef, &r.PatientName, &r.Email,
			&r.PainLevel, &r.Lang, &r.SubmittedAt, &answers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", r.SubmissionID, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Evaluate runs a measure query and returns each row keyed by column name.
func (s *pgStore) Evaluate(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
