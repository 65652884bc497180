package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vekaria04/hospital-management-system/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// -- Question Repository --

type questionRepoPG struct {
	pool *pgxpool.Pool
}

func NewQuestionRepo(pool *pgxpool.Pool) QuestionRepository {
	return &questionRepoPG{pool: pool}
}

func (r *questionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const questionColumns = `id, question, category, field_name, options, parent_question_id,
	trigger_value, optional, sort_order, created_at, updated_at`

func (r *questionRepoPG) List(ctx context.Context) ([]*Question, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *questionRepoPG) GetByID(ctx context.Context, id int64) (*Question, error) {
	return scanQuestion(r.conn(ctx).QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

func (r *questionRepoPG) Create(ctx context.Context, q *Question) error {
	opts, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO questions (
			question, category, field_name, options, parent_question_id, trigger_value, optional, sort_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		q.Question, q.Category, q.FieldName, opts, q.ParentQuestionID, q.TriggerValue, q.Optional, q.SortOrder,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	return classify(err)
}

func (r *questionRepoPG) Update(ctx context.Context, q *Question) error {
	opts, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE questions SET
			question = $2, category = $3, field_name = $4, options = $5, parent_question_id = $6,
			trigger_value = $7, optional = $8, sort_order = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		q.ID, q.Question, q.Category, q.FieldName, opts, q.ParentQuestionID, q.TriggerValue, q.Optional, q.SortOrder,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	return classify(err)
}

func (r *questionRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *questionRepoPG) Translations(ctx context.Context, lang string) (map[int64]*Translation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT question_id, lang, question, options FROM question_translations WHERE lang = $1`, lang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*Translation)
	for rows.Next() {
		var t Translation
		var opts []byte
		if err := rows.Scan(&t.QuestionID, &t.Lang, &t.Question, &opts); err != nil {
			return nil, err
		}
		if len(opts) > 0 {
			if err := json.Unmarshal(opts, &t.Options); err != nil {
				return nil, fmt.Errorf("decode options of question %d: %w", t.QuestionID, err)
			}
		}
		out[t.QuestionID] = &t
	}
	return out, rows.Err()
}

func (r *questionRepoPG) UpsertTranslation(ctx context.Context, t *Translation) error {
	var opts []byte
	if t.Options != nil {
		var err error
		if opts, err = json.Marshal(t.Options); err != nil {
			return err
		}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO question_translations (question_id, lang, question, options)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (question_id, lang) DO UPDATE SET question = EXCLUDED.question, options = EXCLUDED.options`,
		t.QuestionID, t.Lang, t.Question, opts)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func scanQuestion(row pgx.Row) (*Question, error) {
	var q Question
	var opts []byte
	err := row.Scan(&q.ID, &q.Question, &q.Category, &q.FieldName, &opts, &q.ParentQuestionID,
		&q.TriggerValue, &q.Optional, &q.SortOrder, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(opts, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options of question %d: %w", q.ID, err)
	}
	q.Options = nonNil(q.Options)
	return &q, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrDuplicateField
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: parent question does not exist", ErrInvalidQuestion)
	}
	return err
}

func nonNil(opts []string) []string {
	if opts == nil {
		return []string{}
	}
	return opts
}

// -- Submission Repository --

type submissionRepoPG struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepoPG{pool: pool}
}

func (r *submissionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const submissionColumns = `id, patient_ref, patient_id, answers, pain_level, lang, created_at`

func (r *submissionRepoPG) Create(ctx context.Context, s *Submission) error {
	s.ID = uuid.New()
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return err
	}
	// patient_id is only linked when the reference names an existing patient.
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO questionnaire_submissions (id, patient_ref, patient_id, answers, pain_level, lang)
		VALUES ($1, $2, (SELECT id FROM patients WHERE id = $3), $4, $5, $6)
		RETURNING patient_id, created_at`,
		s.ID, s.PatientRef, s.PatientID, answers, s.PainLevel, s.Lang,
	).Scan(&s.PatientID, &s.CreatedAt)
}

func (r *submissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return scanSubmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM questionnaire_submissions WHERE id = $1`, id))
}

func (r *submissionRepoPG) List(ctx context.Context, patientRef string, limit, offset int) ([]*Submission, int, error) {
	where := ``
	args := []interface{}{}
	if patientRef != "" {
		where = ` WHERE patient_ref = $1`
		args = append(args, patientRef)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM questionnaire_submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+submissionColumns+` FROM questionnaire_submissions`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *submissionRepoPG) Latest(ctx context.Context, patientRef string) (*Submission, error) {
	return scanSubmission(r.conn(ctx).QueryRow(ctx, `
		SELECT `+submissionColumns+` FROM questionnaire_submissions
		WHERE patient_ref = $1 ORDER BY created_at DESC LIMIT 1`, patientRef))
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	var answers []byte
	err := row.Scan(&s.ID, &s.PatientRef, &s.PatientID, &answers, &s.PainLevel, &s.Lang, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of submission %s: %w", s.ID, err)
	}
	return &s, nil
}
