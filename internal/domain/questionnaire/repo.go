package questionnaire

import (
	"context"

	"github.com/google/uuid"
)

type QuestionRepository interface {
	List(ctx context.Context) ([]*Question, error)
	GetByID(ctx context.Context, id int64) (*Question, error)
	Create(ctx context.Context, q *Question) error
	Update(ctx context.Context, q *Question) error
	Delete(ctx context.Context, id int64) error
	Translations(ctx context.Context, lang string) (map[int64]*Translation, error)
	UpsertTranslation(ctx context.Context, t *Translation) error
}

type SubmissionRepository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	// List filters by patientRef when it is non-empty.
	List(ctx context.Context, patientRef string, limit, offset int) ([]*Submission, int, error)
	Latest(ctx context.Context, patientRef string) (*Submission, error)
}
