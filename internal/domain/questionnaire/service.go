package questionnaire

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vekaria04/hospital-management-system/internal/platform/cache"
	"github.com/vekaria04/hospital-management-system/internal/platform/events"
	"github.com/vekaria04/hospital-management-system/internal/platform/middleware"
	"github.com/vekaria04/hospital-management-system/pkg/intake"
)

const defaultLang = "en"

type Service struct {
	questions   QuestionRepository
	submissions SubmissionRepository
	cache       cache.SchemaCache
	events      events.Publisher
}

func NewService(questions QuestionRepository, submissions SubmissionRepository, sc cache.SchemaCache, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{questions: questions, submissions: submissions, cache: sc, events: pub}
}

// -- Schema --

// Schema returns the ordered question list with lang's translations applied.
// Questions without a translation keep their base text.
func (s *Service) Schema(ctx context.Context, lang string) ([]intake.Question, error) {
	qs, err := s.questions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	var trs map[int64]*Translation
	if lang != "" && lang != defaultLang {
		if trs, err = s.questions.Translations(ctx, lang); err != nil {
			return nil, fmt.Errorf("load %s translations: %w", lang, err)
		}
	}
	out := make([]intake.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Schema(trs[q.ID]))
	}
	return out, nil
}

// SchemaJSON returns the encoded schema for lang, served from the cache when
// possible.
func (s *Service) SchemaJSON(ctx context.Context, lang string) ([]byte, error) {
	if s.cache != nil {
		if b, ok := s.cache.Get(ctx, lang); ok {
			return b, nil
		}
	}
	schema, err := s.Schema(ctx, lang)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, lang, b); err != nil {
			log.Warn().Err(err).Str("lang", lang).Msg("schema cache write failed")
		}
	}
	return b, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Error().Err(err).Msg("schema cache invalidation failed")
	}
}

// -- Questions --

func (s *Service) Get(ctx context.Context, id int64) (*Question, error) {
	return s.questions.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Question, error) {
	return s.questions.List(ctx)
}

// FieldKey suggests the answer key for a prompt.
func (s *Service) FieldKey(prompt string) string {
	return intake.DeriveFieldKey(prompt)
}

func (s *Service) Create(ctx context.Context, req QuestionRequest) (*Question, error) {
	q := fromRequest(req)
	all, err := s.questions.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkQuestion(q, all); err != nil {
		return nil, err
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return q, nil
}

func (s *Service) Update(ctx context.Context, id int64, req QuestionRequest) (*Question, error) {
	existing, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	q := fromRequest(req)
	q.ID = existing.ID
	q.CreatedAt = existing.CreatedAt
	all, err := s.questions.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkQuestion(q, all); err != nil {
		return nil, err
	}
	if err := s.questions.Update(ctx, q); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return q, nil
}

// Delete removes the question and, through the foreign key, its dependents.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.questions.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) SetTranslation(ctx context.Context, id int64, lang string, req TranslationRequest) (*Translation, error) {
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return nil, fmt.Errorf("%w: language is required", ErrInvalidQuestion)
	}
	if req.Options != nil && len(req.Options) != len(q.Options) {
		return nil, fmt.Errorf("%w: expected %d translated options, got %d",
			ErrInvalidQuestion, len(q.Options), len(req.Options))
	}
	t := &Translation{QuestionID: id, Lang: lang, Question: strings.TrimSpace(req.Question), Options: req.Options}
	if err := s.questions.UpsertTranslation(ctx, t); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return t, nil
}

func fromRequest(req QuestionRequest) *Question {
	q := &Question{
		Question:         strings.TrimSpace(req.Question),
		Category:         strings.TrimSpace(req.Category),
		FieldName:        intake.DeriveFieldKey(req.FieldName),
		Options:          make([]string, 0, len(req.Options)),
		ParentQuestionID: req.ParentQuestionID,
		TriggerValue:     req.TriggerValue,
		Optional:         req.Optional,
		SortOrder:        req.SortOrder,
	}
	if q.FieldName == "" {
		q.FieldName = intake.DeriveFieldKey(q.Question)
	}
	for _, o := range req.Options {
		if o = strings.TrimSpace(o); o != "" {
			q.Options = append(q.Options, o)
		}
	}
	return q
}

// checkQuestion enforces the tree rules against the current question set:
// unique field name, trigger only with a parent, an existing parent, a
// trigger drawn from the parent's options when it has any, and no cycles.
func checkQuestion(q *Question, all []*Question) error {
	if q.FieldName == "" {
		return fmt.Errorf("%w: field_name cannot be derived from the prompt", ErrInvalidQuestion)
	}
	byID := make(map[int64]*Question, len(all))
	for _, other := range all {
		byID[other.ID] = other
		if other.ID != q.ID && other.FieldName == q.FieldName {
			return ErrDuplicateField
		}
	}

	if q.ParentQuestionID == nil {
		if q.TriggerValue != nil {
			return fmt.Errorf("%w: trigger_value requires parent_question_id", ErrInvalidQuestion)
		}
		return nil
	}
	parent, ok := byID[*q.ParentQuestionID]
	if !ok {
		return fmt.Errorf("%w: parent question %d does not exist", ErrInvalidQuestion, *q.ParentQuestionID)
	}
	if q.TriggerValue == nil {
		return fmt.Errorf("%w: a dependent question needs a trigger_value", ErrInvalidQuestion)
	}
	if len(parent.Options) > 0 && !contains(parent.Options, *q.TriggerValue) {
		return fmt.Errorf("%w: trigger_value %q is not an option of question %d",
			ErrInvalidQuestion, *q.TriggerValue, parent.ID)
	}
	for cur := parent; cur != nil; {
		if q.ID != 0 && cur.ID == q.ID {
			return fmt.Errorf("%w: question cannot be its own ancestor", ErrInvalidQuestion)
		}
		if cur.ParentQuestionID == nil {
			break
		}
		cur = byID[*cur.ParentQuestionID]
	}
	return nil
}

func contains(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}

// -- Submissions --

// painLevelKeys are the answer keys carrying the 1-10 pain score.
var painLevelKeys = []string{"pain_level", "painLevel"}

// Submit stores a flat submission body. Empty answers are stored as null and
// the pain score, when present, must be an integer from 1 to 10.
func (s *Service) Submit(ctx context.Context, body map[string]interface{}, lang string) (*Submission, error) {
	ref, _ := body[intake.PatientIDKey].(string)
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: patientId is required", ErrInvalidSubmission)
	}

	answers := make(map[string]*string, len(body))
	for k, v := range body {
		if k == intake.PatientIDKey {
			continue
		}
		str, err := answerString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSubmission, k, err)
		}
		answers[k] = str
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no answers provided", ErrInvalidSubmission)
	}

	pain, err := painLevel(answers)
	if err != nil {
		return nil, err
	}

	sub := &Submission{PatientRef: ref, Answers: answers, PainLevel: pain, Lang: lang}
	if sub.Lang == "" {
		sub.Lang = defaultLang
	}
	if id, err := uuid.Parse(ref); err == nil {
		sub.PatientID = &id
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}

	data := map[string]interface{}{
		"submissionId": sub.ID,
		"patientRef":   sub.PatientRef,
		"temporary":    intake.IsTempPatientID(sub.PatientRef),
		"lang":         sub.Lang,
	}
	if err := s.events.Publish(ctx, events.QuestionnaireSubmitted, data); err != nil {
		log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("questionnaire.submitted not published")
	}
	return sub, nil
}

// answerString normalizes one JSON answer value. Numbers and booleans are
// accepted and stringified; nested values are rejected.
func answerString(v interface{}) (*string, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = middleware.SanitizeString(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil, fmt.Errorf("answer must be a string")
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func painLevel(answers map[string]*string) (*int, error) {
	for _, k := range painLevelKeys {
		v, ok := answers[k]
		if !ok || v == nil {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(*v))
		if err != nil || n < 1 || n > 10 {
			return nil, fmt.Errorf("%w: %s must be an integer from 1 to 10", ErrInvalidSubmission, k)
		}
		return &n, nil
	}
	return nil, nil
}

func (s *Service) Submission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return s.submissions.GetByID(ctx, id)
}

func (s *Service) Submissions(ctx context.Context, patientRef string, limit, offset int) ([]*Submission, int, error) {
	return s.submissions.List(ctx, patientRef, limit, offset)
}

func (s *Service) LatestSubmission(ctx context.Context, patientRef string) (*Submission, error) {
	return s.submissions.Latest(ctx, patientRef)
}
