package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vekaria04/hospital-management-system/pkg/intake"
)

// ErrNoSchema is returned by SchemaCache.Load when no schema was ever saved
// for the language.
var ErrNoSchema = errors.New("no question schema saved for offline use")

var langPattern = regexp.MustCompile(`^[a-z]{2,8}(-[a-z0-9]{1,8})*$`)

type savedSchema struct {
	Lang      string            `json:"lang"`
	SavedAt   time.Time         `json:"saved_at"`
	Questions []intake.Question `json:"questions"`
}

// SchemaCache keeps the last schema fetched per language in the offline
// store so a kiosk can validate answers while the API is unreachable.
type SchemaCache struct {
	store Store
	now   func() time.Time
}

func NewSchemaCache(store Store) *SchemaCache {
	return &SchemaCache{store: store, now: time.Now}
}

func schemaKey(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "schema-default", nil
	}
	if !langPattern.MatchString(lang) {
		return "", fmt.Errorf("invalid language code %q", lang)
	}
	return "schema-" + lang, nil
}

// Save replaces the stored schema for lang.
func (c *SchemaCache) Save(ctx context.Context, lang string, questions []intake.Question) error {
	key, err := schemaKey(lang)
	if err != nil {
		return err
	}
	b, err := json.Marshal(savedSchema{Lang: lang, SavedAt: c.now().UTC(), Questions: questions})
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, b); err != nil {
		return fmt.Errorf("%w: save schema: %w", ErrPersistence, err)
	}
	return nil
}

// Load returns the stored schema for lang, or ErrNoSchema.
func (c *SchemaCache) Load(ctx context.Context, lang string) ([]intake.Question, error) {
	key, err := schemaKey(lang)
	if err != nil {
		return nil, err
	}
	b, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("%w (lang %q)", ErrNoSchema, lang)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load schema: %w", ErrPersistence, err)
	}
	var s savedSchema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: decode schema: %w", ErrPersistence, err)
	}
	return s.Questions, nil
}
