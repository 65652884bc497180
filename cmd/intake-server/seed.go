package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vekaria04/hospital-management-system/internal/config"
	"github.com/vekaria04/hospital-management-system/internal/domain/questionnaire"
	"github.com/vekaria04/hospital-management-system/internal/platform/db"
	"github.com/vekaria04/hospital-management-system/internal/platform/events"
)

// seedFile is the YAML layout accepted by questions import. Parents are
// referenced by field name so a file can be written before ids exist.
type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	Question     string                     `yaml:"question"`
	Category     string                     `yaml:"category"`
	FieldName    string                     `yaml:"field_name"`
	Options      []string                   `yaml:"options"`
	Parent       string                     `yaml:"parent"`
	TriggerValue *string                    `yaml:"trigger_value"`
	Optional     bool                       `yaml:"optional"`
	Translations map[string]seedTranslation `yaml:"translations"`
}

type seedTranslation struct {
	Question string   `yaml:"question"`
	Options  []string `yaml:"options"`
}

func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Questions) == 0 {
		return nil, fmt.Errorf("%s has no questions", path)
	}
	return &f, nil
}

// importSeed creates every question in file order. A parent must appear
// before its dependents.
func importSeed(ctx context.Context, svc *questionnaire.Service, f *seedFile) (int, error) {
	ids := make(map[string]int64, len(f.Questions))
	for i, sq := range f.Questions {
		req := questionnaire.QuestionRequest{
			Question:     sq.Question,
			Category:     sq.Category,
			FieldName:    sq.FieldName,
			Options:      sq.Options,
			TriggerValue: sq.TriggerValue,
			Optional:     sq.Optional,
			SortOrder:    (i + 1) * 10,
		}
		if sq.Parent != "" {
			id, ok := ids[sq.Parent]
			if !ok {
				return i, fmt.Errorf("question %d (%q): parent %q is not defined above it", i+1, sq.Question, sq.Parent)
			}
			req.ParentQuestionID = &id
		}
		q, err := svc.Create(ctx, req)
		if err != nil {
			return i, fmt.Errorf("question %d (%q): %w", i+1, sq.Question, err)
		}
		ids[q.FieldName] = q.ID
		for lang, tr := range sq.Translations {
			if _, err := svc.SetTranslation(ctx, q.ID, lang, questionnaire.TranslationRequest{Question: tr.Question, Options: tr.Options}); err != nil {
				return i, fmt.Errorf("question %d (%q) %s translation: %w", i+1, sq.Question, lang, err)
			}
		}
	}
	return len(f.Questions), nil
}

func importQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Load questions from a YAML seed file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadSeed(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := questionnaire.NewService(
				questionnaire.NewQuestionRepo(pool),
				questionnaire.NewSubmissionRepo(pool),
				nil,
				events.Nop{},
			)
			var n int
			err = db.WithTx(ctx, pool, func(ctx context.Context) error {
				n, err = importSeed(ctx, svc, f)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d question(s). Running servers pick them up when their schema cache expires.\n", n)
			return nil
		},
	}
}
