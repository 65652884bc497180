package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vekaria04/hospital-management-system/internal/config"
	"github.com/vekaria04/hospital-management-system/pkg/client"
	"github.com/vekaria04/hospital-management-system/pkg/intake"
	"github.com/vekaria04/hospital-management-system/pkg/offline"
)

// kiosk bundles the client-side collaborators a kiosk command needs.
type kiosk struct {
	cfg     *config.ClientConfig
	logger  zerolog.Logger
	client  *client.Client
	queue   *offline.Queue
	schemas *offline.SchemaCache
	monitor *offline.HealthMonitor
	close   func() error
}

func openKiosk(ctx context.Context) (*kiosk, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Env)

	c := client.New(cfg.APIURL, client.WithBearerToken(cfg.APIToken), client.WithTimeout(cfg.HTTPTimeout))

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	q := offline.NewQueue(store, c, offline.WithPolicy(cfg.Policy()), offline.WithLogger(logger))
	return &kiosk{
		cfg:     cfg,
		logger:  logger,
		client:  c,
		queue:   q,
		schemas: offline.NewSchemaCache(store),
		monitor: offline.NewHealthMonitor(strings.TrimRight(cfg.APIURL, "/")+"/health", cfg.HealthInterval, logger),
		close:   closeStore,
	}, nil
}

// fetchSchema loads the schema from the API and keeps a copy for offline
// use. A failed save is logged; the fetched schema is still returned.
func (k *kiosk) fetchSchema(ctx context.Context, lang string) ([]intake.Question, error) {
	questions, err := k.client.LoadSchema(ctx, lang)
	if err != nil {
		return nil, err
	}
	if err := k.schemas.Save(ctx, lang, questions); err != nil {
		k.logger.Warn().Err(err).Str("lang", lang).Msg("could not keep schema for offline use")
	}
	return questions, nil
}

// schema returns the live schema when online and the saved copy otherwise.
// Without either, submission is refused.
func (k *kiosk) schema(ctx context.Context, lang string, online bool) (*intake.Schema, error) {
	if online {
		questions, err := k.fetchSchema(ctx, lang)
		if err != nil {
			return nil, err
		}
		return intake.NewSchema(questions), nil
	}
	questions, err := k.schemas.Load(ctx, lang)
	if errors.Is(err, offline.ErrNoSchema) {
		return nil, fmt.Errorf("%w: run `questions list` while online first", err)
	}
	if err != nil {
		return nil, err
	}
	return intake.NewSchema(questions), nil
}

func openStore(ctx context.Context, cfg *config.ClientConfig) (offline.Store, func() error, error) {
	nop := func() error { return nil }
	switch cfg.OfflineStore {
	case config.StoreSQLite:
		s, err := offline.OpenSQLiteStore(ctx, cfg.OfflineStorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreFile:
		s, err := offline.NewFileStore(cfg.OfflineStorePath)
		return s, nop, err
	default:
		return offline.NewMemoryStore(), nop, nil
	}
}

func withKiosk(cmd *cobra.Command, fn func(ctx context.Context, k *kiosk) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	k, err := openKiosk(ctx)
	if err != nil {
		return err
	}
	defer k.close()
	return fn(ctx, k)
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect and manage the questionnaire",
	}

	var lang string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the question schema served by the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKiosk(cmd, func(ctx context.Context, k *kiosk) error {
				questions, err := k.fetchSchema(ctx, lang)
				if err != nil {
					return err
				}
				renderQuestions(cmd.OutOrStdout(), questions)
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&lang, "lang", "", "language code (server default when empty)")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "field-key <prompt>",
		Short: "Print the answer key derived from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), intake.DeriveFieldKey(strings.Join(args, " ")))
			return nil
		},
	})

	cmd.AddCommand(importQuestionsCmd())
	return cmd
}

func submitCmd() *cobra.Command {
	var (
		patientID string
		lang      string
		answers   []string
		prune     bool
		offlineOn bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a questionnaire, queueing it when the API is unreachable",
		Example: `  intake-server submit --patient-id 6f1c... --answer do_you_smoke=Yes --answer how_many_per_day=5
  intake-server submit --answer do_you_smoke=No --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := parseAnswers(answers)
			if err != nil {
				return err
			}
			return withKiosk(cmd, func(ctx context.Context, k *kiosk) error {
				online := !offlineOn && k.monitor.Check(ctx)
				schema, err := k.schema(ctx, lang, online)
				if err != nil {
					return err
				}
				if prune {
					set = schema.PruneHidden(set)
				}
				if err := schema.Validate(set).Err(); err != nil {
					return err
				}

				if patientID == "" {
					patientID = intake.TempPatientID(time.Now())
					k.logger.Warn().Str("patient_id", patientID).Msg("no patient id given, using a placeholder")
				}

				router := &client.Router{Client: k.client, Queue: k.queue, Signal: k.monitor, Logger: k.logger}
				outcome, err := router.Route(ctx, intake.BuildPayload(patientID, set), intake.SubmitEndpoint(k.cfg.APIURL))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (patient %s)\n", outcome, patientID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&patientID, "patient-id", "", "registered patient id; a temporary id is generated when empty")
	cmd.Flags().StringVar(&lang, "lang", "", "questionnaire language used for validation")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "answer as field_name=value (repeatable)")
	cmd.Flags().BoolVar(&prune, "prune", false, "drop answers to questions hidden by earlier answers")
	cmd.Flags().BoolVar(&offlineOn, "offline", false, "queue without contacting the API")
	return cmd
}

// parseAnswers turns key=value flags into an answer set. Values may be empty.
func parseAnswers(pairs []string) (intake.Answers, error) {
	set := make(intake.Answers, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("answer %q must be field_name=value", p)
		}
		set[k] = v
	}
	if len(set) == 0 {
		return nil, errors.New("at least one --answer is required")
	}
	return set, nil
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay requests captured offline",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued requests, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKiosk(cmd, func(ctx context.Context, k *kiosk) error {
				records, err := k.queue.Drain(ctx)
				if err != nil {
					return err
				}
				renderRecords(cmd.OutOrStdout(), records)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Replay the queue now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKiosk(cmd, func(ctx context.Context, k *kiosk) error {
				res, err := k.queue.SyncAll(ctx)
				renderSyncResult(cmd.OutOrStdout(), res, err)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Poll the API health endpoint and replay the queue whenever it comes back online",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKiosk(cmd, func(ctx context.Context, k *kiosk) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return k.queue.Watch(ctx, k.monitor) })
				g.Go(func() error { return k.monitor.Run(ctx) })
				k.logger.Info().Str("api", k.cfg.APIURL).Str("policy", string(k.queue.Policy())).Msg("watching connectivity")
				if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	})

	var force bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKiosk(cmd, func(ctx context.Context, k *kiosk) error {
				n, err := k.queue.Len(ctx)
				if err != nil {
					return err
				}
				if n > 0 && !force {
					return fmt.Errorf("%d queued request(s) would be lost; rerun with --force", n)
				}
				if err := k.queue.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d queued request(s).\n", n)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&force, "force", false, "discard a non-empty queue")
	cmd.AddCommand(clearCmd)

	return cmd
}
