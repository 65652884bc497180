package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// QueueKey is the single store key holding the ordered record list.
const QueueKey = "queue"

// ErrPersistence wraps every store read or write failure surfaced by the
// queue.
var ErrPersistence = errors.New("offline store failure")

// FailurePolicy decides what happens to records whose replay failed.
type FailurePolicy string

const (
	// RetainFailed keeps failed records, in order, for the next pass.
	RetainFailed FailurePolicy = "retain"
	// ClearAll drops every attempted record after a pass, failed or not.
	ClearAll FailurePolicy = "clear"
)

// ParseFailurePolicy accepts "retain" or "clear". Empty means RetainFailed.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RetainFailed:
		return RetainFailed, nil
	case ClearAll:
		return ClearAll, nil
	}
	return "", fmt.Errorf("unknown sync failure policy %q", s)
}

// State is the queue-level lifecycle state.
type State int

const (
	StateEmpty State = iota
	StatePopulated
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	case StateSyncing:
		return "syncing"
	}
	return "unknown"
}

// Transport replays one record against the server.
type Transport interface {
	Send(ctx context.Context, rec Record) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, rec Record) error

func (f TransportFunc) Send(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Rejection is implemented by transport errors that know whether the server
// refused the record for good. A permanently rejected record is dropped
// under every policy, since replaying it can never succeed.
type Rejection interface {
	error
	Permanent() bool
}

// IsPermanent reports whether err, or an error it wraps, is a permanent
// Rejection.
func IsPermanent(err error) bool {
	var r Rejection
	return errors.As(err, &r) && r.Permanent()
}

// RecordFailure pairs a record with the error its replay produced. Dropped
// is set when the record was removed from the queue after failing.
type RecordFailure struct {
	Record  Record
	Err     error
	Dropped bool
}

// SyncPartialFailure is returned by SyncAll when at least one record failed.
type SyncPartialFailure struct {
	Attempted int
	Failed    []RecordFailure
	Policy    FailurePolicy
}

func (e *SyncPartialFailure) Error() string {
	return fmt.Sprintf("sync: %d of %d records failed (policy %s)", len(e.Failed), e.Attempted, e.Policy)
}

func (e *SyncPartialFailure) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// SyncResult summarises one pass.
type SyncResult struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Rejected  int  `json:"rejected"`
	Remaining int  `json:"remaining"`
	Shared    bool `json:"shared"`
}

// Queue owns the durable record list. All access to the queue key must go
// through it.
type Queue struct {
	store     Store
	transport Transport
	policy    FailurePolicy
	logger    zerolog.Logger

	mu      sync.Mutex
	flight  singleflight.Group
	syncing atomic.Bool
}

type Option func(*Queue)

func WithPolicy(p FailurePolicy) Option {
	return func(q *Queue) { q.policy = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

func NewQueue(store Store, transport Transport, opts ...Option) *Queue {
	q := &Queue{
		store:     store,
		transport: transport,
		policy:    RetainFailed,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Policy returns the configured failure policy.
func (q *Queue) Policy() FailurePolicy {
	return q.policy
}

// Enqueue appends rec to the durable queue. Store failures are returned
// wrapped in ErrPersistence and the record is not considered queued.
func (q *Queue) Enqueue(ctx context.Context, rec Record) error {
	if rec.URL == "" || rec.Method == "" {
		return fmt.Errorf("offline record needs url and method")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.load(ctx)
	if err != nil {
		return err
	}
	records = append(records, rec)
	if err := q.save(ctx, records); err != nil {
		return err
	}
	q.logger.Info().
		Str("record_id", rec.ID).
		Str("method", rec.Method).
		Str("url", rec.URL).
		Int("queued", len(records)).
		Msg("request queued offline")
	return nil
}

// Drain returns every queued record, oldest first, without removing them.
func (q *Queue) Drain(ctx context.Context) ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued records.
func (q *Queue) Len(ctx context.Context) (int, error) {
	records, err := q.Drain(ctx)
	return len(records), err
}

// State reports Syncing while a pass runs, otherwise Empty or Populated.
func (q *Queue) State(ctx context.Context) (State, error) {
	if q.syncing.Load() {
		return StateSyncing, nil
	}
	n, err := q.Len(ctx)
	if err != nil {
		return StateEmpty, err
	}
	if n == 0 {
		return StateEmpty, nil
	}
	return StatePopulated, nil
}

// Clear removes every queued record.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.save(ctx, nil)
}

// SyncAll replays the queue oldest first. A failing record is logged and
// the pass continues. Concurrent calls while a pass is in flight share its
// result instead of starting another pass; the shared pass runs under the
// first caller's context.
func (q *Queue) SyncAll(ctx context.Context) (SyncResult, error) {
	v, err, shared := q.flight.Do("sync", func() (interface{}, error) {
		return q.syncPass(ctx)
	})
	res, _ := v.(SyncResult)
	res.Shared = shared
	return res, err
}

func (q *Queue) syncPass(ctx context.Context) (SyncResult, error) {
	q.syncing.Store(true)
	defer q.syncing.Store(false)

	q.mu.Lock()
	snapshot, err := q.load(ctx)
	if err == nil {
		assigned := false
		for i := range snapshot {
			if snapshot[i].ID == "" {
				snapshot[i].ID = uuid.NewString()
				assigned = true
			}
		}
		if assigned {
			err = q.save(ctx, snapshot)
		}
	}
	q.mu.Unlock()
	if err != nil {
		return SyncResult{}, err
	}
	if len(snapshot) == 0 {
		return SyncResult{}, nil
	}

	q.logger.Info().Int("records", len(snapshot)).Msg("offline sync started")

	attempted := make(map[string]bool, len(snapshot))
	failedByID := make(map[string]Record)
	var failures []RecordFailure
	rejected := 0
	for _, rec := range snapshot {
		if ctx.Err() != nil {
			break
		}
		attempted[rec.ID] = true
		if err := q.transport.Send(ctx, rec); err != nil {
			rec.Attempts++
			permanent := IsPermanent(err)
			if permanent {
				rejected++
			} else {
				failedByID[rec.ID] = rec
			}
			failures = append(failures, RecordFailure{
				Record:  rec,
				Err:     err,
				Dropped: permanent || q.policy == ClearAll,
			})
			q.logger.Error().Err(err).
				Str("record_id", rec.ID).
				Str("method", rec.Method).
				Str("url", rec.URL).
				Int("attempts", rec.Attempts).
				Bool("rejected", permanent).
				Msg("offline record replay failed")
			continue
		}
		q.logger.Debug().Str("record_id", rec.ID).Msg("offline record replayed")
	}

	// Replayed records must leave the store even if ctx was cancelled mid-pass.
	done := context.WithoutCancel(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(done)
	if err != nil {
		return SyncResult{}, err
	}

	inSnapshot := make(map[string]bool, len(snapshot))
	for _, rec := range snapshot {
		inSnapshot[rec.ID] = true
	}
	var remaining []Record
	for _, rec := range current {
		if !inSnapshot[rec.ID] || !attempted[rec.ID] {
			remaining = append(remaining, rec)
			continue
		}
		if failed, ok := failedByID[rec.ID]; ok && q.policy == RetainFailed {
			remaining = append(remaining, failed)
		}
	}
	if err := q.save(done, remaining); err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{
		Attempted: len(attempted),
		Succeeded: len(attempted) - len(failures),
		Failed:    len(failures),
		Rejected:  rejected,
		Remaining: len(remaining),
	}
	evt := q.logger.Info()
	if res.Failed > 0 {
		evt = q.logger.Warn()
	}
	evt.Int("attempted", res.Attempted).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("rejected", res.Rejected).
		Int("remaining", res.Remaining).
		Str("policy", string(q.policy)).
		Msg("offline sync finished")

	if len(failures) > 0 {
		return res, &SyncPartialFailure{Attempted: res.Attempted, Failed: failures, Policy: q.policy}
	}
	return res, nil
}

// Watch runs SyncAll each time sig reports a transition to online, until
// ctx is done. Triggers that arrive during a pass collapse into at most one
// follow-up pass.
func (q *Queue) Watch(ctx context.Context, sig Signal) error {
	trigger := make(chan struct{}, 1)
	unsubscribe := sig.Subscribe(func(online bool) {
		if !online {
			return
		}
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
			q.logger.Info().Msg("connectivity restored, syncing offline queue")
			if _, err := q.SyncAll(ctx); err != nil {
				q.logger.Error().Err(err).Msg("offline sync")
			}
		}
	}
}

func (q *Queue) load(ctx context.Context) ([]Record, error) {
	raw, err := q.store.Get(ctx, QueueKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read queue: %w", ErrPersistence, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: decode queue: %w", ErrPersistence, err)
	}
	return records, nil
}

func (q *Queue) save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		if err := q.store.Remove(ctx, QueueKey); err != nil {
			return fmt.Errorf("%w: clear queue: %w", ErrPersistence, err)
		}
		return nil
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode queue: %w", ErrPersistence, err)
	}
	if err := q.store.Set(ctx, QueueKey, raw); err != nil {
		return fmt.Errorf("%w: write queue: %w", ErrPersistence, err)
	}
	return nil
}
