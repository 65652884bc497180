package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vekaria04/hospital-management-system/internal/domain/questionnaire"
	"github.com/vekaria04/hospital-management-system/internal/platform/events"
	"github.com/vekaria04/hospital-management-system/pkg/intake"
)

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"do_you_smoke=Yes", " notes =", "formula=a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["do_you_smoke"] != "Yes" || got["formula"] != "a=b" {
		t.Errorf("unexpected answers %v", got)
	}
	if v, ok := got["notes"]; !ok || v != "" {
		t.Errorf("empty answer should be kept, got %q %v", v, ok)
	}

	for _, bad := range [][]string{nil, {"novalue"}, {"=x"}} {
		if _, err := parseAnswers(bad); err == nil {
			t.Errorf("parseAnswers(%v) should fail", bad)
		}
	}
}

// memQuestions is an in-memory question repository for import tests.
type memQuestions struct {
	questions []*questionnaire.Question
	trs       []*questionnaire.Translation
}

func (m *memQuestions) List(context.Context) ([]*questionnaire.Question, error) {
	return m.questions, nil
}

func (m *memQuestions) GetByID(_ context.Context, id int64) (*questionnaire.Question, error) {
	for _, q := range m.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, questionnaire.ErrNotFound
}

func (m *memQuestions) Create(_ context.Context, q *questionnaire.Question) error {
	q.ID = int64(len(m.questions) + 1)
	m.questions = append(m.questions, q)
	return nil
}

func (m *memQuestions) Update(context.Context, *questionnaire.Question) error { return nil }
func (m *memQuestions) Delete(context.Context, int64) error                   { return nil }

func (m *memQuestions) Translations(context.Context, string) (map[int64]*questionnaire.Translation, error) {
	return nil, nil
}

func (m *memQuestions) UpsertTranslation(_ context.Context, t *questionnaire.Translation) error {
	m.trs = append(m.trs, t)
	return nil
}

func TestImportSeed(t *testing.T) {
	f, err := loadSeed("testdata/questions.yaml")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	repo := &memQuestions{}
	svc := questionnaire.NewService(repo, nil, nil, events.Nop{})

	n, err := importSeed(context.Background(), svc, f)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 6 || len(repo.questions) != 6 {
		t.Fatalf("expected 6 questions, got %d", len(repo.questions))
	}
	follow := repo.questions[1]
	if follow.ParentQuestionID == nil || *follow.ParentQuestionID != repo.questions[0].ID {
		t.Errorf("follow-up not linked to its parent: %+v", follow)
	}
	if repo.questions[0].FieldName != "do_you_smoke" {
		t.Errorf("field name = %q", repo.questions[0].FieldName)
	}
	if !repo.questions[5].Optional {
		t.Error("notes should be optional")
	}
	if len(repo.trs) != 1 || repo.trs[0].Lang != "es" {
		t.Errorf("expected one es translation, got %+v", repo.trs)
	}
}

func TestImportSeed_UnknownParent(t *testing.T) {
	f := &seedFile{Questions: []seedQuestion{{Question: "Child?", Category: "C", Parent: "missing"}}}
	svc := questionnaire.NewService(&memQuestions{}, nil, nil, events.Nop{})
	if _, err := importSeed(context.Background(), svc, f); err == nil {
		t.Fatal("expected an error for an undefined parent")
	}
}

// fakeAPI serves the endpoints the kiosk commands call and records
// submissions.
type fakeAPI struct {
	mu        sync.Mutex
	submitted []map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/api/questions":
		yes := "Yes"
		parent := int64(1)
		json.NewEncoder(w).Encode([]intake.Question{
			{ID: 1, Question: "Do you smoke?", Category: "Lifestyle", FieldName: "do_you_smoke", Options: []string{"Yes", "No"}},
			{ID: 2, Question: "How many per day?", Category: "Lifestyle", FieldName: "how_many", Options: []string{}, ParentQuestionID: &parent, TriggerValue: &yes},
		})
	case r.URL.Path == intake.SubmitPath && r.Method == http.MethodPost:
		var body map[string]string
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &body)
		f.mu.Lock()
		f.submitted = append(f.submitted, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"ok"}`))
	default:
		http.NotFound(w, r)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func kioskEnv(t *testing.T, apiURL string) {
	t.Setenv("ENV", "test")
	t.Setenv("INTAKE_API_URL", apiURL)
	t.Setenv("OFFLINE_STORE", "file")
	t.Setenv("OFFLINE_STORE_PATH", t.TempDir())
	t.Setenv("SYNC_FAILURE_POLICY", "retain")
}

// saveSchema fetches the schema once so offline submits can validate.
func saveSchema(t *testing.T) {
	t.Helper()
	if _, err := runCLI(t, "questions", "list"); err != nil {
		t.Fatalf("questions list: %v", err)
	}
}

func TestKiosk_OfflineSubmitValidatesAgainstSavedSchema(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()
	kioskEnv(t, srv.URL)

	if _, err := runCLI(t, "submit", "--offline", "--answer", "do_you_smoke=No"); err == nil ||
		!strings.Contains(err.Error(), "no question schema") {
		t.Fatalf("offline submit without a saved schema should be refused, got %v", err)
	}

	saveSchema(t)
	_, err := runCLI(t, "submit", "--offline", "--answer", "do_you_smoke=Yes")
	var verrs intake.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 1 || verrs[0].Field != "how_many" {
		t.Fatalf("expected a missing how_many error, got %v", err)
	}

	out, _ := runCLI(t, "queue", "list")
	if !strings.Contains(out, "Queue is empty.") {
		t.Errorf("rejected answers must not be queued:\n%s", out)
	}
}

func TestKiosk_OfflineSubmitThenSync(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()
	kioskEnv(t, srv.URL)
	saveSchema(t)

	out, err := runCLI(t, "submit", "--offline", "--answer", "do_you_smoke=No")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(out, "queued (patient temp-") {
		t.Errorf("unexpected output %q", out)
	}

	out, err = runCLI(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, intake.SubmitPath) {
		t.Errorf("queued record missing from listing:\n%s", out)
	}

	if _, err := runCLI(t, "queue", "sync"); err != nil {
		t.Fatalf("queue sync: %v", err)
	}
	if len(api.submitted) != 1 || api.submitted[0]["do_you_smoke"] != "No" {
		t.Fatalf("expected the queued submission to be replayed, got %v", api.submitted)
	}
	if !intake.IsTempPatientID(api.submitted[0][intake.PatientIDKey]) {
		t.Errorf("expected a temporary patient id, got %q", api.submitted[0][intake.PatientIDKey])
	}

	out, _ = runCLI(t, "queue", "list")
	if !strings.Contains(out, "Queue is empty.") {
		t.Errorf("queue should be empty after sync:\n%s", out)
	}
}

func TestKiosk_OnlineSubmitValidates(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()
	kioskEnv(t, srv.URL)

	if _, err := runCLI(t, "submit", "--patient-id", "p1", "--answer", "do_you_smoke=Yes"); err == nil {
		t.Fatal("expected a validation error for the visible follow-up")
	}
	if len(api.submitted) != 0 {
		t.Fatal("nothing should be sent when validation fails")
	}

	out, err := runCLI(t, "submit", "--patient-id", "p1", "--answer", "do_you_smoke=No", "--answer", "how_many=5", "--prune")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(out, "submitted") {
		t.Errorf("unexpected output %q", out)
	}
	if _, ok := api.submitted[0]["how_many"]; ok {
		t.Error("hidden answer should have been pruned")
	}
}

func TestKiosk_ClearNeedsForce(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()
	kioskEnv(t, srv.URL)
	saveSchema(t)

	if _, err := runCLI(t, "submit", "--offline", "--patient-id", "p1", "--answer", "do_you_smoke=No"); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "queue", "clear"); err == nil {
		t.Fatal("clear without --force should refuse a non-empty queue")
	}
	out, err := runCLI(t, "queue", "clear", "--force")
	if err != nil || !strings.Contains(out, "Cleared 1") {
		t.Errorf("unexpected clear result %q %v", out, err)
	}
}

func TestFieldKeyCommand(t *testing.T) {
	out, err := runCLI(t, "questions", "field-key", "Any", "recent", "surgeries?")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "any_recent_surgeries" {
		t.Errorf("got %q", out)
	}
}
