package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/vekaria04/hospital-management-system/internal/platform/auth"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

type mockStore struct {
	patients []*ReportedPatient
	latest   map[uuid.UUID]*PatientSubmission
	prompts  []Prompt
	rows     []*ExportRow
	since    time.Time
	sql      string
}

func (m *mockStore) ReportedPatients(context.Context) ([]*ReportedPatient, error) {
	return m.patients, nil
}

func (m *mockStore) LatestSubmission(_ context.Context, id uuid.UUID) (*PatientSubmission, error) {
	if s, ok := m.latest[id]; ok {
		return s, nil
	}
	return nil, ErrNoSubmission
}

func (m *mockStore) Prompts(context.Context) ([]Prompt, error) { return m.prompts, nil }

func (m *mockStore) ExportRows(_ context.Context, since time.Time) ([]*ExportRow, error) {
	m.since = since
	return m.rows, nil
}

func (m *mockStore) Evaluate(_ context.Context, sql string) ([]map[string]interface{}, error) {
	m.sql = sql
	return []map[string]interface{}{{"total": 3}}, nil
}

var testPrompts = []Prompt{
	{FieldName: "do_you_smoke", Question: "Do you smoke?", Category: "lifestyle", SortOrder: 1},
	{FieldName: "how_many_per_day", Question: "How many per day?", Category: "lifestyle", SortOrder: 2},
	{FieldName: "allergies", Question: "Any allergies?", Category: "medical history", SortOrder: 3},
	{FieldName: "pregnant", Question: "Are you pregnant?", Category: "medical history", SortOrder: 4},
}

func testSubmission() *PatientSubmission {
	return &PatientSubmission{
		PatientID:   uuid.New(),
		FirstName:   "Asha",
		LastName:    "Patel",
		Email:       "asha@example.test",
		Age:         intPtr(34),
		Gender:      "female",
		SubmittedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		PainLevel:   intPtr(6),
		Lang:        "en",
		Answers: map[string]*string{
			"do_you_smoke": strPtr("Yes"),
			"allergies":    nil,
			"legacy_key":   strPtr("kept"),
			"pain_level":   strPtr("6"),
		},
	}
}

func TestFindMeasure(t *testing.T) {
	for _, def := range PredefinedMeasures {
		if def.SQL == "" || def.Name == "" || def.Description == "" {
			t.Errorf("measure %s is incomplete", def.ID)
		}
		if FindMeasure(def.ID) == nil {
			t.Errorf("FindMeasure(%q) returned nil", def.ID)
		}
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestRenderPatientReport(t *testing.T) {
	report := RenderPatientReport(testSubmission(), testPrompts)

	for _, want := range []string{
		"Patient: Asha Patel <asha@example.test>",
		"Age: 34",
		"Gender: Female",
		"Submitted: 2026-03-01 09:30 UTC (en)",
		"Pain level: 6/10",
		"Lifestyle\n---------\nDo you smoke?: Yes\n",
		"Medical History\n",
		"Any allergies?: (no answer)",
		"Other answers",
		"legacy_key: kept",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "How many per day?") || strings.Contains(report, "Are you pregnant?") {
		t.Errorf("unanswered questions should be left out:\n%s", report)
	}
	if strings.Index(report, "Lifestyle") > strings.Index(report, "Medical History") {
		t.Error("categories should follow schema order")
	}
}

func TestWriteSubmissionsXLSX(t *testing.T) {
	rows := []*ExportRow{
		{
			SubmissionID: uuid.New(), PatientRef: "temp-1700000000000", Lang: "es",
			SubmittedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			Answers:     map[string]*string{"do_you_smoke": strPtr("No"), "zz_extra": strPtr("x")},
		},
		{
			SubmissionID: uuid.New(), PatientRef: "p2", PatientName: "Asha Patel", PainLevel: intPtr(3), Lang: "en",
			SubmittedAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
			Answers:     map[string]*string{"allergies": strPtr("Peanuts")},
		},
	}
	var buf bytes.Buffer
	if err := WriteSubmissionsXLSX(&buf, rows, testPrompts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	got, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(got))
	}
	header := got[0]
	if header[0] != "Submission ID" || header[7] != "Do you smoke?" || header[len(header)-1] != "zz_extra" {
		t.Errorf("unexpected header %v", header)
	}
	if got[1][1] != "temp-1700000000000" || got[1][7] != "No" {
		t.Errorf("unexpected first row %v", got[1])
	}
	if got[2][4] != "3" || got[2][9] != "Peanuts" {
		t.Errorf("unexpected second row %v", got[2])
	}
}

func newTestHandler() (*Handler, *mockStore, *echo.Echo) {
	store := &mockStore{latest: map[uuid.UUID]*PatientSubmission{}, prompts: testPrompts}
	h := NewHandler(store)
	h.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))
	return h, store, e
}

func serve(e *echo.Echo, method, path string, roles ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if len(roles) > 0 {
		req = req.WithContext(auth.WithIdentity(req.Context(), "u1", roles...))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ReportedPatients_Empty(t *testing.T) {
	_, _, e := newTestHandler()
	rec := serve(e, http.MethodGet, "/api/reported-patients", auth.RoleDoctor)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_PatientReport(t *testing.T) {
	_, store, e := newTestHandler()
	sub := testSubmission()
	store.latest[sub.PatientID] = sub

	rec := serve(e, http.MethodGet, "/api/reports/patient/"+sub.PatientID.String(), auth.RoleDoctor)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Report string `json:"report"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !strings.Contains(body.Report, "Do you smoke?: Yes") {
		t.Errorf("unexpected report %q", body.Report)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reports/patient/"+sub.PatientID.String(), nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMETextPlain)
	req = req.WithContext(auth.WithIdentity(req.Context(), "u1", auth.RoleAdmin))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if !strings.HasPrefix(rec.Body.String(), "Patient Health Report") {
		t.Errorf("expected plain text, got %s", rec.Body.String())
	}
}

func TestHandler_PatientReport_Errors(t *testing.T) {
	_, _, e := newTestHandler()
	if rec := serve(e, http.MethodGet, "/api/reports/patient/nope", auth.RoleDoctor); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/reports/patient/"+uuid.New().String(), auth.RoleDoctor); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_ExportSubmissions(t *testing.T) {
	_, store, e := newTestHandler()
	rec := serve(e, http.MethodGet, "/api/reports/submissions.xlsx?days=7", auth.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != mimeXLSX {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "submissions-20260310.xlsx") {
		t.Errorf("disposition = %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if want := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC); !store.since.Equal(want) {
		t.Errorf("since = %v, want %v", store.since, want)
	}
	if rec := serve(e, http.MethodGet, "/api/reports/submissions.xlsx?days=-1", auth.RoleAdmin); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad days, got %d", rec.Code)
	}
}

func TestHandler_EvaluateMeasure(t *testing.T) {
	_, store, e := newTestHandler()
	rec := serve(e, http.MethodGet, "/api/reports/measures/pain-level-distribution/evaluate", auth.RoleDoctor)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.sql != FindMeasure("pain-level-distribution").SQL {
		t.Error("measure SQL not evaluated")
	}
	if rec := serve(e, http.MethodGet, "/api/reports/measures/unknown/evaluate", auth.RoleDoctor); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRoutes_Roles(t *testing.T) {
	_, _, e := newTestHandler()
	tests := []struct {
		name  string
		path  string
		roles []string
		want  int
	}{
		{"anonymous", "/api/reported-patients", nil, http.StatusUnauthorized},
		{"volunteer", "/api/reported-patients", []string{auth.RoleVolunteer}, http.StatusForbidden},
		{"doctor cannot export", "/api/reports/submissions.xlsx", []string{auth.RoleDoctor}, http.StatusForbidden},
		{"admin lists measures", "/api/reports/measures", []string{auth.RoleAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(e, http.MethodGet, tt.path, tt.roles...); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
