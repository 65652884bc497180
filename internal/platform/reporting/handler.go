package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vekaria04/hospital-management-system/internal/platform/auth"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	store Store
	now   func() time.Time
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	staff.GET("/reported-patients", h.ReportedPatients)
	staff.GET("/reports/patient/:id", h.PatientReport)
	staff.GET("/reports/measures", h.ListMeasures)
	staff.GET("/reports/measures/:id/evaluate", h.EvaluateMeasure)

	admin := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/submissions.xlsx", h.ExportSubmissions)
}

func (h *Handler) ReportedPatients(c echo.Context) error {
	patients, err := h.store.ReportedPatients(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if patients == nil {
		patients = []*ReportedPatient{}
	}
	return c.JSON(http.StatusOK, patients)
}

// PatientReport renders the latest submission of a patient. Clients that
// accept text/plain get the report body directly, others get it wrapped in
// JSON.
func (h *Handler) PatientReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	sub, err := h.store.LatestSubmission(ctx, id)
	if errors.Is(err, ErrNoSubmission) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	prompts, err := h.store.Prompts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	report := RenderPatientReport(sub, prompts)
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextPlain) {
		return c.String(http.StatusOK, report)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patientId":   sub.PatientID,
		"submittedAt": sub.SubmittedAt,
		"report":      report,
	})
}

// ExportSubmissions streams an xlsx workbook of submissions. The optional
// days query limits the export to recent submissions.
func (h *Handler) ExportSubmissions(c echo.Context) error {
	since := time.Time{}
	if d := c.QueryParam("days"); d != "" {
		var days int
		if _, err := fmt.Sscanf(d, "%d", &days); err != nil || days <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a positive integer")
		}
		since = h.now().AddDate(0, 0, -days)
	}
	ctx := c.Request().Context()
	rows, err := h.store.ExportRows(ctx, since)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	prompts, err := h.store.Prompts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var buf bytes.Buffer
	if err := WriteSubmissionsXLSX(&buf, rows, prompts); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("submissions-%s.xlsx", h.now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's query and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}
	results, err := h.store.Evaluate(c.Request().Context(), measure.SQL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}
	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: h.now(),
		Results:     results,
	})
}
