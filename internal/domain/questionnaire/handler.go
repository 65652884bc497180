package questionnaire

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vekaria04/hospital-management-system/internal/platform/auth"
	"github.com/vekaria04/hospital-management-system/internal/platform/middleware"
	"github.com/vekaria04/hospital-management-system/internal/platform/validate"
	"github.com/vekaria04/hospital-management-system/pkg/pagination"
)

// schemaMaxAge is how long kiosks may reuse a schema before revalidating.
const schemaMaxAge = 60

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/questions", h.Schema, middleware.ETag(schemaMaxAge))
	api.POST("/submit-health-questionnaire", h.Submit)

	admin := api.Group("/questions", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/field-key", h.FieldKey)
	admin.POST("", h.Create)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
	admin.PUT("/:id/translations/:lang", h.SetTranslation)

	api.GET("/questions/:id", h.Get)

	staff := api.Group("/questionnaire-submissions", auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	staff.GET("", h.ListSubmissions)
	staff.GET("/:id", h.GetSubmission)
}

// requestLang prefers an explicit lang query over the negotiated locale.
func requestLang(c echo.Context) string {
	if lang := c.QueryParam("lang"); lang != "" {
		return lang
	}
	return middleware.LocaleFromContext(c.Request().Context())
}

func (h *Handler) Schema(c echo.Context) error {
	b, err := h.svc.SchemaJSON(c.Request().Context(), requestLang(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	q, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) FieldKey(c echo.Context) error {
	prompt := c.QueryParam("prompt")
	if prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}
	return c.JSON(http.StatusOK, map[string]string{"field_name": h.svc.FieldKey(prompt)})
}

func (h *Handler) Create(c echo.Context) error {
	var req QuestionRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	q, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, q)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req QuestionRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	q, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetTranslation(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req TranslationRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	t, err := h.svc.SetTranslation(c.Request().Context(), id, c.Param("lang"), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, t)
}

// Submit accepts the flat kiosk payload: patientId plus one key per answer.
func (h *Handler) Submit(c echo.Context) error {
	var body map[string]interface{}
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.Submit(c.Request().Context(), body, requestLang(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":       "Questionnaire submitted successfully",
		"questionnaire": sub,
	})
}

func (h *Handler) ListSubmissions(c echo.Context) error {
	pg := pagination.FromContext(c)
	subs, total, err := h.svc.Submissions(c.Request().Context(), c.QueryParam("patient_id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if subs == nil {
		subs = []*Submission{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(subs, total, pg))
}

func (h *Handler) GetSubmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sub, err := h.svc.Submission(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSubmissionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateField):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidQuestion), errors.Is(err, ErrInvalidSubmission):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
