package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vekaria04/hospital-management-system/internal/platform/auth"
	"github.com/vekaria04/hospital-management-system/internal/platform/validate"
	"github.com/vekaria04/hospital-management-system/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Kiosk endpoints
	api.POST("/register-patient", h.Register)
	api.GET("/returning-patient/:email", h.Returning)
	api.POST("/register-family", h.RegisterFamily)
	api.GET("/family-group/:email", h.FamilyGroup)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
	staff.GET("/patients", h.List)
	staff.GET("/patients/:id", h.Get)
	staff.PUT("/update-patient/:id", h.Update)
	staff.PUT("/family-group/update-member/:id", h.UpdateMember)
	staff.DELETE("/family-group/remove-member/:id", h.RemoveMember)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.PUT("/patients/:id/assign-doctor", h.AssignDoctor)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Patient registered successfully",
		"patient": p,
	})
}

func (h *Handler) Returning(c echo.Context) error {
	p, err := h.svc.Returning(c.Request().Context(), c.Param("email"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Patient updated successfully",
		"patient": p,
	})
}

func (h *Handler) RegisterFamily(c echo.Context) error {
	var req FamilyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.RegisterFamily(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":       "Family registered successfully",
		"familyGroupId": res.FamilyGroupID,
		"registered":    res.Registered,
		"skipped":       res.Skipped,
	})
}

func (h *Handler) FamilyGroup(c echo.Context) error {
	g, err := h.svc.FamilyGroup(c.Request().Context(), c.Param("email"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) UpdateMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateMemberRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.UpdateMember(c.Request().Context(), id, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Family member updated successfully",
		"member":  p,
	})
}

func (h *Handler) RemoveMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.RemoveMember(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Family member removed successfully",
		"member":  p,
	})
}

func (h *Handler) AssignDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req AssignDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.AssignDoctor(c.Request().Context(), id, req.DoctorID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoFamilyGroup), errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrIncompleteFamily):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
