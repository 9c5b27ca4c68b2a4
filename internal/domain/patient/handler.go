package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/patients", h.Create)
	g.GET("/patients/:userId", h.ListByUser)
	g.GET("/patients/:patientId/detail", h.Detail)
	g.PATCH("/patients/:patientId", h.Update)
	g.PUT("/patients/:patientId", h.Update)
	g.DELETE("/patients/:patientId", h.Delete)
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}

func callerID(c echo.Context) uuid.UUID {
	uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil
	}
	return uid
}

// requireOwner loads the patient and rejects callers who do not own it.
func (h *Handler) requireOwner(c echo.Context) (*Patient, error) {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "invalid patient id")
	}
	p, ok, err := h.svc.Owner(c.Request().Context(), patientID, callerID(c))
	if errors.Is(err, ErrNotFound) {
		return nil, fail(c, http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return nil, fail(c, http.StatusInternalServerError, "failed to load patient")
	}
	if !ok {
		return nil, fail(c, http.StatusForbidden, "no permission to access this user's data")
	}
	return p, nil
}

type createRequest struct {
	UserID      string  `json:"userId"`
	PatientName string  `json:"patientName"`
	IDNumber    *string `json:"idNumber"`
	BirthDate   string  `json:"birthDate"`
	Gender      string  `json:"gender"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	if userID != callerID(c) {
		return fail(c, http.StatusForbidden, "no permission to access this user's data")
	}

	p, err := h.svc.Create(c.Request().Context(), CreateRequest{
		UserID:      userID,
		PatientName: req.PatientName,
		IDNumber:    req.IDNumber,
		BirthDate:   req.BirthDate,
		Gender:      req.Gender,
	})
	if errors.Is(err, ErrInvalidInput) {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to create patient")
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "patient created",
		"data":    p,
	})
}

func (h *Handler) ListByUser(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	if userID != callerID(c) {
		return fail(c, http.StatusForbidden, "no permission to access this user's data")
	}

	items, err := h.svc.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to list patients")
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": items})
}

func (h *Handler) Detail(c echo.Context) error {
	p, err := h.requireOwner(c)
	if p == nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": p})
}

type updateRequest struct {
	PatientName *string `json:"patientName"`
	IDNumber    *string `json:"idNumber"`
	BirthDate   *string `json:"birthDate"`
	Gender      *string `json:"gender"`
}

func (h *Handler) Update(c echo.Context) error {
	p, err := h.requireOwner(c)
	if p == nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	updated, err := h.svc.Update(c.Request().Context(), p.ID, UpdateRequest{
		PatientName: req.PatientName,
		IDNumber:    req.IDNumber,
		BirthDate:   req.BirthDate,
		Gender:      req.Gender,
	})
	if errors.Is(err, ErrInvalidInput) {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, ErrNotFound) {
		return fail(c, http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to update patient")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "patient updated",
		"data":    updated,
	})
}

func (h *Handler) Delete(c echo.Context) error {
	p, err := h.requireOwner(c)
	if p == nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), p.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(c, http.StatusNotFound, "patient not found")
		}
		return fail(c, http.StatusInternalServerError, "failed to delete patient")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "patient deleted"})
}
