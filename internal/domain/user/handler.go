package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth endpoints. These stay outside the JWT
// middleware since they are how a token is obtained in the first place.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/register", h.Register)
	g.POST("/auth/login", h.Login)
	g.POST("/auth/logout", h.Logout)
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	u, err := h.svc.Register(c.Request().Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateName):
		return fail(c, http.StatusConflict, "username already taken")
	case err != nil:
		return fail(c, http.StatusInternalServerError, "registration failed")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "registered",
		"data": echo.Map{
			"userId":   u.ID,
			"username": u.Username,
		},
	})
}

func (h *Handler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "invalid username or password")
	case err != nil:
		return fail(c, http.StatusInternalServerError, "login failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "logged in",
		"data":    result,
	})
}

// Logout is a client-side token discard; the server just acknowledges.
func (h *Handler) Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out"})
}
