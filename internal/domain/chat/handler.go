package chat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/llm"
	"github.com/medrec/medrec/pkg/pagination"
)

const historyDefaultLimit = 50

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/chat/message", h.SendMessage)
	g.GET("/chat/history/:userId", h.History)
	g.DELETE("/chat/history/:userId", h.ClearHistory)
	g.POST("/chat/analysis/abnormal", h.AnalyzeAbnormal)
	g.POST("/chat/analysis/trend", h.AnalyzeTrend)
	g.GET("/chat/analysis/:patientId", h.AnalysisHistory)
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}

// requireOwnUser enforces that the caller only touches their own data.
func requireOwnUser(c echo.Context, userID string) error {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" && userID != "" && uid != userID {
		return fail(c, http.StatusForbidden, "no permission to access this user's data")
	}
	return nil
}

type sendMessageRequest struct {
	UserID    string `json:"userId"`
	PatientID string `json:"patientId"`
	Message   string `json:"message"`
}

func (h *Handler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.Message == "" {
		return fail(c, http.StatusBadRequest, "user id and message are required")
	}
	if err := requireOwnUser(c, req.UserID); err != nil {
		return err
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	var patientID *uuid.UUID
	if req.PatientID != "" {
		pid, err := uuid.Parse(req.PatientID)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid patient id")
		}
		patientID = &pid
	}

	msg, err := h.svc.Send(c.Request().Context(), userID, patientID, req.Message)
	if err != nil {
		return h.llmError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"userMessage": msg.UserMessage,
			"aiReply":     msg.AIReply,
			"timestamp":   msg.Timestamp,
		},
	})
}

func (h *Handler) History(c echo.Context) error {
	userIDStr := c.Param("userId")
	if err := requireOwnUser(c, userIDStr); err != nil {
		return err
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}

	var patientID *uuid.UUID
	if pidStr := c.QueryParam("patientId"); pidStr != "" {
		pid, err := uuid.Parse(pidStr)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid patient id")
		}
		patientID = &pid
	}

	pg := pagination.FromContextWithDefault(c, historyDefaultLimit)
	items, total, err := h.svc.History(c.Request().Context(), userID, patientID, pg.Limit, pg.Offset())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to fetch chat history")
	}
	if items == nil {
		items = []*Message{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"chatHistory": items,
			"pagination":  pagination.NewMeta(pg, total),
		},
	})
}

func (h *Handler) ClearHistory(c echo.Context) error {
	userIDStr := c.Param("userId")
	if err := requireOwnUser(c, userIDStr); err != nil {
		return err
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}

	var patientID *uuid.UUID
	if pidStr := c.QueryParam("patientId"); pidStr != "" {
		pid, err := uuid.Parse(pidStr)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid patient id")
		}
		patientID = &pid
	}

	deleted, err := h.svc.ClearHistory(c.Request().Context(), userID, patientID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to clear chat history")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("deleted %d chat messages", deleted),
	})
}

type analysisRequest struct {
	PatientID string `json:"patientId"`
	Indicator string `json:"indicator"`
}

func (h *Handler) AnalyzeAbnormal(c echo.Context) error {
	var req analysisRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid patient id")
	}

	result, err := h.svc.AnalyzeAbnormal(c.Request().Context(), patientID)
	if err != nil {
		return h.llmError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": result})
}

func (h *Handler) AnalyzeTrend(c echo.Context) error {
	var req analysisRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid patient id")
	}
	if req.Indicator == "" {
		return fail(c, http.StatusBadRequest, "indicator name is required")
	}

	result, err := h.svc.AnalyzeTrend(c.Request().Context(), patientID, req.Indicator)
	if err != nil {
		return h.llmError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": result})
}

func (h *Handler) AnalysisHistory(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid patient id")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.AnalysisHistory(c.Request().Context(), patientID, pg.Limit, pg.Offset())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to fetch analysis history")
	}
	if items == nil {
		items = []*AnalysisResult{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"analyses":   items,
			"pagination": pagination.NewMeta(pg, total),
		},
	})
}

func (h *Handler) llmError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, llm.ErrUnauthorized):
		return fail(c, http.StatusInternalServerError, "AI provider authentication failed, check the API key")
	case errors.Is(err, llm.ErrMissingAPIKey):
		return fail(c, http.StatusInternalServerError, err.Error())
	default:
		return fail(c, http.StatusInternalServerError, "AI reply failed: "+err.Error())
	}
}
