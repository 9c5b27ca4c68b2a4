package record

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/pkg/pagination"
)

type Handler struct {
	svc         *Service
	maxFileSize int64
}

func NewHandler(svc *Service, maxFileSize int64) *Handler {
	return &Handler{svc: svc, maxFileSize: maxFileSize}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/medical-records/upload", h.Upload)
	g.POST("/medical-records/batch-delete", h.BatchDelete)
	g.GET("/medical-records/preview/:recordId", h.File)
	g.GET("/medical-records/file/:recordId", h.File) // kept for older clients
	g.GET("/medical-records/detail/:recordId", h.Detail)
	g.PATCH("/medical-records/:recordId", h.Update)
	g.GET("/medical-records/:patientId", h.ListByPatient)
	g.DELETE("/medical-records/:recordId", h.Delete)
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}

// Upload ingests a batch of files for one patient. The response always holds
// one outcome per submitted file, in submission order.
func (h *Handler) Upload(c echo.Context) error {
	ctx := c.Request().Context()

	userID := c.FormValue("userId")
	if uid := auth.UserIDFromContext(ctx); uid != "" && userID != "" && uid != userID {
		return fail(c, http.StatusForbidden, "no permission to access this user's data")
	}

	patientID, err := uuid.Parse(c.FormValue("patientId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "missing required fields: userId, patientId, file")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fail(c, http.StatusBadRequest, "missing required fields: userId, patientId, file")
	}

	var files []UploadFile
	for _, fh := range form.File["file"] {
		if fh.Size > h.maxFileSize {
			return fail(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file %s exceeds the maximum allowed size", fh.Filename))
		}
		src, err := fh.Open()
		if err != nil {
			return fail(c, http.StatusInternalServerError, "failed to open uploaded file")
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return fail(c, http.StatusInternalServerError, "failed to read uploaded file")
		}
		files = append(files, UploadFile{Name: fh.Filename, Data: data})
	}

	outcomes, err := h.svc.Ingest(ctx, IngestRequest{
		UserID:     userID,
		PatientID:  patientID,
		RecordType: c.FormValue("recordType"),
		CheckTime:  c.FormValue("checkTime"),
		Remarks:    c.FormValue("remarks"),
		Files:      files,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidBatch) {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "file upload processed",
		"data":    outcomes,
	})
}

// File proxies the stored bytes for a record from the file store.
func (h *Handler) File(c echo.Context) error {
	id, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid record id")
	}

	data, rec, err := h.svc.ReadFile(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(c, http.StatusNotFound, "medical record not found")
		}
		return fail(c, http.StatusInternalServerError, "failed to fetch file")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`inline; filename="%s"`, url.PathEscape(rec.FileName)))
	return c.Blob(http.StatusOK, rec.ContentType(), data)
}

func (h *Handler) Detail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid record id")
	}

	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(c, http.StatusNotFound, "medical record not found")
		}
		return fail(c, http.StatusInternalServerError, "failed to fetch medical record")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": rec})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid record id")
	}

	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	rec, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(c, http.StatusNotFound, "medical record not found")
		}
		return fail(c, http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "updated", "data": rec})
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid patient id")
	}

	pg := pagination.FromContext(c)
	records, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to query medical records")
	}
	if records == nil {
		records = []*Record{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"records":    records,
			"pagination": pagination.NewMeta(pg, total),
		},
	})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid record id")
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(c, http.StatusNotFound, "medical record not found")
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "medical record deleted"})
}

type batchDeleteRequest struct {
	RecordIDs []uuid.UUID `json:"recordIds"`
}

func (h *Handler) BatchDelete(c echo.Context) error {
	var req batchDeleteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "recordIds must be a non-empty array")
	}

	result, err := h.svc.BatchDelete(c.Request().Context(), req.RecordIDs)
	if err != nil {
		if errors.Is(err, ErrInvalidBatch) {
			return fail(c, http.StatusBadRequest, "recordIds must be a non-empty array")
		}
		return fail(c, http.StatusInternalServerError, "batch delete failed")
	}

	if result.Failures == nil {
		result.Failures = []DeleteFailure{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("deleted %d medical records", result.DeletedCount),
		"data":    result,
	})
}
