package record

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/filestore"
)

func newTestHandler(maxFileSize int64) (*Handler, *fakeRepo, *filestore.MemoryStore) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "extracted"})
	return NewHandler(svc, maxFileSize), repo, store
}

func uploadForm(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s) error = %v", k, err)
		}
	}
	for name, data := range files {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile(%s) error = %v", name, err)
		}
		part.Write(data)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, userID string) echo.Context {
	ctx := auth.WithUser(req.Context(), userID, "tester")
	return e.NewContext(req.WithContext(ctx), rec)
}

func TestUploadHandler(t *testing.T) {
	h, repo, _ := newTestHandler(1 << 20)
	e := echo.New()

	patientID := uuid.New()
	body, contentType := uploadForm(t, map[string]string{
		"userId":     "user-1",
		"patientId":  patientID.String(),
		"recordType": "lab_report",
		"checkTime":  "2026-05-01",
	}, map[string][]byte{"scan1.pdf": []byte("pdf-bytes")})

	req := httptest.NewRequest(http.MethodPost, "/api/medical-records/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()

	if err := h.Upload(authedContext(e, req, rec, "user-1")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool          `json:"success"`
		Data    []ItemOutcome `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || len(resp.Data) != 1 || !resp.Data[0].Success {
		t.Fatalf("response = %s", rec.Body.String())
	}
	if resp.Data[0].OriginalFileName != "scan1.pdf" {
		t.Errorf("original file name = %q", resp.Data[0].OriginalFileName)
	}
	if len(repo.records) != 1 {
		t.Errorf("repo holds %d rows, want 1", len(repo.records))
	}
}

func TestUploadHandlerForeignUser(t *testing.T) {
	h, _, _ := newTestHandler(1 << 20)
	e := echo.New()

	body, contentType := uploadForm(t, map[string]string{
		"userId":     "someone-else",
		"patientId":  uuid.New().String(),
		"recordType": "lab_report",
	}, map[string][]byte{"scan.pdf": []byte("x")})

	req := httptest.NewRequest(http.MethodPost, "/api/medical-records/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()

	if err := h.Upload(authedContext(e, req, rec, "user-1")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestUploadHandlerFileTooLarge(t *testing.T) {
	h, _, _ := newTestHandler(8)
	e := echo.New()

	body, contentType := uploadForm(t, map[string]string{
		"userId":     "user-1",
		"patientId":  uuid.New().String(),
		"recordType": "lab_report",
	}, map[string][]byte{"big.pdf": []byte("way more than eight bytes")})

	req := httptest.NewRequest(http.MethodPost, "/api/medical-records/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()

	if err := h.Upload(authedContext(e, req, rec, "user-1")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestBatchDeleteHandler(t *testing.T) {
	h, repo, store := newTestHandler(1 << 20)
	e := echo.New()

	patientID := uuid.New()
	idA := ingestOneRecord(t, h.svc, patientID, "a.pdf")
	idB := ingestOneRecord(t, h.svc, patientID, "b.pdf")

	// B's blob is gone so its deletion fails.
	recB, _ := repo.GetByID(context.Background(), idB)
	if err := store.Remove(context.Background(), recB.FilePath); err != nil {
		t.Fatalf("setup remove failed: %v", err)
	}

	payload, _ := json.Marshal(map[string][]string{
		"recordIds": {idA.String(), idB.String()},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/medical-records/batch-delete", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.BatchDelete(e.NewContext(req, rec)); err != nil {
		t.Fatalf("BatchDelete() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Data    BatchDeleteResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "deleted 1 medical records" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Data.DeletedCount != 1 || len(resp.Data.Failures) != 1 {
		t.Errorf("data = %+v", resp.Data)
	}
	if resp.Data.Failures[0].ID != idB {
		t.Errorf("failure id = %s, want %s", resp.Data.Failures[0].ID, idB)
	}
}

func TestBatchDeleteHandlerEmpty(t *testing.T) {
	h, _, _ := newTestHandler(1 << 20)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/medical-records/batch-delete",
		strings.NewReader(`{"recordIds":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.BatchDelete(e.NewContext(req, rec)); err != nil {
		t.Fatalf("BatchDelete() error = %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "recordIds must be a non-empty array") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestFileHandler(t *testing.T) {
	h, _, _ := newTestHandler(1 << 20)
	e := echo.New()

	patientID := uuid.New()
	id := ingestOneRecord(t, h.svc, patientID, "scan.pdf")

	req := httptest.NewRequest(http.MethodGet, "/api/medical-records/preview/"+id.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("recordId")
	c.SetParamValues(id.String())

	if err := h.File(c); err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "application/pdf" {
		t.Errorf("content type = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentDisposition), "inline;") {
		t.Errorf("content disposition = %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if rec.Body.String() != "data-scan.pdf" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestFileHandlerNotFound(t *testing.T) {
	h, _, _ := newTestHandler(1 << 20)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("recordId")
	c.SetParamValues(uuid.New().String())

	if err := h.File(c); err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
