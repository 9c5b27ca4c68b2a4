// Package ocr extracts text from uploaded documents through the provider's
// two-phase workflow API: upload the file to get a file id, then run the
// configured workflow against that id and collect the result text.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

const requestTimeout = 30 * time.Second

// FileKind is the document category the provider distinguishes.
type FileKind string

const (
	KindImage FileKind = "image"
	KindPDF   FileKind = "pdf"
)

var ErrEmptyFile = errors.New("file content is empty")

// ExtractionError is a failure reported by the provider at either phase.
// The message is preserved so the ingestion pipeline can embed it in the
// record's extracted text.
type ExtractionError struct {
	Phase   string // "upload" or "workflow"
	Message string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("ocr %s failed: %s", e.Phase, e.Message)
}

// Extractor is the contract the ingestion pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, data []byte, kind FileKind, fileName string) (string, error)
}

// Client talks to the OCR provider over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	workflowID string
	http       *http.Client
}

func NewClient(baseURL, apiKey, workflowID string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		workflowID: workflowID,
		http:       &http.Client{Timeout: requestTimeout},
	}
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type uploadData struct {
	ID string `json:"id"`
}

// Extract runs the full two-phase protocol and returns the recognized text.
func (c *Client) Extract(ctx context.Context, data []byte, kind FileKind, fileName string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if kind != KindImage && kind != KindPDF {
		return "", fmt.Errorf("unsupported file kind %q", kind)
	}

	fileID, err := c.uploadFile(ctx, data, kind, fileName)
	if err != nil {
		return "", err
	}

	return c.runWorkflow(ctx, fileID)
}

func (c *Client) uploadFile(ctx context.Context, data []byte, kind FileKind, fileName string) (string, error) {
	contentType := "image/jpeg"
	if kind == KindPDF {
		contentType = "application/pdf"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write multipart form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files/upload", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ExtractionError{Phase: "upload", Message: err.Error()}
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", &ExtractionError{Phase: "upload", Message: fmt.Sprintf("decode response: %v", err)}
	}
	if env.Code != 0 {
		return "", &ExtractionError{Phase: "upload", Message: providerMessage(env)}
	}

	var d uploadData
	if err := json.Unmarshal(env.Data, &d); err != nil || d.ID == "" {
		return "", &ExtractionError{Phase: "upload", Message: "missing file id in response"}
	}
	return d.ID, nil
}

func (c *Client) runWorkflow(ctx context.Context, fileID string) (string, error) {
	payload := map[string]interface{}{
		"workflow_id": c.workflowID,
		"parameters": map[string]interface{}{
			"file": map[string]string{"file_id": fileID},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal workflow payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/workflow/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ExtractionError{Phase: "workflow", Message: err.Error()}
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", &ExtractionError{Phase: "workflow", Message: fmt.Sprintf("decode response: %v", err)}
	}
	if env.Code != 0 {
		return "", &ExtractionError{Phase: "workflow", Message: providerMessage(env)}
	}

	text := decodeResultText(env.Data)
	if text == "" {
		return "", &ExtractionError{Phase: "workflow", Message: "no recognition result returned"}
	}
	return text, nil
}

// decodeResultText accepts the workflow result either as a plain JSON string
// or as structured JSON, which is rendered verbatim.
func decodeResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func providerMessage(env apiEnvelope) string {
	if env.Msg != "" {
		return env.Msg
	}
	return fmt.Sprintf("provider error code %d", env.Code)
}
