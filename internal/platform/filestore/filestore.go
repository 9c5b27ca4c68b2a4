// Package filestore is the client for the remote file storage service that
// holds the uploaded document blobs. The service accepts multipart uploads
// into a directory namespace, serves raw bytes back by URL, and deletes by
// relative path. Its delete endpoint reports how many items were removed;
// a zero count is a failure here because callers rely on "remove succeeded"
// meaning the blob is gone.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

var (
	ErrMissingPath    = errors.New("missing file path")
	ErrNotFound       = errors.New("file not found")
	ErrNothingDeleted = errors.New("file store deleted nothing")
)

// StoredFile is the location handle returned by the store for an upload.
type StoredFile struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Store is the contract for blob storage backends.
type Store interface {
	Put(ctx context.Context, data []byte, fileName, dir string) (*StoredFile, error)
	Get(ctx context.Context, fileURL string) ([]byte, error)
	Remove(ctx context.Context, filePath string) error
}

// Client talks to the remote file storage service over HTTP.
type Client struct {
	baseURL     string
	token       string
	tokenHeader string
	http        *http.Client
}

// NewClient creates a Client for the service at baseURL. token may be empty;
// when set it is sent in the configured header on every call.
func NewClient(baseURL, token, tokenHeader string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		tokenHeader: tokenHeader,
		http:        &http.Client{Timeout: requestTimeout},
	}
}

type uploadResponse struct {
	Files []StoredFile `json:"files"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

// Put uploads data as a multipart file into dir, overwriting any file with
// the same name, and returns the durable location handle.
func (c *Client) Put(ctx context.Context, data []byte, fileName, dir string) (*StoredFile, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write multipart form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart form: %w", err)
	}

	q := url.Values{}
	q.Set("dir", dir)
	q.Set("on_exists", "overwrite")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload?"+q.Encode(), &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setToken(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload to file store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload to file store: unexpected status %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if len(out.Files) == 0 {
		return nil, fmt.Errorf("upload to file store: empty file list in response")
	}

	f := out.Files[0]
	return &f, nil
}

// Get downloads the raw bytes for a stored file. fileURL may be absolute or
// relative to the store's base URL.
func (c *Client) Get(ctx context.Context, fileURL string) ([]byte, error) {
	full := fileURL
	if !strings.HasPrefix(fileURL, "http") {
		if !strings.HasPrefix(fileURL, "/") {
			full = c.baseURL + "/" + fileURL
		} else {
			full = c.baseURL + fileURL
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	c.setToken(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download from file store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download from file store: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download response: %w", err)
	}
	return data, nil
}

// Remove deletes a stored file by its path or URL. A transport-level success
// with a zero deleted count still fails: the store accepted the call but
// removed nothing.
func (c *Client) Remove(ctx context.Context, filePath string) error {
	if filePath == "" {
		return ErrMissingPath
	}

	q := url.Values{}
	q.Set("path", RelativePath(filePath))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/delete?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setToken(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete from file store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete from file store: unexpected status %d", resp.StatusCode)
	}

	var out deleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode delete response: %w", err)
	}
	if out.Deleted == 0 {
		return ErrNothingDeleted
	}
	return nil
}

func (c *Client) setToken(req *http.Request) {
	if c.token != "" {
		req.Header.Set(c.tokenHeader, c.token)
	}
}

// RelativePath reduces a stored file URL to the path the delete endpoint
// expects: URL-decoded, with the scheme/host and the store's mount prefix
// stripped, and no leading slashes.
func RelativePath(filePath string) string {
	if filePath == "" {
		return ""
	}
	p := filePath
	if strings.HasPrefix(p, "http") {
		if u, err := url.Parse(p); err == nil {
			p = u.Path
			if decoded, derr := url.PathUnescape(p); derr == nil {
				p = decoded
			}
			p = strings.Replace(p, "/file_store/", "", 1)
		}
	}
	return strings.TrimLeft(p, "/")
}
