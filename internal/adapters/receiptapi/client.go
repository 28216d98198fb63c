// Package receiptapi is the client for the image upload and OCR service.
package receiptapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
)

const serviceName = "receipt-api"

var (
	errNoFilePath = errors.New("response has no file_path")
	errNotObject  = errors.New("extraction payload is not a JSON object")
)

// Image is an uploaded receipt photo.
type Image struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// Client talks to the upload service.
type Client struct {
	http *upstream.Client
}

// New returns a client rooted at baseURL.
func New(baseURL string, opts ...upstream.Option) *Client {
	return &Client{http: upstream.New(serviceName, baseURL, opts...)}
}

type uploadResponse struct {
	FilePath string `json:"file_path"`
}

// Upload stores the image and returns the stored-file reference.
func (c *Client) Upload(ctx context.Context, img Image) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := filepath.Base(img.Filename)
	if filename == "." || filename == "/" || filename == "" {
		filename = "receipt"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	if img.ContentType != "" {
		h.Set("Content-Type", img.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}

	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create form part: %w", err)
	}
	size, err := io.Copy(part, img.Data)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	audit, _ := json.Marshal(map[string]any{
		"filename":     filename,
		"content_type": img.ContentType,
		"size":         size,
	})

	resp, err := c.http.Send(ctx, "upload_image", upstream.Request{
		Method:      http.MethodPost,
		Path:        "/upload_image",
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
		AuditBody:   audit,
	})
	if err != nil {
		return "", err
	}

	var out uploadResponse
	if err := c.http.Decode("upload_image", resp.Body, &out); err != nil {
		return "", err
	}
	if out.FilePath == "" {
		return "", c.http.Malformed("upload_image", resp.Body, errNoFilePath)
	}
	return out.FilePath, nil
}

type processRequest struct {
	ImageURL string `json:"image_url"`
}

// Process runs extraction on a stored image. The payload keys vary between
// service versions, so it is returned undecoded beyond the top-level object.
func (c *Client) Process(ctx context.Context, filePath string) (map[string]any, error) {
	resp, err := c.http.SendJSON(ctx, "process_image", upstream.Request{
		Method: http.MethodPost,
		Path:   "/process_image",
	}, processRequest{ImageURL: filePath}, nil)
	if err != nil {
		return nil, err
	}

	var payload any
	if err := c.http.Decode("process_image", resp.Body, &payload); err != nil {
		return nil, err
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, c.http.Malformed("process_image", resp.Body, errNotObject)
	}
	return obj, nil
}
