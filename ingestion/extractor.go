package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/warp/ap-engine/ap"
)

// Extractor turns a document into the extraction service's raw JSON.
type Extractor interface {
	Extract(ctx context.Context, filename string, content []byte) ([]byte, error)
}

// HTTPExtractor posts the file as multipart form data to an extraction
// endpoint and returns the response body.
type HTTPExtractor struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPExtractor(url, apiKey string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPExtractor{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

// maxResponseBytes bounds the extraction response read into memory.
const maxResponseBytes = 8 << 20

func (e *HTTPExtractor) Extract(ctx context.Context, filename string, content []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, &body)
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ap.ExtractionError{Filename: filename, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ap.ExtractionError{Filename: filename, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ap.ExtractionError{
			Filename: filename,
			Message:  fmt.Sprintf("service returned %d: %s", resp.StatusCode, truncate(string(raw), 200)),
		}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
