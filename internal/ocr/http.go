package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

// HTTPEngine is an Engine talking to an OCR service over HTTP. The service
// accepts a PNG body on POST /ocr and answers {"text": "..."}.
type HTTPEngine struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEngine creates an HTTPEngine for the given base URL.
func NewHTTPEngine(endpoint string) *HTTPEngine {
	return &HTTPEngine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Recognize sends the region image to the OCR service.
func (e *HTTPEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode region image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/ocr", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read OCR response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	var parsed recognizeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("invalid OCR response: %w", err)
	}

	return parsed.Text, nil
}
