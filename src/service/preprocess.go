package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Preprocessor normalizes a raw worker submission into a result mask:
// resize to the task's tile dimension and binarize the alpha channel.
// The transform is deterministic and applied exactly once, at close time.
// It also reports the mask's foreground pixel count (mileage).
type Preprocessor interface {
	Normalize(ctx context.Context, raw []byte, tileDimension int) (mask []byte, foregroundPixels int, err error)
}

// HTTPPreprocessor calls the external image toolbox service.
type HTTPPreprocessor struct {
	addr   string
	client *http.Client
}

// NewHTTPPreprocessor creates a preprocessor talking to the toolbox at addr.
func NewHTTPPreprocessor(addr string) *HTTPPreprocessor {
	return &HTTPPreprocessor{
		addr:   addr,
		client: &http.Client{},
	}
}

// Normalize posts the raw image and returns the normalized mask. The
// toolbox reports the foreground pixel count in a response header.
func (p *HTTPPreprocessor) Normalize(ctx context.Context, raw []byte, tileDimension int) ([]byte, int, error) {
	url := fmt.Sprintf("%s/normalize?dim=%d", p.addr, tileDimension)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reach preprocess service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read preprocess response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("preprocess service returned status %d: %s", resp.StatusCode, string(body))
	}

	foreground, _ := strconv.Atoi(resp.Header.Get("X-Foreground-Pixels"))
	return body, foreground, nil
}
