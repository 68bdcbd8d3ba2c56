package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"crowdseg-service/src/models"
)

// MergeGateway computes the consensus mask over the stored result refs of
// a concluded assignment. It is an external collaborator: failures are
// surfaced as ErrMergeUnavailable and never block conclusion.
type MergeGateway interface {
	MergeMasks(ctx context.Context, resultRefs []string, weight float64) ([]byte, error)
}

type mergeRequest struct {
	Paths  []string `json:"paths"`
	Weight float64  `json:"weight"`
}

// HTTPMergeGateway calls the external segmentation toolbox service.
type HTTPMergeGateway struct {
	addr   string
	client *http.Client
}

// NewHTTPMergeGateway creates a merge gateway talking to the toolbox at addr.
func NewHTTPMergeGateway(addr string) *HTTPMergeGateway {
	return &HTTPMergeGateway{
		addr:   addr,
		client: &http.Client{},
	}
}

// MergeMasks posts the result refs and returns the merged mask bytes.
func (g *HTTPMergeGateway) MergeMasks(ctx context.Context, resultRefs []string, weight float64) ([]byte, error) {
	payload, err := json.Marshal(mergeRequest{Paths: resultRefs, Weight: weight})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.addr+"/merge", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMergeUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMergeUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: merge service returned status %d: %s",
			models.ErrMergeUnavailable, resp.StatusCode, string(body))
	}
	return body, nil
}
