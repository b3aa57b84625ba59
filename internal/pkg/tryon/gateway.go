package tryon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/supuni9622/ModelSnap/internal/pkg/env"
)

const defaultRenderAPIBaseURL = "https://api.fashn.ai/v1"

// RenderResult is the normalized success outcome of one gateway call.
type RenderResult struct {
	OutputURL         string
	ProviderRequestID string
}

// GatewayClient invokes the external rendering API once, under a fixed
// timeout. No retries happen here; retry policy lives in the orchestrator so
// ledger and state transitions stay consistent with attempt counting.
type GatewayClient interface {
	Invoke(ctx context.Context, subjectImageURL, garmentImageURL string) (*RenderResult, error)
}

// UpstreamError is a non-2xx response from the rendering API, kept structured
// so the classifier can key on the status code.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("render api returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPGateway is the production GatewayClient. The client is constructed once
// at startup and injected; there is no hidden package-level instance.
type HTTPGateway struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

// NewGatewayFromEnv builds the gateway from RENDER_API_* environment config.
func NewGatewayFromEnv() *HTTPGateway {
	timeout := 60 * time.Second
	if raw := env.GetEnv("RENDER_API_TIMEOUT_SECONDS", ""); raw != "" {
		var secs int
		if _, err := fmt.Sscanf(raw, "%d", &secs); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	return &HTTPGateway{
		BaseURL: strings.TrimRight(env.GetEnv("RENDER_API_BASE_URL", defaultRenderAPIBaseURL), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("RENDER_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type renderRequestBody struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
}

type renderResponseBody struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Output    []string `json:"output"`
	OutputURL string   `json:"output_url"`
	Error     string   `json:"error"`
}

// Invoke performs a single render call and normalizes the response. Transport
// errors are returned as-is; non-2xx responses come back as *UpstreamError.
func (g *HTTPGateway) Invoke(ctx context.Context, subjectImageURL, garmentImageURL string) (*RenderResult, error) {
	payload, err := json.Marshal(renderRequestBody{
		ModelImage:   subjectImageURL,
		GarmentImage: garmentImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/run", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read render response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed renderResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode render response: %w", err)
	}

	outputURL := parsed.OutputURL
	if outputURL == "" && len(parsed.Output) > 0 {
		outputURL = parsed.Output[0]
	}
	if outputURL == "" {
		if parsed.Error != "" {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: parsed.Error}
		}
		return nil, fmt.Errorf("render response contained no output url")
	}

	return &RenderResult{
		OutputURL:         outputURL,
		ProviderRequestID: parsed.ID,
	}, nil
}
