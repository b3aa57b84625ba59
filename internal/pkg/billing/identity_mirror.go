package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/supuni9622/ModelSnap/internal/pkg/env"
)

// HTTPIdentityMirror mirrors plan state into an external identity store over
// HTTP. The push happens after the local transaction commits; a failed push is
// healed by the next billing event for the same user, so callers treat errors
// as log-only.
type HTTPIdentityMirror struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

// NewIdentityMirrorFromEnv builds the mirror client, or returns nil when no
// endpoint is configured so callers can skip the push entirely.
func NewIdentityMirrorFromEnv() *HTTPIdentityMirror {
	base := strings.TrimRight(strings.TrimSpace(env.GetEnv("IDENTITY_MIRROR_URL", "")), "/")
	if base == "" {
		return nil
	}
	return &HTTPIdentityMirror{
		BaseURL: base,
		APIKey:  strings.TrimSpace(env.GetEnv("IDENTITY_MIRROR_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (m *HTTPIdentityMirror) PushPlan(userID uint, snapshot PlanSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal plan snapshot: %w", err)
	}

	url := fmt.Sprintf("%s/users/%d/plan", m.BaseURL, userID)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mirror request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("mirror push: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mirror push returned status %d", resp.StatusCode)
	}
	return nil
}
