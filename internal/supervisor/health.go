package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// healthPollInterval is the gap between health probes.
const healthPollInterval = 200 * time.Millisecond

// EngineEndpoint describes a hub-managed engine as reported by the hub's
// health payload.
type EngineEndpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	PID  int    `json:"pid"`
}

// DaemonEndpoint describes the hub's own control listener.
type DaemonEndpoint struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	PID     int    `json:"pid"`
	BaseURL string `json:"baseUrl"`
}

// Health is the hub's /health payload.
type Health struct {
	OK             bool            `json:"ok"`
	Daemon         *DaemonEndpoint `json:"daemon,omitempty"`
	Engine         *EngineEndpoint `json:"opencode,omitempty"`
	ActiveID       string          `json:"activeId,omitempty"`
	WorkspaceCount int             `json:"workspaceCount,omitempty"`
}

// FetchHealth GETs <baseURL>/health and decodes the payload.
func FetchHealth(ctx context.Context, baseURL string) (*Health, error) {
	url := strings.TrimRight(baseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("health endpoint returned %s", resp.Status)
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("parse health payload: %w", err)
	}
	return &health, nil
}

// WaitHealthy polls the health endpoint until it reports ok or the
// timeout elapses. On timeout the most recent underlying error is
// returned so the caller can report why startup never became healthy.
func WaitHealthy(ctx context.Context, baseURL string, timeout time.Duration) (*Health, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error

	for {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		health, err := FetchHealth(probeCtx, baseURL)
		cancel()
		switch {
		case err != nil:
			lastErr = err
		case !health.OK:
			lastErr = fmt.Errorf("service reported unhealthy")
		default:
			return health, nil
		}

		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(healthPollInterval):
		}
	}

	return nil, fmt.Errorf("timed out waiting for %s: %w", baseURL, lastErr)
}
