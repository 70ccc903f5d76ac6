package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openwork/workshell/internal/config"
)

// controlBaseURL turns the configured bind address into a dialable URL.
func controlBaseURL(cfg *config.Config) string {
	addr := strings.TrimSpace(cfg.Control.BindAddr)
	if addr == "" {
		addr = "127.0.0.1:4096"
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		addr = net.JoinHostPort(host, port)
	}
	return "http://" + addr
}

// postControl sends an authenticated JSON POST to the running daemon.
func postControl(ctx context.Context, cfg *config.Config, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, controlBaseURL(cfg)+path, &buf)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Control.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Control.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// The cancel travels with the body; callers must close it.
	resp.Body = cancelReadCloser{resp.Body, cancel}
	return resp, nil
}

type cancelReadCloser struct {
	inner interface {
		Read([]byte) (int, error)
		Close() error
	}
	cancel context.CancelFunc
}

func (c cancelReadCloser) Read(p []byte) (int, error) { return c.inner.Read(p) }

func (c cancelReadCloser) Close() error {
	c.cancel()
	return c.inner.Close()
}

// decodeControlError extracts the {"error": "..."} payload the API uses
// for failures, falling back to the raw status.
func decodeControlError(resp *http.Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return resp.Status
}
