package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openwork/workshell/internal/supervisor"
)

func TestRunStartCommand_SendsAuthAndPrintsStatus(t *testing.T) {
	var gotAuth, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["projectDir"] != "/tmp/proj" {
			t.Errorf("projectDir = %v", body["projectDir"])
		}
		status := supervisor.Status{Mode: supervisor.ModeDirect}
		status.Engine.Running = true
		status.Engine.Connection = &supervisor.Connection{Host: "127.0.0.1", Port: 4100, BaseURL: "http://127.0.0.1:4100"}
		json.NewEncoder(w).Encode(status)
	}))
	defer ts.Close()

	setTestConfig(t, ts.Listener.Addr().String(), "secret-token")

	code := runStartCommand(context.Background(), []string{"-dir", "/tmp/proj"})
	if code != 0 {
		t.Fatalf("got exit code %d, want 0", code)
	}
	if gotPath != "/api/start" {
		t.Errorf("path = %q, want /api/start", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestRunStartCommand_SurfacesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "opencode exited immediately"})
	}))
	defer ts.Close()

	setTestConfig(t, ts.Listener.Addr().String(), "tok")

	code := runStartCommand(context.Background(), nil)
	if code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRunStartCommand_DaemonDown(t *testing.T) {
	setTestConfig(t, "127.0.0.1:1", "tok")

	code := runStartCommand(context.Background(), nil)
	if code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRunStartCommand_BadFlag(t *testing.T) {
	code := runStartCommand(context.Background(), []string{"-nonsense"})
	if code != 2 {
		t.Fatalf("got exit code %d, want 2", code)
	}
}

func TestRunStopCommand(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]bool{"stopped": true})
	}))
	defer ts.Close()

	setTestConfig(t, ts.Listener.Addr().String(), "tok")

	code := runStopCommand(context.Background(), nil)
	if code != 0 {
		t.Fatalf("got exit code %d, want 0", code)
	}
	if gotPath != "/api/stop" {
		t.Errorf("path = %q, want /api/stop", gotPath)
	}
}

func TestRunStopCommand_ExtraArgs(t *testing.T) {
	code := runStopCommand(context.Background(), []string{"now"})
	if code != 2 {
		t.Fatalf("got exit code %d, want 2", code)
	}
}
