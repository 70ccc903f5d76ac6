package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openwork/workshell/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{HomeDir: t.TempDir(), BindHost: "127.0.0.1"}
	// Pin the engine override to something real so the required check
	// does not depend on an opencode install.
	bin := filepath.Join(cfg.HomeDir, "opencode")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Engine.Path = bin
	return cfg
}

func find(t *testing.T, d Diagnosis, name string) CheckResult {
	t.Helper()
	for _, r := range d.Results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("check %q missing from %+v", name, d.Results)
	return CheckResult{}
}

func TestRunWithWorkingEnvironment(t *testing.T) {
	d := Run(context.Background(), testConfig(t), "test")

	if got := find(t, d, "Config"); got.Status != "PASS" {
		t.Fatalf("Config = %+v", got)
	}
	if got := find(t, d, "Home Directory"); got.Status != "PASS" {
		t.Fatalf("Home Directory = %+v", got)
	}
	if got := find(t, d, "OpenCode CLI"); got.Status != "PASS" {
		t.Fatalf("OpenCode CLI = %+v", got)
	}
	if got := find(t, d, "Journal"); got.Status != "PASS" {
		t.Fatalf("Journal = %+v", got)
	}
	if !d.Healthy() {
		t.Fatalf("diagnosis unhealthy: %+v", d.Results)
	}
	if d.System.OS == "" || d.System.Go == "" {
		t.Fatalf("system info incomplete: %+v", d.System)
	}
}

func TestMissingEngineFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Path = filepath.Join(cfg.HomeDir, "does-not-exist")

	d := Run(context.Background(), cfg, "test")
	got := find(t, d, "OpenCode CLI")
	// PATH may still carry an opencode install on a developer machine.
	if got.Status == "PASS" {
		t.Skip("opencode present in PATH")
	}
	if got.Status != "FAIL" {
		t.Fatalf("OpenCode CLI = %+v, want FAIL", got)
	}
	if d.Healthy() {
		t.Fatal("diagnosis healthy despite missing engine")
	}
}

func TestNilConfigSkipsDependentChecks(t *testing.T) {
	d := Run(context.Background(), nil, "test")
	if got := find(t, d, "Config"); got.Status != "FAIL" {
		t.Fatalf("Config = %+v, want FAIL", got)
	}
	if got := find(t, d, "Journal"); got.Status != "SKIP" {
		t.Fatalf("Journal = %+v, want SKIP", got)
	}
}

func TestSecondaryBinariesWarnOnly(t *testing.T) {
	cfg := testConfig(t)
	d := Run(context.Background(), cfg, "test")
	for _, name := range []string{"Openwrk Daemon", "OpenWork Server", "Owpenbot"} {
		got := find(t, d, name)
		if got.Status == "FAIL" {
			t.Fatalf("%s = %+v, optional binary must not FAIL", name, got)
		}
	}
}

func TestEngineVersionProbe(t *testing.T) {
	cfg := testConfig(t)
	bin := filepath.Join(cfg.HomeDir, "opencode")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho 'opencode 1.2.3'\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	d := Run(context.Background(), cfg, "test")
	got := find(t, d, "OpenCode CLI")
	if got.Status != "PASS" {
		t.Fatalf("OpenCode CLI = %+v", got)
	}
	if got.Detail != "version opencode 1.2.3" {
		t.Fatalf("Detail = %q", got.Detail)
	}
}
