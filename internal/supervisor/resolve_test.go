package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestResolveOverrideWins(t *testing.T) {
	dir := t.TempDir()
	override := writeExecutable(t, dir, "opencode")

	res, err := ResolveExecutable("opencode", ResolveOptions{OverridePath: override})
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if res.Path != override || res.Source != SourceOverride {
		t.Fatalf("resolution = %+v, want override %s", res, override)
	}
}

func TestResolveBadOverrideFallsThrough(t *testing.T) {
	dir := t.TempDir()
	known := writeExecutable(t, dir, "opencode-xyzzy")

	res, err := ResolveExecutable("opencode-xyzzy", ResolveOptions{
		OverridePath:   filepath.Join(dir, "does-not-exist"),
		KnownLocations: []string{dir},
	})
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if res.Path != known || res.Source != SourceKnownLocation {
		t.Fatalf("resolution = %+v, want known location %s", res, known)
	}
	joined := strings.Join(res.Notes, "\n")
	if !strings.Contains(joined, "override path not usable") {
		t.Fatalf("notes missing override rejection: %q", joined)
	}
}

func TestResolveSidecarBeforePath(t *testing.T) {
	dir := t.TempDir()
	sidecar := writeExecutable(t, dir, "sh")

	res, err := ResolveExecutable("sh", ResolveOptions{
		PreferSidecar: true,
		SidecarDirs:   []string{dir},
	})
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if res.Path != sidecar || res.Source != SourceSidecar {
		t.Fatalf("resolution = %+v, want sidecar %s", res, sidecar)
	}
}

func TestResolvePathSearch(t *testing.T) {
	res, err := ResolveExecutable("sh", ResolveOptions{})
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if res.Source != SourcePathSearch || !res.InPath {
		t.Fatalf("resolution = %+v, want path search hit", res)
	}
}

func TestResolveNotFoundCarriesNotes(t *testing.T) {
	dir := t.TempDir()
	_, err := ResolveExecutable("opencode-xyzzy", ResolveOptions{
		KnownLocations: []string{dir},
	})
	if err == nil {
		t.Fatal("expected resolution failure")
	}
	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("error type = %T, want *ResolveError", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "not found in PATH") {
		t.Fatalf("error missing PATH note: %q", msg)
	}
	if !strings.Contains(msg, dir) {
		t.Fatalf("error missing known-location note: %q", msg)
	}
}

func TestNonExecutableFileRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opencode")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if isExecutableFile(path) {
		t.Fatal("mode 0644 file reported executable")
	}
	if isExecutableFile(dir) {
		t.Fatal("directory reported executable")
	}
}
