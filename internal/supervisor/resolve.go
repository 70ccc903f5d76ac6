package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Source tags where a worker executable came from.
type Source int

const (
	SourceOverride Source = iota
	SourceSidecar
	SourcePathSearch
	SourceKnownLocation
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceSidecar:
		return "sidecar"
	case SourcePathSearch:
		return "path"
	case SourceKnownLocation:
		return "known-location"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of executable resolution: the chosen path,
// where it came from, and the diagnostic notes accumulated along the way
// (which candidates were tried and why each was rejected).
type Resolution struct {
	Path   string
	Source Source
	InPath bool
	Notes  []string
}

// ResolveOptions control the strategy list. Strategies run in a fixed
// priority order: Override, Sidecar (when preferred), PathSearch,
// KnownLocation.
type ResolveOptions struct {
	// OverridePath short-circuits resolution when set.
	OverridePath string
	// PreferSidecar tries bundled binaries before the search path.
	PreferSidecar bool
	// SidecarDirs are probed for a bundled binary: the directory of the
	// running shell binary, then any resource dirs.
	SidecarDirs []string
	// KnownLocations are conventional install dirs probed last.
	KnownLocations []string
}

// DefaultKnownLocations returns the conventional install directories for
// the opencode toolchain.
func DefaultKnownLocations() []string {
	home := userHomeDir()
	if home == "" {
		return nil
	}
	return []string{
		filepath.Join(home, ".opencode", "bin"),
		filepath.Join(home, ".local", "bin"),
		"/usr/local/bin",
		"/opt/homebrew/bin",
	}
}

// DefaultSidecarDirs returns the directories a bundled sidecar can live
// in, anchored at the running shell binary.
func DefaultSidecarDirs() []string {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	binDir := filepath.Dir(exe)
	return []string{
		binDir,
		filepath.Join(binDir, "sidecars"),
	}
}

// ResolveExecutable finds the binary for name, evaluating each strategy
// in order and accumulating a note per rejected candidate. The notes
// travel with the error so "not found" always says where it looked.
func ResolveExecutable(name string, opts ResolveOptions) (Resolution, error) {
	var notes []string

	if override := strings.TrimSpace(opts.OverridePath); override != "" {
		if isExecutableFile(override) {
			return Resolution{Path: override, Source: SourceOverride, Notes: notes}, nil
		}
		notes = append(notes, fmt.Sprintf("override path not usable: %s", override))
	}

	if opts.PreferSidecar {
		for _, dir := range opts.SidecarDirs {
			candidate := filepath.Join(dir, name)
			if isExecutableFile(candidate) {
				notes = append(notes, fmt.Sprintf("using bundled sidecar: %s", candidate))
				return Resolution{Path: candidate, Source: SourceSidecar, Notes: notes}, nil
			}
			notes = append(notes, fmt.Sprintf("sidecar missing: %s", candidate))
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return Resolution{Path: path, Source: SourcePathSearch, InPath: true, Notes: notes}, nil
	}
	notes = append(notes, fmt.Sprintf("%s not found in PATH", name))

	for _, dir := range opts.KnownLocations {
		candidate := filepath.Join(dir, name)
		if isExecutableFile(candidate) {
			return Resolution{Path: candidate, Source: SourceKnownLocation, Notes: notes}, nil
		}
		notes = append(notes, fmt.Sprintf("not at %s", candidate))
	}

	return Resolution{Notes: notes}, &ResolveError{Name: name, Notes: notes}
}

// ResolveError reports a failed resolution together with everything that
// was tried; the next action is almost always "install it here" or "set
// this override", so the notes matter more than the headline.
type ResolveError struct {
	Name  string
	Notes []string
}

func (e *ResolveError) Error() string {
	if len(e.Notes) == 0 {
		return fmt.Sprintf("%s not found", e.Name)
	}
	return fmt.Sprintf("%s not found:\n%s", e.Name, strings.Join(e.Notes, "\n"))
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
