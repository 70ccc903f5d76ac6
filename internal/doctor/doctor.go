// Package doctor runs environment diagnostics: can the shell find its
// worker binaries, write its home directory, and open its journal.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/openwork/workshell/internal/config"
	"github.com/openwork/workshell/internal/persistence"
	"github.com/openwork/workshell/internal/supervisor"
	"github.com/openwork/workshell/internal/workspace"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Healthy reports whether no check failed outright.
func (d Diagnosis) Healthy() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return false
		}
	}
	return true
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkHomeDir,
		checkEngineBinary,
		checkHubBinary,
		checkServerBinary,
		checkBotBinary,
		checkServerPort,
		checkWorkspaces,
		checkJournal,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}
	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", cfg.HomeDir)}
}

func checkHomeDir(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Home Directory", Status: "SKIP", Message: "Config missing"}
	}
	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Home Directory", Status: "FAIL", Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	os.Remove(testFile)
	return CheckResult{Name: "Home Directory", Status: "PASS", Message: "Home directory writable"}
}

func checkWorkerBinary(name, label string, bin config.WorkerBinary, required bool) CheckResult {
	res, err := supervisor.ResolveExecutable(name, supervisor.ResolveOptions{
		OverridePath:   bin.Path,
		PreferSidecar:  bin.PreferSidecar,
		SidecarDirs:    supervisor.DefaultSidecarDirs(),
		KnownLocations: supervisor.DefaultKnownLocations(),
	})
	if err != nil {
		status := "WARN"
		if required {
			status = "FAIL"
		}
		return CheckResult{
			Name:    label,
			Status:  status,
			Message: fmt.Sprintf("%s not found", name),
			Detail:  err.Error(),
		}
	}
	return CheckResult{
		Name:    label,
		Status:  "PASS",
		Message: fmt.Sprintf("%s (%s)", res.Path, res.Source),
	}
}

func checkEngineBinary(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "OpenCode CLI", Status: "SKIP", Message: "Config missing"}
	}
	res := checkWorkerBinary("opencode", "OpenCode CLI", cfg.Engine, true)
	if res.Status != "PASS" {
		return res
	}

	// The binary resolved; confirm it actually executes. The message is
	// "<path> (<source>)".
	path := strings.TrimSpace(strings.SplitN(res.Message, " (", 2)[0])
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, path, "--version").CombinedOutput()
	if err != nil {
		res.Status = "WARN"
		res.Detail = fmt.Sprintf("--version probe failed: %v", err)
		return res
	}
	if v := firstLine(string(out)); v != "" {
		res.Detail = "version " + v
	}
	return res
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func checkHubBinary(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Openwrk Daemon", Status: "SKIP", Message: "Config missing"}
	}
	return checkWorkerBinary("openwrk", "Openwrk Daemon", cfg.Hub, false)
}

func checkServerBinary(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "OpenWork Server", Status: "SKIP", Message: "Config missing"}
	}
	return checkWorkerBinary("openwork-server", "OpenWork Server", cfg.Server, false)
}

func checkBotBinary(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Owpenbot", Status: "SKIP", Message: "Config missing"}
	}
	return checkWorkerBinary("owpenbot", "Owpenbot", cfg.Bot, false)
}

func checkServerPort(_ context.Context, _ *config.Config) CheckResult {
	l, err := net.Listen("tcp", "0.0.0.0:8787")
	if err != nil {
		return CheckResult{
			Name:    "Server Port",
			Status:  "WARN",
			Message: "Port 8787 is busy; remote access will use an ephemeral port",
			Detail:  err.Error(),
		}
	}
	l.Close()
	return CheckResult{Name: "Server Port", Status: "PASS", Message: "Port 8787 available"}
}

func checkWorkspaces(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Workspaces", Status: "SKIP", Message: "Config missing"}
	}
	state, err := workspace.NewStore(cfg.HomeDir).Load()
	if err != nil {
		return CheckResult{Name: "Workspaces", Status: "FAIL", Message: fmt.Sprintf("Registry unreadable: %v", err)}
	}
	missing := 0
	for _, ws := range state.Workspaces {
		if ws.Type != workspace.TypeLocal {
			continue
		}
		if _, err := os.Stat(ws.Path); err != nil {
			missing++
		}
	}
	if missing > 0 {
		return CheckResult{
			Name:    "Workspaces",
			Status:  "WARN",
			Message: fmt.Sprintf("%d of %d workspace directories missing on disk", missing, len(state.Workspaces)),
		}
	}
	return CheckResult{Name: "Workspaces", Status: "PASS", Message: fmt.Sprintf("%d workspaces registered", len(state.Workspaces))}
}

func checkJournal(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Journal", Status: "SKIP", Message: "Config missing"}
	}
	store, err := persistence.Open(persistence.DefaultDBPath(cfg.HomeDir))
	if err != nil {
		return CheckResult{Name: "Journal", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer store.Close()
	if _, err := store.Recent(ctx, 1); err != nil {
		return CheckResult{Name: "Journal", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	return CheckResult{Name: "Journal", Status: "PASS", Message: "Connection and schema valid"}
}
