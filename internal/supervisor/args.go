package supervisor

import (
	"strconv"
	"strings"
)

// fixedCORSOrigins are the UI origins every spawned worker must accept.
var fixedCORSOrigins = []string{
	"http://localhost:5173",
	"tauri://localhost",
	"http://tauri.localhost",
}

func corsArgs(dev bool) []string {
	var args []string
	for _, origin := range fixedCORSOrigins {
		args = append(args, "--cors", origin)
	}
	if dev {
		args = append(args, "--cors", "*")
	}
	return args
}

// EngineLaunch builds the spec for `opencode serve`. Credentials are
// optional; XDG data/config homes are inferred when unset so a GUI
// launch sees the same auth state as a terminal launch.
func EngineLaunch(program, bindHost string, port int, projectDir string, creds *Credentials, dev bool) LaunchSpec {
	args := []string{
		"serve",
		"--hostname", bindHost,
		"--port", strconv.Itoa(port),
	}
	args = append(args, corsArgs(dev)...)
	if creds != nil {
		args = append(args, "--username", creds.Username, "--password", creds.Password)
	}

	env := inferredEngineEnv()
	env["OPENCODE_CLIENT"] = "openwork"
	env["OPENWORK"] = "1"

	return LaunchSpec{
		Kind:    KindEngine,
		Program: program,
		Args:    args,
		Dir:     projectDir,
		Env:     env,
	}
}

// HubLaunchOptions parameterize the openwrk daemon spawn.
type HubLaunchOptions struct {
	DataDir     string
	DaemonHost  string
	DaemonPort  int
	EngineBin   string
	EngineHost  string
	EngineDir   string
	EnginePort  int // 0 = let the hub pick
	Credentials *Credentials
	CORS        string
}

// HubLaunch builds the spec for `openwrk daemon run`.
func HubLaunch(program string, opts HubLaunchOptions) LaunchSpec {
	args := []string{
		"daemon", "run",
		"--data-dir", opts.DataDir,
		"--daemon-host", opts.DaemonHost,
		"--daemon-port", strconv.Itoa(opts.DaemonPort),
		"--opencode-bin", opts.EngineBin,
		"--opencode-host", opts.EngineHost,
		"--opencode-workdir", opts.EngineDir,
	}
	if opts.EnginePort > 0 {
		args = append(args, "--opencode-port", strconv.Itoa(opts.EnginePort))
	}
	if opts.Credentials != nil {
		if u := strings.TrimSpace(opts.Credentials.Username); u != "" {
			args = append(args, "--opencode-username", u)
		}
		if p := strings.TrimSpace(opts.Credentials.Password); p != "" {
			args = append(args, "--opencode-password", p)
		}
	}
	if cors := strings.TrimSpace(opts.CORS); cors != "" {
		args = append(args, "--cors", cors)
	}

	return LaunchSpec{
		Kind:    KindHub,
		Program: program,
		Args:    args,
		Dir:     opts.EngineDir,
		Env:     inferredEngineEnv(),
	}
}

// ServerLaunchOptions parameterize the openwork-server spawn.
type ServerLaunchOptions struct {
	Host          string
	Port          int
	Workspaces    []string
	Token         string
	HostToken     string
	EngineBaseURL string
	EngineDir     string
	BotHealthPort int
	Dev           bool
}

// ServerLaunch builds the spec for the remote-access server. The first
// workspace doubles as the working directory.
func ServerLaunch(program string, opts ServerLaunchOptions) LaunchSpec {
	args := []string{
		"--host", opts.Host,
		"--port", strconv.Itoa(opts.Port),
		"--token", opts.Token,
		"--host-token", opts.HostToken,
	}
	for _, workspace := range opts.Workspaces {
		if strings.TrimSpace(workspace) == "" {
			continue
		}
		args = append(args, "--workspace", workspace)
	}
	args = append(args, corsArgs(opts.Dev)...)
	if url := strings.TrimSpace(opts.EngineBaseURL); url != "" {
		args = append(args, "--opencode-base-url", url)
	}
	if dir := strings.TrimSpace(opts.EngineDir); dir != "" {
		args = append(args, "--opencode-directory", dir)
	}
	if opts.BotHealthPort > 0 {
		args = append(args, "--owpenbot-health-port", strconv.Itoa(opts.BotHealthPort))
	}

	dir := ""
	if len(opts.Workspaces) > 0 {
		dir = opts.Workspaces[0]
	}
	return LaunchSpec{
		Kind:    KindServer,
		Program: program,
		Args:    args,
		Dir:     dir,
	}
}

// BotLaunchOptions parameterize the owpenbot spawn.
type BotLaunchOptions struct {
	WorkspacePath string
	EngineURL     string
	Credentials   *Credentials
	HealthPort    int
}

// BotLaunch builds the spec for `owpenbot start`.
func BotLaunch(program string, opts BotLaunchOptions) LaunchSpec {
	args := []string{"start", opts.WorkspacePath}
	if url := strings.TrimSpace(opts.EngineURL); url != "" {
		args = append(args, "--opencode-url", url)
	}
	if opts.Credentials != nil {
		if u := strings.TrimSpace(opts.Credentials.Username); u != "" {
			args = append(args, "--opencode-username", u)
		}
		if p := strings.TrimSpace(opts.Credentials.Password); p != "" {
			args = append(args, "--opencode-password", p)
		}
	}
	if opts.HealthPort > 0 {
		args = append(args, "--health-port", strconv.Itoa(opts.HealthPort))
	}

	return LaunchSpec{
		Kind:    KindBot,
		Program: program,
		Args:    args,
		Dir:     opts.WorkspacePath,
	}
}
