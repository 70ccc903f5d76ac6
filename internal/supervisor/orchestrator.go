package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openwork/workshell/internal/config"
	"github.com/openwork/workshell/internal/workspace"
)

// Mode selects the primary worker for a start request.
type Mode string

const (
	// ModeDirect runs a single engine process.
	ModeDirect Mode = "direct"
	// ModeHub runs the openwrk daemon, which manages engines itself.
	ModeHub Mode = "hub"
)

const (
	warmupWindow     = 2 * time.Second
	warmupPoll       = 150 * time.Millisecond
	hubHealthTimeout = 10 * time.Second

	defaultServerPort    = 8787
	defaultBotHealthPort = 8901

	engineUsername = "opencode"
)

// Journal records supervisor lifecycle events for later inspection.
// Implemented by the persistence store; nil disables journaling.
type Journal interface {
	Record(ctx context.Context, worker, event, detail string) error
}

// StartOptions parameterize one "start everything" request.
type StartOptions struct {
	ProjectDir     string
	Mode           Mode
	WorkspacePaths []string
	PreferSidecar  bool
}

// Status aggregates every manager's snapshot.
type Status struct {
	Mode   Mode `json:"mode,omitempty"`
	Engine Info `json:"engine"`
	Hub    Info `json:"hub"`
	Server Info `json:"server"`
	Bot    Info `json:"bot"`
}

// Orchestrator sequences dependent worker launches and owns the four
// service managers. Managers are injected nowhere else; everything that
// needs one receives it from here.
type Orchestrator struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal Journal
	tracer  trace.Tracer

	engine *Manager
	hub    *Manager
	server *Manager
	bot    *Manager

	mu   sync.Mutex
	mode Mode
	// botHealthPort is the health listener handed to the last bot
	// spawn; status queries probe it when no supervised child exists.
	botHealthPort int
}

// New creates an orchestrator with empty managers.
func New(cfg *config.Config, logger *slog.Logger, journal Journal) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		journal: journal,
		tracer:  otel.Tracer("workshell/supervisor"),
		engine:  NewManager(KindEngine),
		hub:     NewManager(KindHub),
		server:  NewManager(KindServer),
		bot:     NewManager(KindBot),
	}
}

// Manager exposes the manager for one worker kind.
func (o *Orchestrator) Manager(kind Kind) *Manager {
	switch kind {
	case KindEngine:
		return o.engine
	case KindHub:
		return o.hub
	case KindServer:
		return o.server
	case KindBot:
		return o.bot
	default:
		return nil
	}
}

// Start brings up the primary worker for the requested mode, gates on
// its readiness, then spawns the dependent server and bot best-effort.
// A failed secondary is recorded into the engine's lastError and never
// unwinds the primary. A prior running set is always stopped first.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) (Status, error) {
	ctx, span := o.tracer.Start(ctx, "supervisor.start",
		trace.WithAttributes(attribute.String("mode", string(opts.Mode))))
	defer span.End()

	projectDir := strings.TrimSpace(opts.ProjectDir)
	if projectDir == "" {
		return Status{}, fmt.Errorf("projectDir is required")
	}
	// The engine is spawned with its working directory set here. A
	// workspace picked during onboarding may not exist yet; create it
	// instead of failing the whole start.
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return Status{}, fmt.Errorf("create project directory: %w", err)
	}
	if err := workspace.EnsureProjectConfig(projectDir); err != nil {
		return Status{}, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeDirect
	}

	// Clean restart across all kinds, whatever mode ran before, so a
	// second start never accumulates orphaned processes.
	o.StopAll(ctx)
	o.setMode(mode)

	engineRes, err := o.resolveWorker("opencode", o.cfg.Engine, opts.PreferSidecar)
	if err != nil {
		o.record(ctx, string(KindEngine), "resolve-failed", err.Error())
		return Status{}, fmt.Errorf(
			"OpenCode CLI not found.\n\nInstall with:\n- brew install anomalyco/tap/opencode\n- curl -fsSL https://opencode.ai/install | bash\n\n%w", err)
	}

	var creds *Credentials
	if o.cfg.Auth {
		creds = &Credentials{Username: engineUsername, Password: uuid.NewString()}
	}

	workspaces := normalizeWorkspaces(projectDir, opts.WorkspacePaths)

	var enginePort int
	switch mode {
	case ModeHub:
		enginePort, err = o.startHub(ctx, engineRes.Path, projectDir, creds)
	default:
		enginePort, err = o.startEngine(ctx, engineRes.Path, projectDir, creds)
	}
	if err != nil {
		return Status{}, err
	}

	connectURL := o.connectURL(enginePort)
	o.startSecondaries(ctx, projectDir, workspaces, connectURL, creds)

	status := o.Status()
	o.logger.Info("start complete",
		"mode", string(mode),
		"engine_port", enginePort,
		"connect_url", connectURL,
	)
	return status, nil
}

// startEngine spawns `opencode serve` and holds it behind the warm-up
// gate: a process that dies inside the window was never reachable, so
// the start fails with the captured output instead of reporting success.
func (o *Orchestrator) startEngine(ctx context.Context, program, projectDir string, creds *Credentials) (int, error) {
	ctx, span := o.tracer.Start(ctx, "supervisor.spawn_engine")
	defer span.End()

	port, err := FreePort()
	if err != nil {
		return 0, err
	}

	spec := EngineLaunch(program, o.cfg.BindHost, port, projectDir, creds, o.cfg.Dev)
	proc, err := Spawn(spec)
	if err != nil {
		o.record(ctx, string(KindEngine), "spawn-failed", err.Error())
		return 0, fmt.Errorf("failed to start opencode: %w", err)
	}

	conn := &Connection{Host: "127.0.0.1", Port: port, BaseURL: baseURL("127.0.0.1", port)}
	o.engine.Attach(proc, conn, creds, projectDir)
	o.record(ctx, string(KindEngine), "spawned", fmt.Sprintf("pid=%d port=%d", proc.PID(), port))

	if err := o.warmupGate(o.engine); err != nil {
		o.record(ctx, string(KindEngine), "crashed", err.Error())
		o.engine.Stop()
		return 0, err
	}
	return port, nil
}

// startHub spawns the openwrk daemon, waits for its health endpoint and
// wires the hub-managed engine's connection into the engine manager.
func (o *Orchestrator) startHub(ctx context.Context, engineBin, projectDir string, creds *Credentials) (int, error) {
	ctx, span := o.tracer.Start(ctx, "supervisor.spawn_hub")
	defer span.End()

	hubRes, err := o.resolveWorker("openwrk", o.cfg.Hub, false)
	if err != nil {
		o.record(ctx, string(KindHub), "resolve-failed", err.Error())
		return 0, err
	}

	daemonPort, err := FreePort()
	if err != nil {
		return 0, err
	}
	daemonHost := "127.0.0.1"

	spec := HubLaunch(hubRes.Path, HubLaunchOptions{
		DataDir:     hubDataDir(),
		DaemonHost:  daemonHost,
		DaemonPort:  daemonPort,
		EngineBin:   engineBin,
		EngineHost:  o.cfg.BindHost,
		EngineDir:   projectDir,
		Credentials: creds,
		CORS:        "*",
	})
	proc, err := Spawn(spec)
	if err != nil {
		o.record(ctx, string(KindHub), "spawn-failed", err.Error())
		return 0, fmt.Errorf("failed to start openwrk: %w", err)
	}

	hubConn := &Connection{Host: daemonHost, Port: daemonPort, BaseURL: baseURL(daemonHost, daemonPort)}
	o.hub.Attach(proc, hubConn, nil, projectDir)
	o.record(ctx, string(KindHub), "spawned", fmt.Sprintf("pid=%d port=%d", proc.PID(), daemonPort))

	health, err := WaitHealthy(ctx, hubConn.BaseURL, hubHealthTimeout)
	if err != nil {
		_, _, _, stderr := o.hub.exitState()
		o.record(ctx, string(KindHub), "unhealthy", err.Error())
		o.hub.Stop()
		if stderr != "" {
			return 0, fmt.Errorf("failed to start openwrk: %w\n\nstderr:\n%s", err, stderr)
		}
		return 0, fmt.Errorf("failed to start openwrk: %w", err)
	}
	if health.Engine == nil {
		o.hub.Stop()
		return 0, fmt.Errorf("openwrk did not report an engine endpoint")
	}

	engineConn := &Connection{
		Host:    "127.0.0.1",
		Port:    health.Engine.Port,
		BaseURL: baseURL("127.0.0.1", health.Engine.Port),
	}
	o.engine.AttachRemote(engineConn, creds, projectDir)
	o.record(ctx, string(KindEngine), "hub-managed", fmt.Sprintf("pid=%d port=%d", health.Engine.PID, health.Engine.Port))
	return health.Engine.Port, nil
}

// warmupGate polls the manager's exit flag for the warm-up window. This
// runs blocking sleeps on the caller's goroutine on purpose; it must not
// depend on anything else making progress.
func (o *Orchestrator) warmupGate(m *Manager) error {
	deadline := time.Now().Add(warmupWindow)
	for {
		exited, code, stdout, stderr := m.exitState()
		if exited {
			return immediateExitError(code, stdout, stderr)
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(warmupPoll)
	}
}

// immediateExitError formats a warm-up crash with the captured output
// attached verbatim, so the cause is visible without log spelunking.
func immediateExitError(code int, stdout, stderr string) error {
	var parts []string
	if s := strings.TrimSpace(stdout); s != "" {
		parts = append(parts, "stdout:\n"+truncateFront(s, OutputCap))
	}
	if s := strings.TrimSpace(stderr); s != "" {
		parts = append(parts, "stderr:\n"+truncateFront(s, OutputCap))
	}
	suffix := ""
	if len(parts) > 0 {
		suffix = "\n\n" + strings.Join(parts, "\n\n")
	}
	return fmt.Errorf("opencode exited immediately with status %d.%s", code, suffix)
}

// startSecondaries launches the server and bot against the now-known
// engine URL. Each failure is caught, journaled, and stored into the
// engine's lastError; the primary stays up regardless.
func (o *Orchestrator) startSecondaries(ctx context.Context, projectDir string, workspaces []string, connectURL string, creds *Credentials) {
	ctx, span := o.tracer.Start(ctx, "supervisor.spawn_secondaries")
	defer span.End()

	botHealthPort, err := PreferredPort(defaultBotHealthPort)
	if err != nil {
		o.engine.SetLastError("Owpenbot health port: " + err.Error())
		botHealthPort = 0
	}
	o.setBotHealthPort(botHealthPort)

	if err := o.startServer(ctx, workspaces, connectURL, projectDir, botHealthPort); err != nil {
		o.logger.Warn("openwork-server failed to start", "error", err)
		o.record(ctx, string(KindServer), "start-failed", err.Error())
		o.engine.SetLastError("OpenWork server: " + err.Error())
	}

	if err := o.startBot(ctx, projectDir, connectURL, creds, botHealthPort); err != nil {
		o.logger.Warn("owpenbot failed to start", "error", err)
		o.record(ctx, string(KindBot), "start-failed", err.Error())
		o.engine.SetLastError("Owpenbot: " + err.Error())
	}
}

func (o *Orchestrator) startServer(ctx context.Context, workspaces []string, engineURL, engineDir string, botHealthPort int) error {
	res, err := o.resolveWorker("openwork-server", o.cfg.Server, false)
	if err != nil {
		return err
	}

	port, err := PreferredPort(defaultServerPort)
	if err != nil {
		return err
	}
	token := uuid.NewString()
	hostToken := uuid.NewString()

	spec := ServerLaunch(res.Path, ServerLaunchOptions{
		Host:          "0.0.0.0",
		Port:          port,
		Workspaces:    workspaces,
		Token:         token,
		HostToken:     hostToken,
		EngineBaseURL: engineURL,
		EngineDir:     engineDir,
		BotHealthPort: botHealthPort,
		Dev:           o.cfg.Dev,
	})
	proc, err := Spawn(spec)
	if err != nil {
		return err
	}

	host := o.serverHost()
	conn := &Connection{Host: host, Port: port, BaseURL: baseURL(host, port)}
	o.server.Attach(proc, conn, &Credentials{Username: "openwork", Password: token}, engineDir)
	o.record(ctx, string(KindServer), "spawned", fmt.Sprintf("pid=%d port=%d", proc.PID(), port))
	return nil
}

func (o *Orchestrator) startBot(ctx context.Context, projectDir, engineURL string, creds *Credentials, healthPort int) error {
	res, err := o.resolveWorker("owpenbot", o.cfg.Bot, false)
	if err != nil {
		return err
	}

	spec := BotLaunch(res.Path, BotLaunchOptions{
		WorkspacePath: projectDir,
		EngineURL:     engineURL,
		Credentials:   creds,
		HealthPort:    healthPort,
	})
	proc, err := Spawn(spec)
	if err != nil {
		return err
	}

	var conn *Connection
	if healthPort > 0 {
		conn = &Connection{Host: "127.0.0.1", Port: healthPort, BaseURL: baseURL("127.0.0.1", healthPort)}
	}
	o.bot.Attach(proc, conn, creds, projectDir)
	o.record(ctx, string(KindBot), "spawned", fmt.Sprintf("pid=%d", proc.PID()))
	return nil
}

// StopAll tears down every worker, secondaries first.
func (o *Orchestrator) StopAll(ctx context.Context) {
	for _, m := range []*Manager{o.bot, o.server, o.hub, o.engine} {
		if info := m.Snapshot(); info.Running {
			o.record(ctx, string(m.Kind()), "stopped", "")
		}
		m.Stop()
	}
	o.setMode("")
	o.setBotHealthPort(0)
}

// Status reports the aggregated snapshot of every manager. In hub mode
// the engine's liveness rides on the hub: when the hub is gone, the
// engine's remote attachment is cleared.
func (o *Orchestrator) Status() Status {
	hubInfo := o.hub.Snapshot()
	if o.Mode() == ModeHub && !hubInfo.Running {
		o.engine.DetachRemote()
	}
	botInfo := o.bot.Snapshot()
	if !botInfo.Running {
		// A bot started outside the shell still answers on the health
		// port; report it running rather than insisting on a child of
		// our own.
		if port := o.getBotHealthPort(); port > 0 && probeBotHealth(port) {
			botInfo.Running = true
		}
	}
	return Status{
		Mode:   o.Mode(),
		Engine: o.engine.Snapshot(),
		Hub:    hubInfo,
		Server: o.server.Snapshot(),
		Bot:    botInfo,
	}
}

// probeBotHealth checks the bot's health listener directly.
func probeBotHealth(port int) bool {
	client := &http.Client{Timeout: 300 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Mode returns the runtime mode of the last start, or empty when stopped.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

func (o *Orchestrator) setMode(m Mode) {
	o.mu.Lock()
	o.mode = m
	o.mu.Unlock()
}

func (o *Orchestrator) setBotHealthPort(port int) {
	o.mu.Lock()
	o.botHealthPort = port
	o.mu.Unlock()
}

func (o *Orchestrator) getBotHealthPort() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.botHealthPort
}

func (o *Orchestrator) resolveWorker(name string, bin config.WorkerBinary, preferSidecar bool) (Resolution, error) {
	return ResolveExecutable(executableName(name), ResolveOptions{
		OverridePath:   bin.Path,
		PreferSidecar:  preferSidecar || bin.PreferSidecar,
		SidecarDirs:    DefaultSidecarDirs(),
		KnownLocations: DefaultKnownLocations(),
	})
}

// connectURL derives the externally reachable URL for the engine: the
// configured public host wins, then a LAN address, then loopback.
func (o *Orchestrator) connectURL(port int) string {
	if host := strings.TrimSpace(o.cfg.PublicHost); host != "" {
		return baseURL(host, port)
	}
	if ip := lanIP(); ip != "" {
		return baseURL(ip, port)
	}
	return baseURL("127.0.0.1", port)
}

func (o *Orchestrator) serverHost() string {
	if host := strings.TrimSpace(o.cfg.PublicHost); host != "" {
		return host
	}
	if ip := lanIP(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

func (o *Orchestrator) record(ctx context.Context, worker, event, detail string) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Record(ctx, worker, event, detail); err != nil {
		o.logger.Warn("journal write failed", "error", err)
	}
}

func normalizeWorkspaces(projectDir string, paths []string) []string {
	out := []string{projectDir}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || p == projectDir {
			continue
		}
		out = append(out, p)
	}
	return out
}

// hubDataDir resolves where the openwrk daemon keeps its state.
func hubDataDir() string {
	for _, key := range []string{"OPENWRK_DATA_DIR", "OPENWORK_DATA_DIR"} {
		if dir := strings.TrimSpace(os.Getenv(key)); dir != "" {
			return dir
		}
	}
	if home := userHomeDir(); home != "" {
		return filepath.Join(home, ".openwork", "openwrk")
	}
	return filepath.Join(".openwork", "openwrk")
}

func lanIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil && ip4.IsPrivate() {
			return ip4.String()
		}
	}
	return ""
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
