package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/openwork/workshell/internal/config"
	"github.com/openwork/workshell/internal/control"
	otelPkg "github.com/openwork/workshell/internal/otel"
	"github.com/openwork/workshell/internal/persistence"
	"github.com/openwork/workshell/internal/scheduler"
	"github.com/openwork/workshell/internal/supervisor"
	"github.com/openwork/workshell/internal/telemetry"
	"github.com/openwork/workshell/internal/workspace"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE:
  %s -daemon                  Run the shell backend (control API, scheduler)

SUBCOMMANDS:
  %s start [options]          Start the worker stack via the control API
                              Options: -dir <path>, -mode direct|hub, -sidecar
  %s stop                     Stop all running workers
  %s status                   Show backend health (/healthz)
  %s dash                     Live worker dashboard (TUI)
  %s doctor [-json]           Run diagnostic checks

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  OPENWORK_HOME             Data directory (default: ~/.openwork)
  OPENWORK_OPENCODE_PATH    Override the opencode binary location
  OPENWORK_CONTROL_ADDR     Control API bind address (default: 127.0.0.1:4096)
  OPENWORK_CONTROL_TOKEN    Control API auth token

EXAMPLES:
  Run the backend:        %s -daemon
  Start a project:        %s start -dir ~/code/myapp
  Check backend health:   %s status
  Run diagnostics:        %s doctor
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	daemon := flag.Bool("daemon", false, "run the backend daemon (control API, scheduler)")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "start":
			os.Exit(runStartCommand(ctx, args[1:]))
		case "stop":
			os.Exit(runStopCommand(ctx, args[1:]))
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "dash":
			os.Exit(runDashCommand(args[1:]))
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		case "daemon":
			*daemon = true
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	if !*daemon {
		// Bare invocation on a terminal opens the dashboard; anything
		// else (a service manager, a pipe) gets the daemon.
		if isatty.IsTerminal(os.Stdout.Fd()) {
			os.Exit(runDashCommand(nil))
		}
	}

	os.Exit(runDaemon(ctx))
}

func runDaemon(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "config_load", err)
		return 1
	}

	// The control token gates every API call; generate one on first run
	// so the desktop client can read it back from config.yaml.
	if strings.TrimSpace(cfg.Control.Token) == "" {
		cfg.Control.Token = uuid.NewString()
		if err := cfg.Save(); err != nil {
			fatalStartup(nil, "token_persist", err)
			return 1
		}
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "logger_init", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir)

	otelProvider, err := otelPkg.Init(ctx, cfg.Tracing, Version)
	if err != nil {
		fatalStartup(logger, "otel_init", err)
		return 1
	}
	defer otelProvider.Shutdown(context.Background())

	journal, err := persistence.Open(persistence.DefaultDBPath(cfg.HomeDir))
	if err != nil {
		fatalStartup(logger, "journal_open", err)
		return 1
	}
	defer journal.Close()
	logger.Info("startup phase", "phase", "schema_migrated")

	workspaces := workspace.NewStore(cfg.HomeDir)
	orch := supervisor.New(cfg, logger, journal)

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for ev := range watcher.Events() {
				logger.Info("shell file changed on disk", "path", ev.Path, "op", ev.Op.String())
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(scheduler.Config{
			JobsDir:  scheduler.JobsDir(cfg.HomeDir),
			Runner:   buildJobRunner(cfg, workspaces, logger),
			Logger:   logger,
			Interval: time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		})
		sched.Start(ctx)
		defer sched.Stop()
		logger.Info("startup phase", "phase", "scheduler_started", "jobs_dir", scheduler.JobsDir(cfg.HomeDir))
	}

	srv := control.New(control.Config{
		Orchestrator: orch,
		Workspaces:   workspaces,
		Journal:      journal,
		Cfg:          cfg,
		Version:      Version,
		AuthToken:    cfg.Control.Token,
		AllowOrigins: cfg.Control.AllowedOrigins,
		Logger:       logger,
	})

	logger.Info("startup phase", "phase", "control_api_listening", "addr", cfg.Control.BindAddr)
	serveErr := srv.Serve(ctx, cfg.Control.BindAddr)

	// Workers are children of this process; reap them before exiting.
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	orch.StopAll(stopCtx)

	if serveErr != nil {
		logger.Error("control api stopped", "error", serveErr)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// buildJobRunner resolves the engine binary once and hands scheduled
// prompts to it. Jobs without a workspace run in the active workspace,
// falling back to the shell home.
func buildJobRunner(cfg *config.Config, workspaces *workspace.Store, logger *slog.Logger) scheduler.Runner {
	defaultDir := cfg.HomeDir
	if ws, ok, err := workspaces.Active(); err == nil && ok && ws.Path != "" {
		defaultDir = ws.Path
	}

	res, err := supervisor.ResolveExecutable("opencode", supervisor.ResolveOptions{
		OverridePath:   cfg.Engine.Path,
		PreferSidecar:  cfg.Engine.PreferSidecar,
		SidecarDirs:    supervisor.DefaultSidecarDirs(),
		KnownLocations: supervisor.DefaultKnownLocations(),
	})
	if err != nil {
		logger.Warn("scheduled jobs disabled: engine binary not found", "error", err)
		return func(context.Context, scheduler.Job) error {
			return fmt.Errorf("opencode binary not found")
		}
	}
	return scheduler.EngineRunner(res.Path, defaultDir, logger)
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
		return
	}
	fmt.Fprintf(
		os.Stderr,
		`{"timestamp":"%s","level":"ERROR","component":"runtime","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
		time.Now().UTC().Format(time.RFC3339Nano),
		reasonCode,
		message,
	)
}
