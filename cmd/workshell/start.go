package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/openwork/workshell/internal/config"
	"github.com/openwork/workshell/internal/supervisor"
)

func runStartCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	dir := fs.String("dir", "", "project directory (defaults to the active workspace)")
	mode := fs.String("mode", "", "worker mode: direct or hub (defaults to direct)")
	sidecar := fs.Bool("sidecar", false, "prefer bundled sidecar binaries over PATH")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	resp, err := postControl(ctx, cfg, "/api/start", map[string]any{
		"projectDir":    *dir,
		"mode":          *mode,
		"preferSidecar": *sidecar,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start: %v (is the daemon running?)\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "start failed: %s\n", decodeControlError(resp))
		return 1
	}

	var status supervisor.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
		return 1
	}

	fmt.Printf("mode: %s\n", status.Mode)
	printWorkerLine("opencode", status.Engine)
	printWorkerLine("openwrk", status.Hub)
	printWorkerLine("openwork-server", status.Server)
	printWorkerLine("owpenbot", status.Bot)
	return 0
}

func printWorkerLine(name string, info supervisor.Info) {
	state := "stopped"
	detail := ""
	if info.Running {
		state = "running"
		if info.Connection != nil {
			detail = " " + info.Connection.BaseURL
		}
	} else if info.LastError != "" {
		detail = " (" + info.LastError + ")"
	}
	fmt.Printf("  %-16s %s%s\n", name, state, detail)
}
