package main

import (
	"fmt"
	"os"

	"github.com/openwork/workshell/internal/config"
	"github.com/openwork/workshell/internal/tui"
)

func runDashCommand(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: workshell dash")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	client := &tui.StatusClient{
		BaseURL: controlBaseURL(cfg),
		Token:   cfg.Control.Token,
	}
	if err := tui.RunDash(client); err != nil {
		fmt.Fprintf(os.Stderr, "dash: %v\n", err)
		return 1
	}
	return 0
}
