package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/openwork/workshell/internal/config"
)

func runStopCommand(ctx context.Context, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: workshell stop")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	resp, err := postControl(ctx, cfg, "/api/stop", struct{}{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v (is the daemon running?)\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "stop failed: %s\n", decodeControlError(resp))
		return 1
	}
	fmt.Println("all workers stopped")
	return 0
}
