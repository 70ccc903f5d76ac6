package main

import (
	"testing"

	"github.com/openwork/workshell/internal/config"
)

func TestControlBaseURL(t *testing.T) {
	cases := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:4096", "http://127.0.0.1:4096"},
		{"", "http://127.0.0.1:4096"},
		{"  127.0.0.1:5000  ", "http://127.0.0.1:5000"},
		{"http://localhost:4096", "http://localhost:4096"},
		{"https://shell.example.com/", "https://shell.example.com"},
	}
	for _, tc := range cases {
		cfg := &config.Config{}
		cfg.Control.BindAddr = tc.addr
		if got := controlBaseURL(cfg); got != tc.want {
			t.Errorf("controlBaseURL(%q) = %q, want %q", tc.addr, got, tc.want)
		}
	}
}
