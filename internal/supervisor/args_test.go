package supervisor

import (
	"slices"
	"strings"
	"testing"
)

func countFlag(args []string, flag string) int {
	n := 0
	for _, a := range args {
		if a == flag {
			n++
		}
	}
	return n
}

func flagValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		t.Fatalf("flag %s missing in %v", flag, args)
	}
	return args[i+1]
}

func TestEngineLaunchArgs(t *testing.T) {
	spec := EngineLaunch("/usr/local/bin/opencode", "0.0.0.0", 4317, "/tmp/proj", nil, false)

	if spec.Args[0] != "serve" {
		t.Fatalf("first arg = %q, want serve", spec.Args[0])
	}
	if got := flagValue(t, spec.Args, "--hostname"); got != "0.0.0.0" {
		t.Fatalf("hostname = %q", got)
	}
	if got := flagValue(t, spec.Args, "--port"); got != "4317" {
		t.Fatalf("port = %q", got)
	}
	if n := countFlag(spec.Args, "--cors"); n != len(fixedCORSOrigins) {
		t.Fatalf("cors count = %d, want %d", n, len(fixedCORSOrigins))
	}
	if slices.Contains(spec.Args, "--username") {
		t.Fatal("credentials flags present without credentials")
	}
	if spec.Dir != "/tmp/proj" {
		t.Fatalf("dir = %q", spec.Dir)
	}
	if spec.Env["OPENCODE_CLIENT"] != "openwork" || spec.Env["OPENWORK"] != "1" {
		t.Fatalf("marker env missing: %v", spec.Env)
	}
}

func TestEngineLaunchWithCredentialsAndDev(t *testing.T) {
	creds := &Credentials{Username: "opencode", Password: "s3cret"}
	spec := EngineLaunch("opencode", "127.0.0.1", 1, "/tmp", creds, true)

	if got := flagValue(t, spec.Args, "--username"); got != "opencode" {
		t.Fatalf("username = %q", got)
	}
	if got := flagValue(t, spec.Args, "--password"); got != "s3cret" {
		t.Fatalf("password = %q", got)
	}
	// Dev mode adds the wildcard origin on top of the fixed set.
	if n := countFlag(spec.Args, "--cors"); n != len(fixedCORSOrigins)+1 {
		t.Fatalf("cors count = %d, want %d", n, len(fixedCORSOrigins)+1)
	}
	if !slices.Contains(spec.Args, "*") {
		t.Fatal("wildcard origin missing in dev mode")
	}
}

func TestHubLaunchArgs(t *testing.T) {
	spec := HubLaunch("openwrk", HubLaunchOptions{
		DataDir:     "/data",
		DaemonHost:  "127.0.0.1",
		DaemonPort:  5500,
		EngineBin:   "/bin/opencode",
		EngineHost:  "0.0.0.0",
		EngineDir:   "/tmp/proj",
		Credentials: &Credentials{Username: "u", Password: "p"},
		CORS:        "*",
	})

	if spec.Args[0] != "daemon" || spec.Args[1] != "run" {
		t.Fatalf("subcommand = %v", spec.Args[:2])
	}
	if got := flagValue(t, spec.Args, "--data-dir"); got != "/data" {
		t.Fatalf("data-dir = %q", got)
	}
	if got := flagValue(t, spec.Args, "--opencode-bin"); got != "/bin/opencode" {
		t.Fatalf("opencode-bin = %q", got)
	}
	if got := flagValue(t, spec.Args, "--opencode-password"); got != "p" {
		t.Fatalf("opencode-password = %q", got)
	}
	if slices.Contains(spec.Args, "--opencode-port") {
		t.Fatal("port flag present when hub should pick")
	}
}

func TestServerLaunchArgs(t *testing.T) {
	spec := ServerLaunch("openwork-server", ServerLaunchOptions{
		Host:          "0.0.0.0",
		Port:          8787,
		Workspaces:    []string{"/ws/main", "/ws/other", " "},
		Token:         "tok",
		HostToken:     "host-tok",
		EngineBaseURL: "http://192.168.1.5:4000",
		EngineDir:     "/ws/main",
		BotHealthPort: 8901,
	})

	if n := countFlag(spec.Args, "--workspace"); n != 2 {
		t.Fatalf("workspace count = %d, want 2 (blank skipped)", n)
	}
	if got := flagValue(t, spec.Args, "--token"); got != "tok" {
		t.Fatalf("token = %q", got)
	}
	if got := flagValue(t, spec.Args, "--host-token"); got != "host-tok" {
		t.Fatalf("host-token = %q", got)
	}
	if got := flagValue(t, spec.Args, "--opencode-base-url"); got != "http://192.168.1.5:4000" {
		t.Fatalf("opencode-base-url = %q", got)
	}
	if got := flagValue(t, spec.Args, "--owpenbot-health-port"); got != "8901" {
		t.Fatalf("owpenbot-health-port = %q", got)
	}
	if spec.Dir != "/ws/main" {
		t.Fatalf("dir = %q, want first workspace", spec.Dir)
	}
}

func TestBotLaunchArgs(t *testing.T) {
	spec := BotLaunch("owpenbot", BotLaunchOptions{
		WorkspacePath: "/ws/main",
		EngineURL:     "http://127.0.0.1:4000",
		HealthPort:    8901,
	})

	if spec.Args[0] != "start" || spec.Args[1] != "/ws/main" {
		t.Fatalf("args = %v", spec.Args[:2])
	}
	if got := flagValue(t, spec.Args, "--health-port"); got != "8901" {
		t.Fatalf("health-port = %q", got)
	}
	if slices.Contains(spec.Args, "--opencode-username") {
		t.Fatal("credential flags present without credentials")
	}
	if !strings.HasPrefix(flagValue(t, spec.Args, "--opencode-url"), "http://") {
		t.Fatal("opencode-url missing")
	}
}
