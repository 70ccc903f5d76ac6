//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

// processReaped reports whether pid is fully gone from the process
// table, zombies included.
func processReaped(pid int) bool {
	return syscall.Kill(pid, 0) != nil
}

// processExited reports whether pid no longer runs. A zombie awaiting
// its parent's wait still counts as exited.
func processExited(pid int) bool {
	if syscall.Kill(pid, 0) != nil {
		return true
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] == "Z"
}

func waitFor(t *testing.T, what string, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !pred() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// forkingScript spawns a long-lived child of its own and records the
// child's pid, mimicking a worker that launches subprocesses which
// inherit its output pipes.
func forkingScript(t *testing.T, pidFile string) string {
	t.Helper()
	return writeScript(t, `sleep 60 &
echo $! > "`+pidFile+`"
sleep 60`)
}

func readPidFile(t *testing.T, path string) int {
	t.Helper()
	var pid int
	waitFor(t, "pid file", func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil && pid > 0
	})
	return pid
}

func TestKillTerminatesWorkersOwnChildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	script := forkingScript(t, pidFile)

	p, err := Spawn(LaunchSpec{Kind: KindEngine, Program: script})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	go func() {
		for range p.Events() {
		}
	}()

	childPid := readPidFile(t, pidFile)

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(4 * time.Second):
		t.Fatal("Done not closed after Kill")
	}

	waitFor(t, "worker reaped", func() bool { return processReaped(p.PID()) })
	waitFor(t, "worker's child terminated", func() bool { return processExited(childPid) })
}

func TestStopWithForkedChildIsBoundedAndReaps(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	script := forkingScript(t, pidFile)

	p, err := Spawn(LaunchSpec{Kind: KindEngine, Program: script})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	m := NewManager(KindEngine)
	m.Attach(p, nil, nil, "")

	workerPid := p.PID()
	childPid := readPidFile(t, pidFile)

	start := time.Now()
	m.Stop()
	if elapsed := time.Since(start); elapsed >= stopWait {
		t.Fatalf("Stop took %v, bounded wait exhausted", elapsed)
	}

	if info := m.Snapshot(); info.Running {
		t.Fatalf("still running after Stop: %+v", info)
	}
	waitFor(t, "worker reaped", func() bool { return processReaped(workerPid) })
	waitFor(t, "worker's child terminated", func() bool { return processExited(childPid) })
}

func TestSecondStartReplacesEngineProcess(t *testing.T) {
	engine := writeScript(t, `sleep 60`)
	o := New(testConfig(engine), quietLogger(), &memoryJournal{})
	projectDir := filepath.Join(t.TempDir(), "proj")

	first, err := o.Start(context.Background(), StartOptions{ProjectDir: projectDir})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer o.StopAll(context.Background())
	if !first.Engine.Running || first.Engine.PID == 0 {
		t.Fatalf("first engine not running: %+v", first.Engine)
	}

	second, err := o.Start(context.Background(), StartOptions{ProjectDir: projectDir})
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.Engine.Running || second.Engine.PID == 0 {
		t.Fatalf("second engine not running: %+v", second.Engine)
	}
	if second.Engine.PID == first.Engine.PID {
		t.Fatalf("engine pid unchanged across restart: %d", first.Engine.PID)
	}

	waitFor(t, "first engine gone", func() bool { return processReaped(first.Engine.PID) })
	if processExited(second.Engine.PID) {
		t.Fatalf("replacement engine %d not alive", second.Engine.PID)
	}
}
