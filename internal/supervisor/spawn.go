package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// EventType discriminates the process event stream.
type EventType int

const (
	EventStdout EventType = iota
	EventStderr
	EventExited
	EventError
)

// Event is one item of a spawned process's output/lifecycle stream.
type Event struct {
	Type EventType
	// Data holds the raw chunk for stdout/stderr events.
	Data []byte
	// ExitCode is valid for EventExited.
	ExitCode int
	// Err is set for EventError.
	Err error
}

// pipeDrainWait bounds how long the waiter lets output drain after the
// worker exits. The worker's own children inherit the output pipes;
// when one outlives the worker the pipes never hit EOF, so the read
// ends are force-closed after this grace period.
const pipeDrainWait = 2 * time.Second

// LaunchSpec describes one worker launch: program, arguments, working
// directory and environment overrides layered on the shell's own
// environment.
type LaunchSpec struct {
	Kind    Kind
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
}

// Process is a live handle on a spawned worker plus its event stream.
// Events carries stdout/stderr chunks and exactly one terminal event
// (Exited or Error) before it is closed; Done is closed at the same time.
type Process struct {
	cmd    *exec.Cmd
	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	exitCode int
}

// Spawn starts the process described by spec and begins streaming its
// output. The returned Process owns the OS child; callers consume
// Events (typically via a Manager drain goroutine). The worker runs in
// its own process group so Kill reaches any children it spawned.
func Spawn(spec LaunchSpec) (*Process, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = sysProcAttr()

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Program, err)
	}
	// The child holds its own copies of the write ends now; drop ours
	// so EOF tracks the worker side alone.
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		cmd:      cmd,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		exitCode: -1,
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go p.readStream(&readers, stdoutR, EventStdout)
	go p.readStream(&readers, stderrR, EventStderr)

	go func() {
		waitErr := cmd.Wait()

		// The worker is gone but a child of its own may still hold the
		// write ends. Let genuine trailing output drain, then force
		// EOF so teardown never hangs on an inherited pipe.
		drained := make(chan struct{})
		go func() {
			readers.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(pipeDrainWait):
			stdoutR.Close()
			stderrR.Close()
			<-drained
		}
		stdoutR.Close()
		stderrR.Close()

		code := 0
		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
			p.events <- Event{Type: EventExited, ExitCode: 0}
		case errors.As(waitErr, &exitErr):
			code = exitErr.ExitCode()
			p.events <- Event{Type: EventExited, ExitCode: code}
		default:
			code = -1
			p.events <- Event{Type: EventError, Err: waitErr}
		}
		p.mu.Lock()
		p.exitCode = code
		p.mu.Unlock()
		close(p.events)
		close(p.done)
	}()

	return p, nil
}

func (p *Process) readStream(wg *sync.WaitGroup, r io.Reader, kind EventType) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.events <- Event{Type: kind, Data: chunk}
		}
		if err != nil {
			return
		}
	}
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Events is the output/lifecycle stream; closed after the terminal event.
func (p *Process) Events() <-chan Event {
	return p.events
}

// Done is closed once the child has been waited on.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode is valid after Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Kill forcibly terminates the worker and everything it spawned. The
// spawn-time waiter goroutine reaps it; callers wanting teardown
// confirmation select on Done.
func (p *Process) Kill() error {
	return killProcessTree(p.cmd.Process)
}
