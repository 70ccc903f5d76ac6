package supervisor

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// OutputCap bounds each of a worker's stdout/stderr buffers. Truncation
// drops the oldest bytes; the most recent output is the diagnostic one.
const OutputCap = 8000

// stopWait bounds how long Stop waits for the kill to take effect.
const stopWait = 5 * time.Second

// Manager owns the mutex-guarded state of one worker kind. The drain
// goroutine and any number of concurrent Snapshot/Stop callers contend
// on the same lock; critical sections are plain field access, never I/O.
type Manager struct {
	kind Kind

	mu sync.Mutex
	// gen increments on every attach/stop so a stale drain goroutine
	// can never write into a successor session's state.
	gen         uint64
	child       *Process
	childExited bool
	exitCode    int
	// remoteRunning marks a worker whose process is owned elsewhere
	// (the engine entry in hub mode) but whose connection is live.
	remoteRunning bool
	conn          *Connection
	creds         *Credentials
	projectDir    string
	stdoutBuf     string
	stderrBuf     string
	lastError     string
}

// NewManager creates an empty manager for one worker kind.
func NewManager(kind Kind) *Manager {
	return &Manager{kind: kind}
}

// Kind returns the worker role this manager supervises.
func (m *Manager) Kind() Kind {
	return m.kind
}

// Attach installs a freshly spawned process and starts draining its
// event stream. Any previous child is stopped first, so attach is always
// a clean replacement.
func (m *Manager) Attach(p *Process, conn *Connection, creds *Credentials, projectDir string) {
	m.mu.Lock()
	m.stopLocked()
	m.child = p
	m.conn = conn
	m.creds = creds
	m.projectDir = projectDir
	gen := m.gen
	m.mu.Unlock()

	go m.drain(p, gen)
}

// AttachRemote records connection info for a worker whose process is
// supervised elsewhere (the hub-managed engine).
func (m *Manager) AttachRemote(conn *Connection, creds *Credentials, projectDir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.remoteRunning = true
	m.conn = conn
	m.creds = creds
	m.projectDir = projectDir
}

// DetachRemote clears a remote attachment without touching anything else.
func (m *Manager) DetachRemote() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteRunning = false
}

// Snapshot reports point-in-time status. An exited child is reaped here:
// the handle is cleared and running flips to false, but connection info
// and output tails stay visible so a crashed worker's last words remain
// readable until the next start or stop.
func (m *Manager) Snapshot() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := false
	pid := 0
	if m.child != nil {
		exited := m.childExited
		if !exited {
			select {
			case <-m.child.Done():
				exited = true
			default:
			}
		}
		if exited {
			m.child = nil
			m.childExited = true
		} else {
			running = true
			pid = m.child.PID()
		}
	} else if m.remoteRunning {
		running = true
	}

	return Info{
		Kind:        m.kind,
		Running:     running,
		PID:         pid,
		Connection:  m.conn,
		Credentials: m.creds,
		ProjectDir:  m.projectDir,
		LastStdout:  m.stdoutBuf,
		LastStderr:  m.stderrBuf,
		LastError:   m.lastError,
	}
}

// Stop kills any running child, waits (bounded) for it to be reaped, and
// resets every field atomically under one lock acquisition. Idempotent:
// with no child it still clears stale connection info.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.child != nil {
		_ = m.child.Kill()
		select {
		case <-m.child.Done():
		case <-time.After(stopWait):
		}
		m.child = nil
	}
	m.gen++
	m.childExited = false
	m.exitCode = 0
	m.remoteRunning = false
	m.conn = nil
	m.creds = nil
	m.projectDir = ""
	m.stdoutBuf = ""
	m.stderrBuf = ""
	m.lastError = ""
}

// SetLastError records a non-fatal failure (a secondary service that
// could not start) so status queries surface it.
func (m *Manager) SetLastError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = truncateFront(msg, OutputCap)
}

// exitState supports the warm-up gate: has the child exited, and what
// did it say before it died.
func (m *Manager) exitState() (exited bool, code int, stdout, stderr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.childExited, m.exitCode, m.stdoutBuf, m.stderrBuf
}

// truncateFront keeps the trailing max bytes of s. The cut point
// advances to the next rune boundary so a multi-byte rune is never
// split at the front of the kept tail.
func truncateFront(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

func lossyString(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
