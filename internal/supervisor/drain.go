package supervisor

// drain consumes a process's event stream for its lifetime, appending
// output to the bounded buffers and marking termination. Updates use
// TryLock so a Stop racing for the same mutex is never starved; a missed
// flush just rides along until the next event. The generation check
// keeps a stale drain from writing into a successor session.
func (m *Manager) drain(p *Process, gen uint64) {
	var pendingOut, pendingErr string
	exited := false
	exitCode := 0

	flushLocked := func() {
		if pendingOut != "" {
			m.stdoutBuf = truncateFront(m.stdoutBuf+pendingOut, OutputCap)
			pendingOut = ""
		}
		if pendingErr != "" {
			m.stderrBuf = truncateFront(m.stderrBuf+pendingErr, OutputCap)
			pendingErr = ""
		}
		if exited {
			m.childExited = true
			m.exitCode = exitCode
		}
	}

	for ev := range p.Events() {
		switch ev.Type {
		case EventStdout:
			pendingOut += lossyString(ev.Data)
		case EventStderr:
			pendingErr += lossyString(ev.Data)
		case EventExited:
			exited = true
			exitCode = ev.ExitCode
		case EventError:
			// A spawn-level failure surfaced after the fact: terminal,
			// and its text belongs next to the child's stderr.
			exited = true
			exitCode = -1
			if ev.Err != nil {
				pendingErr += ev.Err.Error()
			}
		}

		if m.mu.TryLock() {
			if m.gen == gen {
				flushLocked()
			}
			m.mu.Unlock()
		}
	}

	// Stream closed: one blocking flush so the exit flag and any output
	// that lost every TryLock race still land.
	m.mu.Lock()
	if m.gen == gen {
		flushLocked()
	}
	m.mu.Unlock()
}
