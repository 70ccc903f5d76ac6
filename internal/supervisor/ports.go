package supervisor

import (
	"fmt"
	"net"
)

// FreePort asks the OS for an ephemeral loopback port and releases it
// again. Advisory: the caller binds later, and the microsecond race is
// acceptable on a single-user desktop.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("no free port available: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// PreferredPort returns preferred when it is currently bindable on all
// interfaces, otherwise an ephemeral port.
func PreferredPort(preferred int) (int, error) {
	if l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", preferred)); err == nil {
		l.Close()
		return preferred, nil
	}
	return FreePort()
}
