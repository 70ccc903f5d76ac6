// Package supervisor launches, supervises and tears down the worker
// processes behind the OpenWork shell: the opencode engine, the openwrk
// multi-engine hub, the openwork-server remote gateway and the owpenbot
// messaging bot.
package supervisor

import "fmt"

// Kind identifies one supervised worker role.
type Kind string

const (
	KindEngine Kind = "engine"
	KindHub    Kind = "hub"
	KindServer Kind = "server"
	KindBot    Kind = "bot"
)

// Kinds lists every worker role in supervision order.
func Kinds() []Kind {
	return []Kind{KindEngine, KindHub, KindServer, KindBot}
}

// Connection is where a running worker can be reached.
type Connection struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	BaseURL string `json:"baseUrl"`
}

// Credentials are the per-session secrets generated at spawn time for
// workers that authenticate co-located callers.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Info is the point-in-time status of one worker, identical in shape for
// every kind so the UI can render them uniformly.
type Info struct {
	Kind        Kind         `json:"kind"`
	Running     bool         `json:"running"`
	PID         int          `json:"pid,omitempty"`
	Connection  *Connection  `json:"connection,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty"`
	ProjectDir  string       `json:"projectDir,omitempty"`
	LastStdout  string       `json:"lastStdout,omitempty"`
	LastStderr  string       `json:"lastStderr,omitempty"`
	LastError   string       `json:"lastError,omitempty"`
}

func baseURL(host string, port int) string {
	return fmt.Sprintf("http://%s:%d", host, port)
}
