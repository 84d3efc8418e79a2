package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded by the authorization server.
const (
	ActionTokenIssued    = "token.issued"
	ActionTokenRevoked   = "token.revoked"
	ActionRefreshReplay  = "refresh_token.replayed"
	ActionCodeReplay     = "authorization_code.replayed"
	ActionClientRevoked  = "client.revoked"
	ActionLoginFailed    = "login.failed"
	ActionFederatedLogin = "login.federated"
)

// Event represents an audit log event.
type Event struct {
	Action   string
	ClientID string
	Subject  string
	Target   string // Token id, code id or strategy id
	Details  string
	Success  bool
	Err      error
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Str("stream", "audit").Logger()
)

// SetOutput redirects audit events. Used by the server to separate the audit
// stream and by tests to capture it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	logger = zerolog.New(w).With().Timestamp().Str("stream", "audit").Logger()
}

// Log records an audit event.
func Log(e Event) {
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.Log().
		Str("action", e.Action).
		Bool("success", e.Success).
		Time("at", time.Now().UTC())
	if e.ClientID != "" {
		ev = ev.Str("client_id", e.ClientID)
	}
	if e.Subject != "" {
		ev = ev.Str("subject", e.Subject)
	}
	if e.Target != "" {
		ev = ev.Str("target", e.Target)
	}
	if e.Details != "" {
		ev = ev.Str("details", e.Details)
	}
	if e.Err != nil {
		ev = ev.Str("error", e.Err.Error())
	}

	ev.Msg("")
}
