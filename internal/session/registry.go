package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrRootAmbiguous is returned when a connection has no session root, no
// configured hint, and the server runs in shared daemon mode — spec.md
// §4.12's "fails closed" rule. Falling back to process cwd is only safe
// for a single-client, non-daemon server.
var ErrRootAmbiguous = errors.New("root ambiguous: no session root, no configured hint, daemon mode forbids process cwd fallback")

// defaultNotebookMax bounds the per-connection scratch ledger.
const defaultNotebookMax = 64

// ConnState is the connection-local state the Registry tracks per agent
// session. It is never mutated by any other connection.
type ConnState struct {
	SessionRoot string
	Notebook    *Notebook
}

// Registry implements the Session Registry (spec.md §4.12): per-connection
// root resolution plus the notebook scratch ledger. It holds no project
// data itself — that belongs to the Backend Daemon's per-project engine
// table — only the bookkeeping a connection needs to stay scoped to one
// project.
type Registry struct {
	mu                 sync.Mutex
	conns              map[string]*ConnState
	configuredRootHint string
	daemonMode         bool
	processCwd         string
}

// NewRegistry creates a Registry. configuredRootHint is the server's
// configured root environment hint (empty if unset); daemonMode disables
// the process-cwd fallback per spec.md §4.12.
func NewRegistry(configuredRootHint string, daemonMode bool) (*Registry, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return &Registry{
		conns:              map[string]*ConnState{},
		configuredRootHint: configuredRootHint,
		daemonMode:         daemonMode,
		processCwd:         cwd,
	}, nil
}

// conn returns (creating if needed) the ConnState for connID.
func (r *Registry) conn(connID string) *ConnState {
	st, ok := r.conns[connID]
	if !ok {
		st = &ConnState{Notebook: NewNotebook(defaultNotebookMax)}
		r.conns[connID] = st
	}
	return st
}

// Disconnect drops a connection's state. Session Registry state is
// connection-local, so nothing else needs to observe this.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// Resolve implements the root-resolution order for a tool call's `path`
// argument: an absolute path always sets (or switches) the session root;
// otherwise the order is (1) the existing per-connection root, (2) the
// configured root hint, (3) process cwd — skipped in daemon mode, which
// fails closed instead. Once a root is set, a relative path is returned
// unchanged as scopeHint, never folded into the root.
func (r *Registry) Resolve(connID, path string) (root string, scopeHint string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.conn(connID)

	if path != "" && filepath.IsAbs(path) {
		st.SessionRoot = filepath.Clean(path)
		return st.SessionRoot, "", nil
	}

	if st.SessionRoot != "" {
		return st.SessionRoot, path, nil
	}

	if r.configuredRootHint != "" {
		st.SessionRoot = filepath.Clean(r.configuredRootHint)
		return st.SessionRoot, path, nil
	}

	if r.daemonMode {
		return "", "", ErrRootAmbiguous
	}

	st.SessionRoot = r.processCwd
	return st.SessionRoot, path, nil
}

// Notebook returns the connection's scratch ledger, creating the
// connection's state if this is its first call.
func (r *Registry) Notebook(connID string) *Notebook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn(connID).Notebook
}

// RootFingerprint derives the short, path-opaque fingerprint every
// response carries so clients can detect cross-project mixups without
// ever seeing a filesystem path (spec.md §4.12).
func RootFingerprint(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return hex.EncodeToString(sum[:])[:12]
}
