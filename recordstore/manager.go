package recordstore

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"recordstore/docstore"
	"recordstore/logging"
)

// Dialer opens the backing document store for a uri.
type Dialer func(ctx context.Context, uri string, opts docstore.DialOptions) (docstore.DocStore, error)

// ConnectionState is the manager's view of its connection. A zero value is disconnected.
type ConnectionState struct {
	Connected   bool
	Backend     string
	URI         string // credentials redacted
	ConnectedAt time.Time

	handle docstore.DocStore
}

// Manager owns the store handle and its connection lifecycle.
type Manager struct {
	uri    string
	opts   Options
	dial   Dialer
	logger logging.Logger

	// connMu serializes Connect and Close; readers only load state.
	connMu sync.Mutex
	state  atomic.Pointer[ConnectionState]
}

// NewManager validates uri and merges opts over DefaultOptions. It does not connect.
func NewManager(uri string, opts Options, logger logging.Logger) (*Manager, error) {
	return NewManagerWithDialer(uri, opts, logger, docstore.Open)
}

// NewManagerWithDialer is NewManager with a custom store dialer.
func NewManagerWithDialer(uri string, opts Options, logger logging.Logger, dial Dialer) (*Manager, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, &OpError{Op: "connect", Kind: ErrInvalidArgument, Err: errEmptyURI}
	}
	merged := opts.Merge(DefaultOptions())
	if merged.Collection == "" {
		return nil, &OpError{Op: "connect", Kind: ErrInvalidArgument, Err: errEmptyColl}
	}

	log := logger.WithFields(logging.Fields{"collection": merged.Collection, "schema": merged.SchemaName})
	m := &Manager{
		uri:    uri,
		opts:   merged,
		dial:   dial,
		logger: log,
	}
	m.state.Store(&ConnectionState{})
	return m, nil
}

// Options returns the effective, merged options.
func (m *Manager) Options() Options {
	return m.opts
}

// State returns a snapshot of the connection state.
func (m *Manager) State() ConnectionState {
	return *m.state.Load()
}

func (m *Manager) IsConnected() bool {
	return m.state.Load().Connected
}

// Connect opens the store, verifies it answers and ensures the unique ID
// index. Calling Connect on a connected manager is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.IsConnected() {
		return nil
	}

	redacted := docstore.RedactURI(m.uri)
	log := m.logger.WithField("uri", redacted)
	log.Debug("Connecting to record store")

	handle, err := m.dial(ctx, m.uri, m.opts.dialOptions())
	if err != nil {
		log.WithError(err).Error("Failed to open record store")
		return &OpError{Op: "connect", Kind: ErrConnection, Err: errors.WithStack(err)}
	}

	if err := m.prepare(ctx, handle); err != nil {
		_ = handle.Close(ctx)
		log.WithError(err).Error("Record store is not usable")
		return &OpError{Op: "connect", Kind: ErrConnection, Err: errors.WithStack(err)}
	}

	backend, _, _ := strings.Cut(m.uri, "://")
	m.state.Store(&ConnectionState{
		Connected:   true,
		Backend:     strings.ToLower(backend),
		URI:         redacted,
		ConnectedAt: time.Now(),
		handle:      handle,
	})
	log.Info("Connected to record store")
	return nil
}

func (m *Manager) prepare(ctx context.Context, handle docstore.DocStore) error {
	if err := handle.Ping(ctx); err != nil {
		return err
	}
	return handle.EnsureUniqueIndex(ctx, m.opts.Collection, IDField)
}

// Ping checks that a connected store still answers.
func (m *Manager) Ping(ctx context.Context) error {
	st, err := m.session("ping", "")
	if err != nil {
		return err
	}
	ctx, cancel := m.opContext(ctx)
	defer cancel()
	if err := st.handle.Ping(ctx); err != nil {
		kind := ErrConnection
		if errors.Is(err, docstore.ErrStoreClosed) {
			kind = ErrNotConnected
		}
		return &OpError{Op: "ping", Kind: kind, Err: errors.WithStack(err)}
	}
	return nil
}

// Close disconnects and resets the state. Later operations fail with
// ErrNotConnected, as do operations still running against the closed store.
func (m *Manager) Close(ctx context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	st := m.state.Swap(&ConnectionState{})
	if !st.Connected {
		return nil
	}
	if err := st.handle.Close(ctx); err != nil {
		m.logger.WithError(err).Warn("Error closing record store")
		return errors.WithStack(err)
	}
	m.logger.Info("Disconnected from record store")
	return nil
}

// Store returns the record operations bound to this manager.
func (m *Manager) Store() *Store {
	return &Store{mgr: m}
}

// session returns the live state or ErrNotConnected without touching the store.
func (m *Manager) session(op, id string) (*ConnectionState, error) {
	st := m.state.Load()
	if !st.Connected {
		return nil, &OpError{Op: op, ID: id, Kind: ErrNotConnected}
	}
	return st, nil
}

func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.OpTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.OpTimeout)
	}
	return context.WithCancel(ctx)
}
