package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every ledger call.
const DefaultTimeout = 10 * time.Second

// ErrNotConnected is returned by bridge calls made before Connect succeeded.
var ErrNotConnected = errors.New("chain: not connected")

// Status is the connection state of a Link.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// State is a point-in-time view of a Link.
type State struct {
	Status        Status `json:"status"`
	Connected     bool   `json:"connected"`
	BlockNumber   uint64 `json:"block_number"`
	LastBlockHash string `json:"last_block_hash"`
	LastError     string `json:"last_error,omitempty"`
}

// Option configures a Link.
type Option func(*Link)

// WithTimeout sets the per-call ledger timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(l *Link) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Link) {
		if lg != nil {
			l.log = lg.Named("origin")
		}
	}
}

// Link tracks the connection to a Ledger. Only Connect and Disconnect change
// its state.
type Link struct {
	ledger  Ledger
	timeout time.Duration
	log     *zap.Logger

	mu    sync.RWMutex
	state State
}

// NewLink creates a disconnected link. A nil ledger falls back to a
// SimulatedLedger.
func NewLink(ledger Ledger, opts ...Option) *Link {
	if ledger == nil {
		ledger = NewSimulatedLedger()
	}
	l := &Link{
		ledger:  ledger,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
		state:   State{Status: StatusDisconnected},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect opens the ledger bridge. On failure the link is left in
// StatusError and the error is returned.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	l.state.Status = StatusConnecting
	l.state.LastError = ""
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	head, err := l.ledger.Connect(ctx)
	if err != nil {
		l.mu.Lock()
		l.state = State{Status: StatusError, LastError: err.Error()}
		l.mu.Unlock()
		l.log.Warn("ledger connection failed", zap.Error(err))
		return fmt.Errorf("connect ledger: %w", err)
	}

	l.mu.Lock()
	l.state = State{
		Status:        StatusConnected,
		Connected:     true,
		BlockNumber:   head.Number,
		LastBlockHash: head.Hash,
	}
	l.mu.Unlock()
	l.log.Info("connected to ledger", zap.Uint64("block", head.Number), zap.String("hash", head.Hash))
	return nil
}

// Disconnect closes the bridge and resets the state. The state is reset even
// when the ledger reports an error.
func (l *Link) Disconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	err := l.ledger.Disconnect(ctx)

	l.mu.Lock()
	l.state = State{Status: StatusDisconnected}
	l.mu.Unlock()

	if err != nil {
		l.log.Warn("ledger disconnect failed", zap.Error(err))
		return fmt.Errorf("disconnect ledger: %w", err)
	}
	l.log.Info("disconnected from ledger")
	return nil
}

// Snapshot returns a copy of the current state.
func (l *Link) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Connected reports whether the link is connected.
func (l *Link) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Connected
}

// ValidateBlock forwards a validation request to the ledger.
func (l *Link) ValidateBlock(ctx context.Context, hash string) (bool, error) {
	if !l.Connected() {
		return false, ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ok, err := l.ledger.ValidateBlock(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("validate block %s: %w", hash, err)
	}
	l.log.Debug("block validated", zap.String("hash", hash), zap.Bool("ok", ok))
	return ok, nil
}

// Speak returns the link's status line.
func (l *Link) Speak() string {
	st := l.Snapshot()
	if st.Connected {
		return fmt.Sprintf("Connected to Terracare genesis. Block #%d. The chain remembers.", st.BlockNumber)
	}
	return "Seeking the Origin. The First Link awaits."
}
