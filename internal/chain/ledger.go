// Package chain links the pipeline to a block ledger. The ledger itself is an
// external collaborator behind the Ledger interface; SimulatedLedger stands in
// when no real ledger is configured.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Genesis head reported by SimulatedLedger.
const (
	GenesisBlock = 1
	GenesisHash  = "0xgenesis"
)

// DefaultValidatorAddress identifies the local validator node.
const DefaultValidatorAddress = "0xa85233C63b9Ee964Add6F2cffe00Fd84eb32338f"

// Head is the ledger head observed on connect.
type Head struct {
	Number uint64 `json:"number"`
	Hash   string `json:"hash"`
}

// Ledger is the bridge to a block ledger.
type Ledger interface {
	// Connect opens the bridge and returns the current head.
	Connect(ctx context.Context) (Head, error)

	// Disconnect closes the bridge.
	Disconnect(ctx context.Context) error

	// ValidateBlock asks the ledger to validate the block with the given hash.
	ValidateBlock(ctx context.Context, hash string) (bool, error)
}

// SimulatedLedger is an in-process Ledger that always sits at genesis.
type SimulatedLedger struct {
	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	mu        sync.Mutex
	connected bool
	validated []string
}

// NewSimulatedLedger returns a ledger that connects at the genesis head.
func NewSimulatedLedger() *SimulatedLedger {
	return &SimulatedLedger{}
}

func (l *SimulatedLedger) Connect(ctx context.Context) (Head, error) {
	if err := ctx.Err(); err != nil {
		return Head{}, err
	}
	if l.ConnectErr != nil {
		return Head{}, l.ConnectErr
	}
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
	return Head{Number: GenesisBlock, Hash: GenesisHash}, nil
}

func (l *SimulatedLedger) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	return nil
}

// ValidateBlock accepts any non-empty hash.
func (l *SimulatedLedger) ValidateBlock(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return false, ErrNotConnected
	}
	if strings.TrimSpace(hash) == "" {
		return false, errors.New("empty block hash")
	}
	l.validated = append(l.validated, hash)
	return true, nil
}

// Validated returns the hashes validated so far.
func (l *SimulatedLedger) Validated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.validated...)
}

func (h Head) String() string {
	return fmt.Sprintf("#%d %s", h.Number, h.Hash)
}
