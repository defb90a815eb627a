// Package store provides the bounded memory log and its persistence backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/sofie/internal/liveness"
	"github.com/rcliao/sofie/internal/model"
)

// Default capacity and query limits.
const (
	DefaultHardCap     = 1000
	DefaultSoftCap     = 800
	DefaultRecallLimit = 5
	DefaultRecentLimit = 10
)

// ErrNotFound is returned when a memory id is unknown.
var ErrNotFound = errors.New("store: memory not found")

// ValidationError reports a rejected field on a mutating call.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// RememberParams holds parameters for storing a memory.
type RememberParams struct {
	Kind         model.Kind
	Content      string
	Significance float64
	Chamber      int // 0 means unset
	Tone         string
	Metadata     map[string]string
}

// RecallParams holds parameters for recalling memories.
type RecallParams struct {
	Query string
	Kind  model.Kind // optional filter
	Limit int        // 0 means the store's default
}

// Backend is the durable side of the store. The store only talks to it on
// Load and Persist.
type Backend interface {
	// LoadAll returns every persisted record in insertion order.
	LoadAll(ctx context.Context) ([]model.Memory, error)

	// SaveAll replaces the persisted set with records.
	SaveAll(ctx context.Context, records []model.Memory) error

	// Close releases backend resources.
	Close() error
}

// LivenessBackend persists liveness tracker history between sessions.
type LivenessBackend interface {
	// LoadLiveness returns the saved state; ok is false when nothing was saved.
	LoadLiveness(ctx context.Context) (st liveness.State, ok bool, err error)

	// SaveLiveness overwrites the saved state.
	SaveLiveness(ctx context.Context, st liveness.State) error
}

// NopBackend keeps nothing. It lets the store run purely in memory.
type NopBackend struct{}

func (NopBackend) LoadAll(context.Context) ([]model.Memory, error) { return nil, nil }

func (NopBackend) SaveAll(context.Context, []model.Memory) error { return nil }

func (NopBackend) Close() error { return nil }
