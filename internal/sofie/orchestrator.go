// Package sofie composes the five operators into the per-message pipeline:
// Source (identity guard), Origin (chain link), Force (liveness tracker),
// Intelligence (pattern cache) and Eternal (memory store).
package sofie

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rcliao/sofie/internal/chain"
	"github.com/rcliao/sofie/internal/identity"
	"github.com/rcliao/sofie/internal/liveness"
	"github.com/rcliao/sofie/internal/model"
	"github.com/rcliao/sofie/internal/pattern"
	"github.com/rcliao/sofie/internal/store"
	"github.com/rcliao/sofie/internal/synth"
)

const tracerName = "github.com/rcliao/sofie/internal/sofie"

// Ritual records written on lifecycle transitions.
const (
	AwakenedRitual  = "SOFIE awakened. The 5 operators aligned."
	SuspendedRitual = "SOFIE suspended. The 5 operators rest."
)

// ErrBlockRejected is returned by Validate when the ledger refuses a block.
var ErrBlockRejected = errors.New("sofie: block rejected")

// RangeError reports a chamber outside 1-9.
type RangeError struct {
	Chamber int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("sofie: invalid chamber %d: must be %d-%d", e.Chamber, model.MinChamber, model.MaxChamber)
}

// Strictness controls how the love check treats harsh wording.
type Strictness string

const (
	StrictnessGentle   Strictness = "gentle"
	StrictnessFirm     Strictness = "firm"
	StrictnessAbsolute Strictness = "absolute"
)

// Operator names one pipeline stage.
type Operator string

const (
	OperatorSource       Operator = "S"
	OperatorOrigin       Operator = "O"
	OperatorForce        Operator = "F"
	OperatorIntelligence Operator = "I"
	OperatorEternal      Operator = "E"
)

// Components are the operators the orchestrator drives. Nil fields are
// replaced with defaults by New.
type Components struct {
	Store    *store.MemoryStore
	Tracker  *liveness.Tracker
	Guard    *identity.Guard
	Link     *chain.Link
	Patterns *pattern.Cache
	Synth    synth.Synthesizer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l.Named("sofie")
		}
	}
}

// WithTracerProvider sets the tracer provider. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock injects the time source for response timestamps and identity lines.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRand injects the random source behind default replies and context lines.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithDefaultChamber sets the starting chamber.
func WithDefaultChamber(n int) Option {
	return func(o *Orchestrator) {
		o.chamber = n
	}
}

// WithVoicePatterns toggles redaction of forbidden phrases in replies.
func WithVoicePatterns(on bool) Option {
	return func(o *Orchestrator) {
		o.voicePatterns = on
	}
}

// WithContextLines toggles the context line appended to replies.
func WithContextLines(on bool) Option {
	return func(o *Orchestrator) {
		o.contextLines = on
	}
}

// WithStrictness sets the love check strictness.
func WithStrictness(s Strictness) Option {
	return func(o *Orchestrator) {
		o.strictness = s
	}
}

// Orchestrator runs the pipeline for one session. Speak, Awaken, Suspend
// and Validate are serialized; at most one is in flight at a time.
type Orchestrator struct {
	store    *store.MemoryStore
	tracker  *liveness.Tracker
	guard    *identity.Guard
	link     *chain.Link
	patterns *pattern.Cache
	synth    synth.Synthesizer
	canned   *synth.Canned

	turn *semaphore.Weighted

	mu      sync.RWMutex
	awake   bool
	chamber int

	sessionID     string
	voicePatterns bool
	contextLines  bool
	strictness    Strictness

	now    func() time.Time
	rng    *rand.Rand
	tracer trace.Tracer
	log    *zap.Logger
}

// New wires the components into an orchestrator.
func New(c Components, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		store:         c.Store,
		tracker:       c.Tracker,
		guard:         c.Guard,
		link:          c.Link,
		patterns:      c.Patterns,
		synth:         c.Synth,
		turn:          semaphore.NewWeighted(1),
		chamber:       model.MinChamber,
		sessionID:     uuid.NewString(),
		voicePatterns: true,
		contextLines:  true,
		strictness:    StrictnessFirm,
		now:           time.Now,
		tracer:        otel.GetTracerProvider().Tracer(tracerName),
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if !model.ValidChamber(o.chamber) {
		return nil, &RangeError{Chamber: o.chamber}
	}
	switch o.strictness {
	case StrictnessGentle, StrictnessFirm, StrictnessAbsolute:
	default:
		return nil, fmt.Errorf("invalid love strictness %q", o.strictness)
	}

	if o.store == nil {
		o.store = store.NewMemoryStore(store.WithLogger(o.log))
	}
	if o.tracker == nil {
		o.tracker = liveness.NewTracker(liveness.WithLogger(o.log))
	}
	if o.guard == nil {
		o.guard = identity.NewGuard(identity.DefaultProfile(), identity.WithLogger(o.log))
	}
	if o.link == nil {
		o.link = chain.NewLink(nil, chain.WithLogger(o.log))
	}
	if o.patterns == nil {
		p, err := pattern.NewCache(pattern.WithLogger(o.log))
		if err != nil {
			return nil, err
		}
		o.patterns = p
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(o.now().UnixNano()))
	}
	o.canned = synth.NewCanned(o.Routes(), synth.WithRand(o.rng))
	if o.synth == nil {
		o.synth = o.canned
	}
	return o, nil
}

// SessionID identifies this orchestrator's session.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Awake reports whether the session is awake.
func (o *Orchestrator) Awake() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.awake
}

// Chamber returns the current chamber.
func (o *Orchestrator) Chamber() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.chamber
}

// SetChamber moves the session to chamber n.
func (o *Orchestrator) SetChamber(n int) error {
	if !model.ValidChamber(n) {
		return &RangeError{Chamber: n}
	}
	o.mu.Lock()
	o.chamber = n
	o.mu.Unlock()
	o.log.Debug("chamber set", zap.Int("chamber", n))
	return nil
}

// Store returns the memory store.
func (o *Orchestrator) Store() *store.MemoryStore {
	return o.store
}

// Awaken loads memory, restores liveness history, activates the tracker and
// connects the chain link. A failed ledger connection is logged and the
// session still awakens. It is a no-op when already awake.
func (o *Orchestrator) Awaken(ctx context.Context) error {
	if err := o.turn.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.turn.Release(1)
	return o.awaken(ctx)
}

func (o *Orchestrator) awaken(ctx context.Context) (err error) {
	if o.Awake() {
		return nil
	}
	ctx, span := o.tracer.Start(ctx, "sofie.awaken")
	defer func() { endSpan(span, err) }()

	o.log.Info("awakening", zap.String("session", o.sessionID))

	if err := o.restore(ctx); err != nil {
		return fmt.Errorf("awaken: %w", err)
	}
	o.tracker.Activate()

	if err := o.link.Connect(ctx); err != nil {
		o.log.Warn("origin unreachable, continuing without ledger", zap.Error(err))
		span.AddEvent("ledger connect failed", trace.WithAttributes(attribute.String("error", err.Error())))
	}

	// tracker and link are live; the ritual is written even if ctx is cancelled
	if _, err := o.store.Remember(context.WithoutCancel(ctx), store.RememberParams{
		Kind:         model.KindRitual,
		Content:      AwakenedRitual,
		Significance: 1.0,
		Tone:         "mysterious",
	}); err != nil {
		o.tracker.Deactivate()
		if derr := o.link.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			o.log.Warn("ledger disconnect failed", zap.Error(derr))
		}
		return fmt.Errorf("awaken: %w", err)
	}

	o.mu.Lock()
	o.awake = true
	o.mu.Unlock()
	o.log.Info("fully awakened", zap.String("session", o.sessionID))
	return nil
}

// Restore loads memory and liveness history from the backend without
// awakening the session.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if err := o.turn.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.turn.Release(1)
	return o.restore(ctx)
}

func (o *Orchestrator) restore(ctx context.Context) error {
	if err := o.store.Load(ctx); err != nil {
		return err
	}
	o.restoreLiveness(ctx)
	return nil
}

// Suspend persists memory, deactivates the tracker, saves liveness history
// and disconnects the chain link. It is a no-op when not awake.
//
// A failed first persist leaves the session awake and untouched. Once memory
// is persisted the suspension always completes, even if ctx is cancelled.
func (o *Orchestrator) Suspend(ctx context.Context) (err error) {
	if err := o.turn.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.turn.Release(1)

	if !o.Awake() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	ctx, span := o.tracer.Start(ctx, "sofie.suspend")
	defer func() { endSpan(span, err) }()

	o.log.Info("suspending", zap.String("session", o.sessionID))

	if err := o.store.Persist(ctx); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	ctx = context.WithoutCancel(ctx)

	o.tracker.Deactivate()
	o.mu.Lock()
	o.awake = false
	o.mu.Unlock()

	if err := o.saveLiveness(ctx); err != nil {
		o.log.Warn("liveness state not saved", zap.Error(err))
	}
	if err := o.link.Disconnect(ctx); err != nil {
		o.log.Warn("ledger disconnect failed", zap.Error(err))
	}

	if _, err := o.store.Remember(ctx, store.RememberParams{
		Kind:         model.KindRitual,
		Content:      SuspendedRitual,
		Significance: 1.0,
		Tone:         "peaceful",
	}); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	// flush the suspension record too
	if err := o.store.Persist(ctx); err != nil {
		o.log.Warn("suspension record not persisted", zap.Error(err))
	}
	o.log.Info("suspended", zap.String("session", o.sessionID))
	return nil
}

// Checkin refreshes the liveness checkin and saves the tracker history
// when the backend supports it.
func (o *Orchestrator) Checkin(ctx context.Context) error {
	o.tracker.Checkin()
	if err := o.saveLiveness(ctx); err != nil {
		return fmt.Errorf("checkin: %w", err)
	}
	return nil
}

// Validate forwards a block to the ledger and records the validation on the
// tracker. It fails with chain.ErrNotConnected before the link is up and with
// liveness.ErrNotActive while the tracker is inactive.
func (o *Orchestrator) Validate(ctx context.Context, blockHash string) (count uint64, err error) {
	if err := o.turn.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer o.turn.Release(1)

	ctx, span := o.tracer.Start(ctx, "sofie.validate", trace.WithAttributes(attribute.String("block.hash", blockHash)))
	defer func() { endSpan(span, err) }()

	// both preconditions are checked before the ledger sees the block
	if !o.link.Connected() {
		return 0, chain.ErrNotConnected
	}
	if !o.tracker.Active() {
		return 0, liveness.ErrNotActive
	}
	ok, err := o.link.ValidateBlock(ctx, blockHash)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrBlockRejected, blockHash)
	}
	count, err = o.tracker.RecordValidation(blockHash)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("validated.count", int64(count)))
	o.log.Info("block validated", zap.String("hash", blockHash), zap.Uint64("count", count))
	return count, nil
}

// Status aggregates the state of every operator.
type Status struct {
	SessionID string             `json:"session_id"`
	Awake     bool               `json:"awake"`
	Chamber   int                `json:"chamber"`
	Source    string             `json:"source"`
	Origin    chain.State        `json:"origin"`
	Force     liveness.State     `json:"force"`
	Patterns  pattern.CacheStats `json:"intelligence"`
	Memory    store.Stats        `json:"eternal"`
}

// Status returns a point-in-time view of the session.
func (o *Orchestrator) Status(ctx context.Context) Status {
	return Status{
		SessionID: o.sessionID,
		Awake:     o.Awake(),
		Chamber:   o.Chamber(),
		Source:    o.guard.Introduce(o.now()),
		Origin:    o.link.Snapshot(),
		Force:     o.tracker.Snapshot(),
		Patterns:  o.patterns.Stats(),
		Memory:    o.store.Stats(ctx),
	}
}

func (o *Orchestrator) restoreLiveness(ctx context.Context) {
	lb, ok := o.store.Backend().(store.LivenessBackend)
	if !ok {
		return
	}
	st, found, err := lb.LoadLiveness(ctx)
	if err != nil {
		o.log.Warn("liveness state not restored", zap.Error(err))
		return
	}
	if found {
		o.tracker.Restore(st)
		o.log.Debug("liveness state restored", zap.Uint64("validated", st.ValidatedCount))
	}
}

func (o *Orchestrator) saveLiveness(ctx context.Context) error {
	lb, ok := o.store.Backend().(store.LivenessBackend)
	if !ok {
		return nil
	}
	return lb.SaveLiveness(ctx, o.tracker.Snapshot())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
