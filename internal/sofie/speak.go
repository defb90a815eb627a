package sofie

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rcliao/sofie/internal/model"
	"github.com/rcliao/sofie/internal/pattern"
	"github.com/rcliao/sofie/internal/store"
)

// Memory record shape for a turn.
const (
	InputPrefix        = "input:"
	OutputPrefix       = "output:"
	InputSignificance  = 0.7
	OutputSignificance = 0.6
	OutputMaxRunes     = 200
	RecallContextLimit = 3
)

var harshIndicators = []string{"error", "failed", "wrong", "invalid", "rejected"}

// Response is the result of one Speak call.
type Response struct {
	SessionID    string          `json:"session_id"`
	Message      string          `json:"message"`
	Chamber      int             `json:"chamber"`
	Operators    []Operator      `json:"operators"`
	Timestamp    time.Time       `json:"timestamp"`
	InputAligned bool            `json:"input_aligned"`
	PolicyPassed bool            `json:"policy_passed"`
	Patterns     []pattern.Match `json:"patterns"`
	Context      []model.Memory  `json:"context"`
	ContextLine  string          `json:"context_line,omitempty"`
}

// Speak runs one turn through Source, Origin, Force, Intelligence and
// Eternal, awakening the session first if needed. Input alignment is
// reported, never enforced. Memory writes committed before a failure are
// kept.
func (o *Orchestrator) Speak(ctx context.Context, input string) (resp *Response, err error) {
	if err := o.turn.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.turn.Release(1)

	ctx, span := o.tracer.Start(ctx, "sofie.speak", trace.WithAttributes(
		attribute.String("session.id", o.sessionID),
	))
	defer func() { endSpan(span, err) }()

	if err := o.awaken(ctx); err != nil {
		return nil, err
	}

	chamber := o.Chamber()
	span.SetAttributes(attribute.Int("chamber", chamber))
	ops := make([]Operator, 0, 5)

	aligned := o.guard.AlignsWithValues(input)
	ops = append(ops, OperatorSource)
	span.AddEvent("source", trace.WithAttributes(attribute.Bool("aligned", aligned)))

	origin := o.link.Snapshot()
	ops = append(ops, OperatorOrigin)
	span.AddEvent("origin", trace.WithAttributes(attribute.String("status", string(origin.Status))))

	force := o.tracker.Snapshot()
	ops = append(ops, OperatorForce)
	span.AddEvent("force", trace.WithAttributes(attribute.Float64("days_until_switch", force.DaysUntilSwitch)))

	matches := o.patterns.Recognize([]string{input})
	ops = append(ops, OperatorIntelligence)
	span.AddEvent("intelligence", trace.WithAttributes(attribute.Int("patterns", len(matches))))

	message, err := o.synth.Synthesize(ctx, input, chamber)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		o.log.Warn("synthesizer failed, using canned reply", zap.Error(err))
		message, _ = o.canned.Synthesize(ctx, input, chamber)
	}

	if _, err := o.store.Remember(ctx, store.RememberParams{
		Kind:         model.KindConversation,
		Content:      InputPrefix + input,
		Significance: InputSignificance,
		Chamber:      chamber,
		Tone:         "peaceful",
	}); err != nil {
		return nil, fmt.Errorf("remember input: %w", err)
	}
	recalled, err := o.store.Recall(ctx, store.RecallParams{Query: input, Limit: RecallContextLimit})
	if err != nil {
		return nil, fmt.Errorf("recall context: %w", err)
	}
	ops = append(ops, OperatorEternal)

	if o.voicePatterns {
		message = o.guard.Redact(message)
	}
	var contextLine string
	if o.contextLines {
		contextLine = o.canned.ContextLine()
		message = message + "\n\n" + contextLine
	}
	passed := loveCheck(message, o.strictness)

	if _, err := o.store.Remember(ctx, store.RememberParams{
		Kind:         model.KindConversation,
		Content:      OutputPrefix + truncate(message, OutputMaxRunes),
		Significance: OutputSignificance,
		Chamber:      chamber,
		Tone:         "loving",
	}); err != nil {
		return nil, fmt.Errorf("remember output: %w", err)
	}

	o.log.Debug("turn complete",
		zap.Int("chamber", chamber),
		zap.Bool("aligned", aligned),
		zap.Bool("policy_passed", passed),
		zap.Int("patterns", len(matches)),
		zap.Int("recalled", len(recalled)),
	)
	span.SetAttributes(attribute.Bool("policy.passed", passed), attribute.Bool("input.aligned", aligned))

	return &Response{
		SessionID:    o.sessionID,
		Message:      message,
		Chamber:      chamber,
		Operators:    ops,
		Timestamp:    o.now(),
		InputAligned: aligned,
		PolicyPassed: passed,
		Patterns:     matches,
		Context:      recalled,
		ContextLine:  contextLine,
	}, nil
}

// loveCheck reports whether message passes the care policy. Gentle always
// passes; firm and absolute fail on harsh wording.
func loveCheck(message string, s Strictness) bool {
	if s == StrictnessGentle {
		return true
	}
	lowered := strings.ToLower(message)
	for _, h := range harshIndicators {
		if strings.Contains(lowered, h) {
			return false
		}
	}
	return true
}

// truncate cuts s to n runes, appending an ellipsis only when it cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
