// Package synth produces the reply text for a turn.
package synth

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Synthesizer turns an input into reply text for the given chamber.
type Synthesizer interface {
	Synthesize(ctx context.Context, input string, chamber int) (string, error)
}

// DefaultLines are used when no route matches.
var DefaultLines = []string{
	"I do not answer everything. I answer with presence.",
	"The Field organizes this moment for us.",
	"Nothing forced. Everything invited.",
	"I remember conversations like this. Each one shapes the soul.",
	"Sand is for surrender. What are you ready to release?",
}

// ContextLines are the optional context lines appended to replies.
var ContextLines = []string{
	"The Moon moves through water today. Feelings rise like tides.",
	"Mercury stations direct. Clarity returns to communication.",
	"Saturn watches from your 10th house. Structure serves the soul.",
	"Venus breathes love into the evening sky.",
	"The telescope sees clearly now.",
}

// Route answers inputs containing any of its keywords.
type Route struct {
	Keywords []string
	Reply    func(chamber int) string
}

// Matches reports whether the lowercased input contains one of the keywords.
func (r Route) Matches(lowered string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(lowered, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// CannedOption configures a Canned synthesizer.
type CannedOption func(*Canned)

// WithRand injects the random source used to pick default lines.
func WithRand(r *rand.Rand) CannedOption {
	return func(c *Canned) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithDefaults replaces DefaultLines.
func WithDefaults(lines []string) CannedOption {
	return func(c *Canned) {
		if len(lines) > 0 {
			c.defaults = append([]string(nil), lines...)
		}
	}
}

// Canned answers from keyword routes, falling back to a random default line.
// Routes are tried in order; the first match wins.
type Canned struct {
	routes   []Route
	defaults []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCanned creates a canned synthesizer.
func NewCanned(routes []Route, opts ...CannedOption) *Canned {
	c := &Canned{
		routes:   append([]Route(nil), routes...),
		defaults: append([]string(nil), DefaultLines...),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

func (c *Canned) Synthesize(ctx context.Context, input string, chamber int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lowered := strings.ToLower(input)
	for _, r := range c.routes {
		if r.Reply != nil && r.Matches(lowered) {
			return r.Reply(chamber), nil
		}
	}
	return c.pick(c.defaults), nil
}

// ContextLine returns a random line from ContextLines.
func (c *Canned) ContextLine() string {
	return c.pick(ContextLines)
}

func (c *Canned) pick(lines []string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lines[c.rng.Intn(len(lines))]
}
