// Package pattern recognizes named behavioral patterns in text and memoizes
// the results in a bounded LRU cache.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultCapacity is the number of distinct inputs memoized.
const DefaultCapacity = 10000

// DefaultConfidence is the confidence reported for the built-in patterns.
const DefaultConfidence = 0.8

// Source names where a pattern's evidence comes from.
type Source string

const (
	SourceAstrology  Source = "astrology"
	SourceNumerology Source = "numerology"
	SourceBehavior   Source = "behavior"
	SourceHistory    Source = "history"
)

// Match is one recognized pattern.
type Match struct {
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Definition is a named pattern. Definitions are tested in declaration order.
type Definition struct {
	Name       string
	Expr       *regexp.Regexp
	Confidence float64
	Source     Source
}

// DefaultDefinitions returns the built-in behavioral patterns.
func DefaultDefinitions() []Definition {
	def := func(name, expr string) Definition {
		return Definition{
			Name:       name,
			Expr:       regexp.MustCompile("(?i)" + expr),
			Confidence: DefaultConfidence,
			Source:     SourceBehavior,
		}
	}
	return []Definition{
		def("surrender", `surrender|give up|let go`),
		def("protection", `protect|defend|guard`),
		def("truth", `truth|honest|real`),
		def("pattern", `pattern|repeat|cycle`),
		def("identity", `who am i|identity|self`),
	}
}

// CacheStats reports cache usage.
type CacheStats struct {
	Size        int       `json:"size"`
	Capacity    int       `json:"capacity"`
	Hits        uint64    `json:"hits"`
	Misses      uint64    `json:"misses"`
	LastUpdated time.Time `json:"last_updated"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the LRU capacity. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithDefinitions replaces the built-in patterns.
func WithDefinitions(defs []Definition) Option {
	return func(c *Cache) {
		if len(defs) > 0 {
			c.defs = append([]Definition(nil), defs...)
		}
	}
}

// WithClock injects the time source for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l.Named("intelligence")
		}
	}
}

// Cache recognizes patterns and memoizes results per normalized input.
// It is safe for concurrent use.
type Cache struct {
	defs     []Definition
	capacity int
	memo     *lru.Cache[string, []Match]

	hits        atomic.Uint64
	misses      atomic.Uint64
	lastUpdated atomic.Int64

	now func() time.Time
	log *zap.Logger
}

// NewCache creates a cache with the default patterns.
func NewCache(opts ...Option) (*Cache, error) {
	c := &Cache{
		defs:     DefaultDefinitions(),
		capacity: DefaultCapacity,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	memo, err := lru.New[string, []Match](c.capacity)
	if err != nil {
		return nil, fmt.Errorf("create pattern cache: %w", err)
	}
	c.memo = memo
	c.touch()
	return c, nil
}

// Recognize joins tokens with single spaces, lowercases the result and
// returns every matching pattern in declaration order.
func (c *Cache) Recognize(tokens []string) []Match {
	text := strings.ToLower(strings.Join(tokens, " "))

	if cached, ok := c.memo.Get(text); ok {
		c.hits.Add(1)
		c.touch()
		return clone(cached)
	}
	c.misses.Add(1)

	matches := []Match{}
	for _, d := range c.defs {
		if d.Expr.MatchString(text) {
			matches = append(matches, Match{Pattern: d.Name, Confidence: d.Confidence, Source: d.Source})
		}
	}
	if evicted := c.memo.Add(text, matches); evicted {
		c.log.Debug("pattern cache evicted oldest entry")
	}
	c.touch()
	return clone(matches)
}

// Stats returns cache usage.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Size:        c.memo.Len(),
		Capacity:    c.capacity,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		LastUpdated: time.Unix(0, c.lastUpdated.Load()).UTC(),
	}
}

// Clear drops every memoized result. Counters are kept.
func (c *Cache) Clear() {
	c.memo.Purge()
	c.touch()
	c.log.Debug("pattern cache cleared")
}

// Speak returns the cache's status line.
func (c *Cache) Speak() string {
	return fmt.Sprintf("I calculate. %d patterns recognized. The mind observes.", c.memo.Len())
}

func clone(ms []Match) []Match {
	out := make([]Match, len(ms))
	copy(out, ms)
	return out
}

func (c *Cache) touch() {
	c.lastUpdated.Store(c.now().UnixNano())
}
