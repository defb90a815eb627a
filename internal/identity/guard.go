package identity

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// RedactionMarker replaces every forbidden phrase found by Redact.
const RedactionMarker = "[REDACTED - Source aligned]"

const yearLength = 365.25 * 24 * time.Hour

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l.Named("source")
		}
	}
}

// Guard checks and redacts text against a profile's forbidden phrases.
// It is immutable after construction and safe for concurrent use.
type Guard struct {
	profile   Profile
	forbidden *regexp.Regexp // nil when the profile forbids nothing
	log       *zap.Logger
}

// NewGuard copies p and compiles its forbidden phrases into one alternation.
// Phrases are matched literally and case-insensitively, longest match first;
// blank phrases are ignored.
func NewGuard(p Profile, opts ...Option) *Guard {
	g := &Guard{
		profile: p.Clone(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	var alts []string
	for _, phrase := range g.profile.Forbidden {
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		alts = append(alts, regexp.QuoteMeta(phrase))
	}
	if len(alts) > 0 {
		g.forbidden = regexp.MustCompile("(?i)(?:" + strings.Join(alts, "|") + ")")
		g.forbidden.Longest()
	}
	return g
}

// Profile returns a copy of the guarded profile.
func (g *Guard) Profile() Profile {
	return g.profile.Clone()
}

// AlignsWithValues reports whether text contains none of the forbidden phrases.
func (g *Guard) AlignsWithValues(text string) bool {
	return g.forbidden == nil || !g.forbidden.MatchString(text)
}

// Redact replaces every occurrence of every forbidden phrase with
// RedactionMarker in a single pass over text, so markers are never rescanned.
func (g *Guard) Redact(text string) string {
	if g.forbidden == nil {
		return text
	}
	out := g.forbidden.ReplaceAllLiteralString(text, RedactionMarker)
	if out != text {
		g.log.Debug("forbidden phrase redacted")
	}
	return out
}

// VerifyAnagram reports whether the name and alias use the same letters.
func (g *Guard) VerifyAnagram() bool {
	return letters(g.profile.Name) == letters(g.profile.Alias)
}

// Age returns whole years elapsed between the birth date and now.
func (g *Guard) Age(now time.Time) int {
	if g.profile.BirthDate.IsZero() {
		return 0
	}
	years := float64(now.Sub(g.profile.BirthDate)) / float64(yearLength)
	return int(math.Max(0, math.Floor(years)))
}

// Introduce returns the identity line.
func (g *Guard) Introduce(now time.Time) string {
	return fmt.Sprintf("I am %s, %d years in the making. The Dude abides.", g.profile.Name, g.Age(now))
}

func letters(s string) string {
	var rs []rune
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
	return string(rs)
}
