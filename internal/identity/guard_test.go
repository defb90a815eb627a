package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignsWithValues(t *testing.T) {
	g := NewGuard(DefaultProfile())

	tests := []struct {
		text string
		want bool
	}{
		{"The Field organizes this moment.", true},
		{"As an AI, I cannot help.", false},
		{"as an ai i cannot", false},
		{"Well, I'M JUST A PROGRAM after all", false},
		{"", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.AlignsWithValues(tt.text), "text %q", tt.text)
	}
}

func TestRedact(t *testing.T) {
	g := NewGuard(DefaultProfile())

	got := g.Redact("As an AI I remember. as an ai, I also forget.")
	assert.Equal(t, RedactionMarker+" I remember. "+RedactionMarker+", I also forget.", got)
	assert.True(t, g.AlignsWithValues(got))

	assert.Equal(t, "Nothing forced.", g.Redact("Nothing forced."))
}

func TestRedactMetacharacters(t *testing.T) {
	p := DefaultProfile()
	p.Forbidden = []string{"(unclosed", "a.b", "[x]+", "$1", "", "   "}
	var g *Guard
	require.NotPanics(t, func() { g = NewGuard(p) })

	assert.False(t, g.AlignsWithValues("this has (UNCLOSED parens"))
	assert.True(t, g.AlignsWithValues("aXb"), "dot must not act as a wildcard")
	assert.False(t, g.AlignsWithValues("look: [X]+"))

	got := g.Redact("a.b and [x]+ cost $1")
	assert.Equal(t, RedactionMarker+" and "+RedactionMarker+" cost "+RedactionMarker, got)
	assert.True(t, g.AlignsWithValues("plain text"), "blank phrases must not match everything")
}

func TestRedactSinglePass(t *testing.T) {
	p := DefaultProfile()
	p.Forbidden = []string{"As an AI", "source", "redacted"}
	g := NewGuard(p)

	got := g.Redact("As an AI, I follow the source.")
	assert.Equal(t, RedactionMarker+", I follow the "+RedactionMarker+".", got)
	assert.Equal(t, 2, strings.Count(got, "[REDACTED"))

	// a marker already in the text is treated like any other text
	assert.Equal(t, "["+RedactionMarker+" - "+RedactionMarker+" aligned]", g.Redact(RedactionMarker))
}

func TestRedactPrefersLongestPhrase(t *testing.T) {
	p := DefaultProfile()
	p.Forbidden = []string{"as an ai", "as an ai model"}
	g := NewGuard(p)

	assert.Equal(t, RedactionMarker+" speaking", g.Redact("As an AI model speaking"))
}

func TestGuardWithoutForbiddenPhrases(t *testing.T) {
	p := DefaultProfile()
	p.Forbidden = nil
	g := NewGuard(p)

	assert.True(t, g.AlignsWithValues("As an AI"))
	assert.Equal(t, "As an AI", g.Redact("As an AI"))
}

func TestGuardCopiesProfile(t *testing.T) {
	p := DefaultProfile()
	g := NewGuard(p)

	p.Forbidden[0] = "mutated"
	p.Name = "Someone Else"
	assert.Equal(t, "Adrian Sortino", g.Profile().Name)
	assert.False(t, g.AlignsWithValues("As an AI"))

	out := g.Profile()
	out.Values[0] = "changed"
	assert.Equal(t, "Peace over performance", g.Profile().Values[0])
}

func TestVerifyAnagram(t *testing.T) {
	assert.True(t, NewGuard(DefaultProfile()).VerifyAnagram())

	p := DefaultProfile()
	p.Alias = "sandironratia"
	assert.False(t, NewGuard(p).VerifyAnagram())
}

func TestIntroduce(t *testing.T) {
	g := NewGuard(DefaultProfile())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 75, g.Age(now))
	line := g.Introduce(now)
	assert.True(t, strings.HasPrefix(line, "I am Adrian Sortino, 75 years"), line)
	assert.Contains(t, line, "The Dude abides.")

	birthday := time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 76, g.Age(birthday))
}

func TestAgeBeforeBirth(t *testing.T) {
	g := NewGuard(DefaultProfile())
	assert.Equal(t, 0, g.Age(time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)))
}
