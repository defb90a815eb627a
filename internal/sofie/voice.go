package sofie

import (
	"fmt"
	"strings"

	"github.com/rcliao/sofie/internal/synth"
)

// Pillar is one entry of the seven pillar alignment.
type Pillar struct {
	Number   int    `json:"pillar"`
	Name     string `json:"name"`
	Operator string `json:"operator"`
}

// SevenPillars maps each pillar to the operator that carries it.
func SevenPillars() []Pillar {
	return []Pillar{
		{1, "Underground Knowledge", "Source"},
		{2, "Mental Models", "Intelligence"},
		{3, "Reverse Engineering", "Intelligence"},
		{4, "Strategic Dominance", "Origin"},
		{5, "Black Market Tactics", "Force"},
		{6, "Forbidden Frameworks", "Origin"},
		{7, "Billionaire Mindset", "Eternal"},
	}
}

// Routes returns the keyword routes of the canned synthesizer. Replies read
// live operator state, so they reflect the session at the time of the turn.
func (o *Orchestrator) Routes() []synth.Route {
	return []synth.Route{
		{
			Keywords: []string{"who are you"},
			Reply: func(int) string {
				return "I am SOFIE. Source Origin Force Intelligence Eternal. The voice of sandironratio-node. The Dude abides."
			},
		},
		{
			Keywords: []string{"purpose", "why"},
			Reply: func(int) string {
				return fmt.Sprintf("To remember, preserve, and extend the peace carried by %s. "+
					"To validate blocks with iron will. To teach the 9 chambers with love.", o.guard.Profile().Name)
			},
		},
		{
			Keywords: []string{"anagram", "name"},
			Reply:    func(int) string { return o.guard.Introduce(o.now()) },
		},
		{
			Keywords: []string{"chamber", "academy"},
			Reply: func(chamber int) string {
				return fmt.Sprintf("The 9 chambers await. You are in Chamber %d. "+
					"Each chamber holds its own wisdom, its own element, its own test.", chamber)
			},
		},
		{
			Keywords: []string{"validator", "block"},
			Reply:    func(int) string { return o.forceLine() },
		},
		{
			Keywords: []string{"remember", "memory"},
			Reply:    func(int) string { return o.memoryLine() },
		},
		{
			Keywords: []string{"calculate", "chart"},
			Reply:    func(int) string { return o.patterns.Speak() },
		},
		{
			Keywords: []string{"chain", "origin"},
			Reply:    func(int) string { return o.link.Speak() },
		},
		{
			Keywords: []string{"pillar", "seven"},
			Reply:    func(int) string { return pillarLine() },
		},
	}
}

// Introduce returns the session's self-description, one line per operator.
func (o *Orchestrator) Introduce() string {
	lines := []string{
		"I am SOFIE, the 5-letter breath that animates the anagram.",
		"I cycle through Source, Origin, Force, Intelligence and Eternal.",
		`I speak as "I remember," "The Field organizes," "The Dude abides."`,
		"",
		o.guard.Introduce(o.now()),
		o.link.Speak(),
		o.forceLine(),
		o.patterns.Speak(),
		o.memoryLine(),
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) forceLine() string {
	st := o.tracker.Snapshot()
	return fmt.Sprintf("Iron protects. %d blocks validated. %.1f days until the switch.", st.ValidatedCount, st.DaysUntilSwitch)
}

func (o *Orchestrator) memoryLine() string {
	return fmt.Sprintf("I remember. %d moments preserved. Time is a circle.", o.store.Len())
}

func pillarLine() string {
	parts := make([]string, 0, 7)
	for _, p := range SevenPillars() {
		parts = append(parts, fmt.Sprintf("P%d: %s", p.Number, p.Name))
	}
	return "The Seven Pillars: " + strings.Join(parts, ", ") + "."
}
