// Package model defines the core memory data types.
package model

import "time"

// Kind classifies a memory record.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindRitual       Kind = "ritual"
	KindInsight      Kind = "insight"
	KindPattern      Kind = "pattern"
)

// Memory represents a stored memory record.
type Memory struct {
	ID           string            `json:"id"`
	Kind         Kind              `json:"kind"`
	Content      string            `json:"content"`
	Chamber      int               `json:"chamber,omitempty"`
	Tone         string            `json:"tone,omitempty"`
	Significance float64           `json:"significance"`
	CreatedAt    time.Time         `json:"created_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no mutable state with m.
func (m Memory) Clone() Memory {
	if m.Metadata != nil {
		meta := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		m.Metadata = meta
	}
	return m
}

// ValidKinds are the allowed memory kinds.
var ValidKinds = map[Kind]bool{
	KindConversation: true,
	KindRitual:       true,
	KindInsight:      true,
	KindPattern:      true,
}

// Chamber bounds.
const (
	MinChamber = 1
	MaxChamber = 9
)

// ValidChamber reports whether n names one of the nine chambers.
func ValidChamber(n int) bool {
	return n >= MinChamber && n <= MaxChamber
}
