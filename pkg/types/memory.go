package types

import "time"

// MemoryKind classifies a long-term memory note.
type MemoryKind string

// Memory kind constants
const (
	MemoryPreference MemoryKind = "preference" // how the operator likes things done
	MemoryFact       MemoryKind = "fact"       // stable fact about the business
	MemoryGoal       MemoryKind = "goal"       // stated objective
	MemoryCorrection MemoryKind = "correction" // supersedes an earlier note
)

// ValidMemoryKinds lists all accepted memory kinds.
var ValidMemoryKinds = []MemoryKind{
	MemoryPreference,
	MemoryFact,
	MemoryGoal,
	MemoryCorrection,
}

// IsValidMemoryKind reports whether k is one of ValidMemoryKinds.
func IsValidMemoryKind(k MemoryKind) bool {
	for _, valid := range ValidMemoryKinds {
		if k == valid {
			return true
		}
	}
	return false
}

// MemoryRecord is a short factual note about an operator with an importance
// score. Records are immutable once written; corrections are new records
// whose Context references the superseded record.
type MemoryRecord struct {
	ID              string     `json:"id"`
	OperatorID      string     `json:"operator_id"`
	Kind            MemoryKind `json:"kind"`
	Content         string     `json:"content"`
	ImportanceScore int        `json:"importance_score"` // 0..100
	Context         string     `json:"context,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
