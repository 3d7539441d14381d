package core

// MaxCandidates bounds a single fan-out: candidate ids are single letters.
const MaxCandidates = 26

// Candidate is one fan-out generation result. IDs are sequential letters
// (A, B, C, ...) assigned in request order so selection stays deterministic
// regardless of which generation slot finishes first.
type Candidate struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// CandidateID returns the letter id for the i-th requested slot (0-based).
// Panics if i is outside [0, MaxCandidates).
func CandidateID(i int) string {
	if i < 0 || i >= MaxCandidates {
		panic("candidate index out of range")
	}
	return string(rune('A' + i))
}
