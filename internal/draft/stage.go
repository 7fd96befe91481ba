// Package draft holds the job-posting draft threaded through the posting
// workflow, and the stage machine that governs it.
//
// Valid stage graph:
//
//	AUTHORING ◄──► ASSEMBLY ◄──► REVIEW ──► SUBMITTED
//
// SUBMITTED is terminal: a successful submit marks the draft before deleting
// it, so a draft that outlives the delete is closed. A fresh draft starts in
// AUTHORING; a draft seeded from an existing posting starts in ASSEMBLY.
package draft

import "fmt"

// Stage is the workflow position of a draft.
type Stage string

const (
	StageAuthoring Stage = "AUTHORING"
	StageAssembly  Stage = "ASSEMBLY"
	StageReview    Stage = "REVIEW"
	StageSubmitted Stage = "SUBMITTED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Stage][]Stage{
	StageAuthoring: {StageAssembly},
	StageAssembly:  {StageAuthoring, StageReview},
	StageReview:    {StageAssembly, StageSubmitted},
	// SUBMITTED is terminal
}

// ParseStage converts a raw string to a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	switch st {
	case StageAuthoring, StageAssembly, StageReview, StageSubmitted:
		return st, nil
	}
	return "", fmt.Errorf("unknown workflow stage %q", s)
}

// IsTransitionAllowed reports whether from → to is an edge of the stage graph.
func IsTransitionAllowed(from, to Stage) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the forward neighbour of s, if any.
func Next(s Stage) (Stage, bool) {
	switch s {
	case StageAuthoring:
		return StageAssembly, true
	case StageAssembly:
		return StageReview, true
	}
	return "", false
}

// Prev returns the backward neighbour of s, if any.
func Prev(s Stage) (Stage, bool) {
	switch s {
	case StageAssembly:
		return StageAuthoring, true
	case StageReview:
		return StageAssembly, true
	}
	return "", false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Stage) bool { return len(validTransitions[s]) == 0 }

// QuestionsEditable reports whether the screening questions may change in s.
func QuestionsEditable(s Stage) bool { return s == StageAuthoring || s == StageAssembly }
