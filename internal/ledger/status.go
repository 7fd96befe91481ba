// Package ledger records every submit attempt in PostgreSQL.
//
// Valid status graph:
//
//	PENDING ──► SUCCEEDED
//	   │
//	   ├──────► FAILED ────► PENDING (retry with the same idempotency key)
//	   │
//	   └──────► ABANDONED ─► PENDING (reaped: the process died mid-submit)
//
// SUCCEEDED is terminal.
package ledger

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusAbandoned Status = "ABANDONED"
)

var validTransitions = map[Status][]Status{
	StatusPending:   {StatusSucceeded, StatusFailed, StatusAbandoned},
	StatusFailed:    {StatusPending},
	StatusAbandoned: {StatusPending},
	// SUCCEEDED is terminal
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusSucceeded, StatusFailed, StatusAbandoned:
		return st, nil
	}
	return "", fmt.Errorf("unknown submission status %q", s)
}

func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool { return len(validTransitions[s]) == 0 }
