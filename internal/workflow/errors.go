package workflow

import (
	"errors"
	"fmt"

	"jobmate/posting-service/internal/draft"
	"jobmate/posting-service/internal/screening"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a draft is missing, expired, or owned by
// another user.
var ErrNotFound = errors.New("draft not found")

// ErrQuestionNotFound is returned for an unknown question id on a draft.
var ErrQuestionNotFound = screening.ErrQuestionNotFound

// ErrSubmitInFlight is returned while another submit of the same draft has
// not settled.
var ErrSubmitInFlight = errors.New("submit already in progress")

// ErrAlreadySubmitted is returned when the draft is marked SUBMITTED or its
// idempotency key already produced a posting.
var ErrAlreadySubmitted = errors.New("draft already submitted")

// ErrConflict is returned when concurrent edits kept overwriting the draft
// and the change could not be applied.
var ErrConflict = errors.New("draft was changed by another request")

// ErrSubmitFailed wraps a rejected or unreachable backend call. The draft is
// left in review and may be submitted again.
var ErrSubmitFailed = errors.New("submit failed")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// StageError is returned when an operation is not available in the draft's
// current stage.
type StageError struct {
	Op    string
	Stage draft.Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s is not allowed in stage %s", e.Op, e.Stage)
}
