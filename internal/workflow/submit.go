package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"jobmate/posting-service/internal/backend"
	"jobmate/posting-service/internal/draft"
	"jobmate/posting-service/internal/events"
	"jobmate/posting-service/internal/ledger"
	"jobmate/posting-service/internal/telemetry"
)

// Outcome is what the caller shows after a submit: a notification message
// and, on success, the job record for the detail view.
type Outcome struct {
	Failed  bool            `json:"failed"`
	Message string          `json:"message"`
	JobID   string          `json:"jobId,omitempty"`
	Job     json.RawMessage `json:"job,omitempty"`
	User    draft.User      `json:"user"`
	Company draft.Company   `json:"company"`
}

// Submit sends a draft in review to the backend: an update for drafts seeded
// from an existing posting, a create otherwise. Only one submit per draft
// runs at a time; a concurrent call gets ErrSubmitInFlight and no backend
// request is made.
//
// On success the draft is marked SUBMITTED and deleted. On failure it stays
// in review, the returned Outcome carries the message to show, and the error
// wraps ErrSubmitFailed.
func (s *Service) Submit(ctx context.Context, userID, id string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()
	span.SetAttributes(telemetry.String("draft.id", id))

	d, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := submittable(d); err != nil {
		return nil, err
	}

	ok, err := s.store.AcquireSubmit(ctx, d.ID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubmitInFlight
	}
	release := func() {
		if err := s.store.ReleaseSubmit(context.WithoutCancel(ctx), id); err != nil {
			s.logger.Warn("release submit lock failed", zap.String("draftId", id), zap.Error(err))
		}
	}

	// the copy read before the lock may predate a submit that has since
	// settled; only the copy read under the lock counts
	d, err = s.load(ctx, userID, id)
	if err != nil {
		release()
		return nil, err
	}
	switch {
	case d.Stage == draft.StageSubmitted:
		release()
		return nil, ErrAlreadySubmitted
	case d.Stage != draft.StageReview, d.Submitting:
		release()
		return nil, ErrSubmitInFlight
	}

	d.Submitting = true
	d.Touch(s.now())
	if err := s.save(ctx, d); err != nil {
		release()
		return nil, err
	}

	req := draft.BuildRequest(d, s.defaults)
	span.SetAttributes(
		telemetry.String("page.state", string(d.PageState)),
		telemetry.Int("screening.questions", len(req.ScreeningQuestions)),
		telemetry.Bool("auto_reject", req.AutoRejectMustHave),
	)

	entry, err := s.ledger.Begin(ctx, ledger.Attempt{
		DraftID:        d.ID,
		UserID:         d.UserID,
		IdempotencyKey: d.IdempotencyKey,
		PageState:      string(d.PageState),
		JobID:          d.ExistingJobID,
		Payload:        req,
	})
	switch {
	case errors.Is(err, ledger.ErrAlreadySucceeded):
		s.logger.Warn("draft already submitted, discarding", zap.String("draftId", d.ID))
		if err := s.store.Delete(context.WithoutCancel(ctx), d.ID); err != nil {
			s.logger.Warn("delete submitted draft failed", zap.String("draftId", d.ID), zap.Error(err))
		}
		return nil, ErrAlreadySubmitted
	case err != nil:
		s.logger.Warn("ledger begin failed", zap.String("draftId", d.ID), zap.Error(err))
		entry = ""
	}

	var resp *backend.Response
	if d.PageState == draft.PageUpdate {
		resp, err = s.submitter.UpdateJob(ctx, d.ExistingJobID, req, d.IdempotencyKey)
	} else {
		resp, err = s.submitter.CreateJob(ctx, req, d.IdempotencyKey)
	}
	// the backend call has settled; bookkeeping must not be cut short by the
	// caller going away
	ctx = context.WithoutCancel(ctx)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return s.submitFailed(ctx, d, entry, release, err)
	}
	return s.submitSucceeded(ctx, d, entry, resp), nil
}

func (s *Service) submitFailed(ctx context.Context, d *draft.Draft, entry string, release func(), cause error) (*Outcome, error) {
	msg := DefaultFailureMessage
	var apiErr *backend.APIError
	if errors.As(cause, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	s.logger.Error("job submit failed",
		zap.String("draftId", d.ID),
		zap.String("pageState", string(d.PageState)),
		zap.Error(cause))

	if entry != "" {
		if err := s.ledger.Fail(ctx, entry, cause.Error()); err != nil {
			s.logger.Warn("ledger fail failed", zap.String("draftId", d.ID), zap.Error(err))
		}
	}

	d.Submitting = false
	d.Touch(s.now())
	if err := s.save(ctx, d); err != nil {
		s.logger.Warn("save draft after failed submit", zap.String("draftId", d.ID), zap.Error(err))
	}
	release()

	return &Outcome{
		Failed:  true,
		Message: msg,
		User:    draft.User{ID: d.UserID, Email: d.UserEmail},
		Company: d.Core.Company,
	}, fmt.Errorf("%w: %w", ErrSubmitFailed, cause)
}

func (s *Service) submitSucceeded(ctx context.Context, d *draft.Draft, entry string, resp *backend.Response) *Outcome {
	jobID := jobIDFrom(resp.Body)
	if jobID == "" {
		jobID = d.ExistingJobID
	}
	msg := resp.Message
	if msg == "" {
		msg = DefaultSuccessMessage
	}

	if entry != "" {
		if err := s.ledger.Complete(ctx, entry, jobID, msg); err != nil {
			s.logger.Warn("ledger complete failed", zap.String("draftId", d.ID), zap.Error(err))
		}
	}
	// SUBMITTED outlives a failed delete and turns later submits away.
	d.Stage = draft.StageSubmitted
	d.Submitting = false
	d.Touch(s.now())
	if err := s.save(ctx, d); err != nil {
		s.logger.Warn("mark draft submitted failed", zap.String("draftId", d.ID), zap.Error(err))
	}
	// Delete also drops the submit lock.
	if err := s.store.Delete(ctx, d.ID); err != nil {
		s.logger.Warn("delete submitted draft failed", zap.String("draftId", d.ID), zap.Error(err))
	}

	typ := events.JobPosted
	if d.PageState == draft.PageUpdate {
		typ = events.JobUpdated
	}
	if err := s.events.Publish(ctx, events.Event{
		Type:      typ,
		DraftID:   d.ID,
		JobID:     jobID,
		UserID:    d.UserID,
		CompanyID: d.Core.Company.ID,
		At:        s.now().UTC(),
	}); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", string(typ)), zap.Error(err))
	}

	s.logger.Info("job submitted",
		zap.String("draftId", d.ID),
		zap.String("jobId", jobID),
		zap.String("pageState", string(d.PageState)))

	return &Outcome{
		Message: msg,
		JobID:   jobID,
		Job:     resp.Body,
		User:    draft.User{ID: d.UserID, Email: d.UserEmail},
		Company: d.Core.Company,
	}
}

// submittable reports why d cannot be submitted, if it cannot.
func submittable(d *draft.Draft) error {
	switch d.Stage {
	case draft.StageReview:
		return nil
	case draft.StageSubmitted:
		return ErrAlreadySubmitted
	}
	return &StageError{Op: "submit", Stage: d.Stage}
}
