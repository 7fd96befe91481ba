// Package workflow drives a job-posting draft through question authoring,
// settings assembly, and review, and submits it to the job backend.
// It is transport-agnostic: used by the HTTP handler and the gRPC server.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"jobmate/posting-service/internal/backend"
	"jobmate/posting-service/internal/draft"
	"jobmate/posting-service/internal/events"
	"jobmate/posting-service/internal/ledger"
	"jobmate/posting-service/internal/screening"
	"jobmate/posting-service/internal/store"
	"jobmate/posting-service/internal/telemetry"
)

const (
	DefaultSuccessMessage = "Job posted successfully!"
	DefaultFailureMessage = "Failed to post the job."

	defaultSubmitLockTTL = 2 * time.Minute

	// attempts of a read-modify-write before giving up with ErrConflict
	maxMutateAttempts = 3
)

var tracer = telemetry.GetTracer("jobmate/posting-service/workflow")

// Submitter sends a finished draft to the job backend.
type Submitter interface {
	CreateJob(ctx context.Context, req draft.JobRequest, idempotencyKey string) (*backend.Response, error)
	UpdateJob(ctx context.Context, jobID string, req draft.JobRequest, idempotencyKey string) (*backend.Response, error)
}

// Options tune the service. Zero values fall back to defaults.
type Options struct {
	Defaults      draft.Defaults
	SubmitLockTTL time.Duration
	Now           func() time.Time
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service owns the draft lifecycle. Every operation loads the draft, applies
// one step, and saves it back.
type Service struct {
	store     store.Store
	submitter Submitter
	ledger    ledger.Recorder
	events    events.Publisher
	logger    *zap.Logger

	defaults draft.Defaults
	lockTTL  time.Duration
	now      func() time.Time
}

// NewService returns a configured Service.
func NewService(st store.Store, sub Submitter, rec ledger.Recorder, pub events.Publisher, logger *zap.Logger, opts Options) *Service {
	s := &Service{
		store:     st,
		submitter: sub,
		ledger:    rec,
		events:    pub,
		logger:    logger,
		defaults:  opts.Defaults,
		lockTTL:   opts.SubmitLockTTL,
		now:       opts.Now,
	}
	if s.defaults == (draft.Defaults{}) {
		s.defaults = draft.DefaultDefaults()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultSubmitLockTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ledger == nil {
		s.ledger = ledger.Nop{}
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

// ─── Entry points ────────────────────────────────────────────────────────────

// Start opens a create draft from the job form shape in raw.
func (s *Service) Start(ctx context.Context, user draft.User, raw []byte) (*draft.Draft, error) {
	n, err := draft.Normalize(raw)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	d := draft.New(user, n.Core, s.now())
	if err := s.store.Save(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("draft started", zap.String("draftId", d.ID), zap.String("userId", user.ID))
	return d, nil
}

// StartUpdate opens an update draft for posting jobID from its current shape.
func (s *Service) StartUpdate(ctx context.Context, user draft.User, jobID string, raw []byte) (*draft.Draft, error) {
	if jobID == "" {
		return nil, &ValidationError{Msg: "job id is required"}
	}
	n, err := draft.Normalize(raw)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	d := draft.Seed(user, jobID, n, s.now())
	if err := s.store.Save(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("update draft started",
		zap.String("draftId", d.ID),
		zap.String("jobId", jobID),
		zap.String("userId", user.ID))
	return d, nil
}

// Get returns draft id if it belongs to userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*draft.Draft, error) {
	return s.load(ctx, userID, id)
}

// Catalog returns the question catalog annotated for draft id.
func (s *Service) Catalog(ctx context.Context, userID, id string) ([]screening.EntryView, error) {
	d, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return d.Questions.CatalogView(), nil
}

// ─── Question authoring ──────────────────────────────────────────────────────

// SelectQuestion appends an empty question of archetype a.
func (s *Service) SelectQuestion(ctx context.Context, userID, id string, a screening.Archetype) (screening.Question, error) {
	var q screening.Question
	_, err := s.mutate(ctx, userID, id, func(d *draft.Draft) error {
		if !draft.QuestionsEditable(d.Stage) {
			return &StageError{Op: "select question", Stage: d.Stage}
		}
		var err error
		q, err = d.Questions.Select(a, s.now())
		if err != nil && !errors.Is(err, screening.ErrAlreadyAdded) {
			return &ValidationError{Msg: err.Error()}
		}
		return err
	})
	return q, err
}

// UpdateQuestion merges p into question qid.
func (s *Service) UpdateQuestion(ctx context.Context, userID, id, qid string, p screening.Patch) (screening.Question, error) {
	var q screening.Question
	_, err := s.mutate(ctx, userID, id, func(d *draft.Draft) error {
		if !draft.QuestionsEditable(d.Stage) {
			return &StageError{Op: "update question", Stage: d.Stage}
		}
		var err error
		q, err = d.Questions.Update(qid, p)
		if err != nil && !errors.Is(err, screening.ErrQuestionNotFound) {
			return &ValidationError{Msg: err.Error()}
		}
		return err
	})
	return q, err
}

// RemoveQuestion drops question qid. Unknown ids are ignored.
func (s *Service) RemoveQuestion(ctx context.Context, userID, id, qid string) (*draft.Draft, error) {
	return s.mutate(ctx, userID, id, func(d *draft.Draft) error {
		if !draft.QuestionsEditable(d.Stage) {
			return &StageError{Op: "remove question", Stage: d.Stage}
		}
		d.Questions.Remove(qid)
		return nil
	})
}

// SetMustHave sets the must-have flag of question qid.
func (s *Service) SetMustHave(ctx context.Context, userID, id, qid string, mustHave bool) (screening.Question, error) {
	var q screening.Question
	_, err := s.mutate(ctx, userID, id, func(d *draft.Draft) error {
		if !draft.QuestionsEditable(d.Stage) {
			return &StageError{Op: "set must-have", Stage: d.Stage}
		}
		var err error
		q, err = d.Questions.SetMustHave(qid, mustHave)
		return err
	})
	return q, err
}

// ─── Settings assembly ───────────────────────────────────────────────────────

// EditGroup puts one settings group in edit mode.
func (s *Service) EditGroup(ctx context.Context, userID, id string, group int) (*draft.Draft, error) {
	return s.assembly(ctx, userID, id, "edit settings", func(d *draft.Draft) error {
		if err := d.Panel.Edit(group); err != nil {
			return &ValidationError{Msg: err.Error()}
		}
		return nil
	})
}

// CancelEdit discards the edits of the group in edit mode.
func (s *Service) CancelEdit(ctx context.Context, userID, id string) (*draft.Draft, error) {
	return s.assembly(ctx, userID, id, "cancel edit", func(d *draft.Draft) error {
		d.Panel.Cancel()
		return nil
	})
}

// SaveGroup keeps the edits of the group in edit mode.
func (s *Service) SaveGroup(ctx context.Context, userID, id string) (*draft.Draft, error) {
	return s.assembly(ctx, userID, id, "save settings", func(d *draft.Draft) error {
		d.Panel.Save()
		return nil
	})
}

// SetRejection edits the panel's rejection settings. Nil arguments are left
// alone. The message is cut to draft.MaxRejectionMessage characters; the
// returned bool reports whether that happened.
func (s *Service) SetRejection(ctx context.Context, userID, id string, enabled *bool, message *string) (*draft.Draft, bool, error) {
	var truncated bool
	d, err := s.assembly(ctx, userID, id, "edit rejection settings", func(d *draft.Draft) error {
		if enabled != nil {
			d.Panel.Rejection.Enabled = *enabled
		}
		if message != nil {
			truncated = d.Panel.Rejection.SetMessage(*message)
		}
		return nil
	})
	return d, truncated, err
}

// SetApplicantEmail edits the panel's notification address. An empty address
// resets it to the account email.
func (s *Service) SetApplicantEmail(ctx context.Context, userID, id, email string) (*draft.Draft, error) {
	addr, err := draft.ValidateEmail(email)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	return s.assembly(ctx, userID, id, "edit applicant settings", func(d *draft.Draft) error {
		if addr == "" {
			addr = d.UserEmail
		}
		d.Panel.Applicant.EmailUpdates = addr
		return nil
	})
}

func (s *Service) assembly(ctx context.Context, userID, id, op string, fn func(*draft.Draft) error) (*draft.Draft, error) {
	return s.mutate(ctx, userID, id, func(d *draft.Draft) error {
		if d.Stage != draft.StageAssembly {
			return &StageError{Op: op, Stage: d.Stage}
		}
		return fn(d)
	})
}

// ─── Navigation ──────────────────────────────────────────────────────────────

// Continue advances the draft one stage. Leaving assembly freezes the panel
// settings into the draft.
func (s *Service) Continue(ctx context.Context, userID, id string) (*draft.Draft, error) {
	return s.mutate(ctx, userID, id, func(d *draft.Draft) error {
		next, ok := draft.Next(d.Stage)
		if !ok || !draft.IsTransitionAllowed(d.Stage, next) {
			return &StageError{Op: "continue", Stage: d.Stage}
		}
		if d.Stage == draft.StageAssembly {
			d.Freeze()
		}
		d.Stage = next
		return nil
	})
}

// Back returns the draft to the previous stage, keeping everything entered.
func (s *Service) Back(ctx context.Context, userID, id string) (*draft.Draft, error) {
	return s.mutate(ctx, userID, id, func(d *draft.Draft) error {
		prev, ok := draft.Prev(d.Stage)
		if !ok || !draft.IsTransitionAllowed(d.Stage, prev) {
			return &StageError{Op: "back", Stage: d.Stage}
		}
		d.Stage = prev
		return nil
	})
}

// Review returns the read-only projection of a draft in review.
func (s *Service) Review(ctx context.Context, userID, id string) (draft.Review, error) {
	d, err := s.load(ctx, userID, id)
	if err != nil {
		return draft.Review{}, err
	}
	if d.Stage != draft.StageReview {
		return draft.Review{}, &StageError{Op: "review", Stage: d.Stage}
	}
	return draft.Projection(d), nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Service) load(ctx context.Context, userID, id string) (*draft.Draft, error) {
	d, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, ErrNotFound
	}
	return d, nil
}

// mutate applies fn to the stored draft and saves it. A draft with a submit
// in flight is read-only. A save that lost a race with another request is
// retried on a fresh copy.
func (s *Service) mutate(ctx context.Context, userID, id string, fn func(*draft.Draft) error) (*draft.Draft, error) {
	for attempt := 1; ; attempt++ {
		d, err := s.load(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if d.Submitting {
			if err := s.clearStaleSubmit(ctx, d); err != nil {
				return nil, err
			}
		}
		if err := fn(d); err != nil {
			return nil, err
		}
		d.Touch(s.now())
		err = s.save(ctx, d)
		if errors.Is(err, ErrConflict) && attempt < maxMutateAttempts {
			s.logger.Debug("draft changed concurrently, retrying",
				zap.String("draftId", id), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// save writes d back, translating store sentinels.
func (s *Service) save(ctx context.Context, d *draft.Draft) error {
	err := s.store.Save(ctx, d)
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	}
	return err
}

// clearStaleSubmit resets a Submitting flag left behind by a submit whose
// lock has since expired.
func (s *Service) clearStaleSubmit(ctx context.Context, d *draft.Draft) error {
	ok, err := s.store.AcquireSubmit(ctx, d.ID, s.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSubmitInFlight
	}
	if err := s.store.ReleaseSubmit(ctx, d.ID); err != nil {
		s.logger.Warn("release submit lock failed", zap.String("draftId", d.ID), zap.Error(err))
	}
	s.logger.Warn("clearing stale submitting flag", zap.String("draftId", d.ID))
	d.Submitting = false
	return nil
}

// jobIDFrom finds the posting id in an opaque backend response.
func jobIDFrom(body json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, k := range []string{"_id", "id", "jobId"} {
		var s string
		if err := json.Unmarshal(m[k], &s); err == nil && s != "" {
			return s
		}
	}
	if nested, ok := m["job"]; ok {
		return jobIDFrom(nested)
	}
	return ""
}
