package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"jobmate/posting-service/internal/backend"
	"jobmate/posting-service/internal/draft"
	"jobmate/posting-service/internal/events"
	"jobmate/posting-service/internal/ledger"
	"jobmate/posting-service/internal/screening"
	"jobmate/posting-service/internal/store"
	"jobmate/posting-service/internal/workflow"
)

// ── Fakes ──────────────────────────────────────────────────────────────────

type call struct {
	method string
	jobID  string
	req    draft.JobRequest
	key    string
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []call
	resp  *backend.Response
	err   error

	entered chan struct{} // optional: signalled when a call starts
	gate    chan struct{} // optional: call blocks until closed
}

func (f *fakeSubmitter) record(c call) (*backend.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.resp, f.err
}

func (f *fakeSubmitter) CreateJob(_ context.Context, req draft.JobRequest, key string) (*backend.Response, error) {
	return f.record(call{method: "create", req: req, key: key})
}

func (f *fakeSubmitter) UpdateJob(_ context.Context, jobID string, req draft.JobRequest, key string) (*backend.Response, error) {
	return f.record(call{method: "update", jobID: jobID, req: req, key: key})
}

func (f *fakeSubmitter) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeLedger struct {
	mu       sync.Mutex
	begun    []ledger.Attempt
	status   map[string]ledger.Status
	beginErr error
}

func (l *fakeLedger) Begin(_ context.Context, a ledger.Attempt) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.beginErr != nil {
		return "", l.beginErr
	}
	l.begun = append(l.begun, a)
	if l.status == nil {
		l.status = map[string]ledger.Status{}
	}
	l.status[a.IdempotencyKey] = ledger.StatusPending
	return a.IdempotencyKey, nil
}

func (l *fakeLedger) Complete(_ context.Context, id, _, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[id] = ledger.StatusSucceeded
	return nil
}

func (l *fakeLedger) Fail(_ context.Context, id, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[id] = ledger.StatusFailed
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type holdKey struct{}

// hold pauses the first store read made under its context until released.
type hold struct {
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func newHold() *hold {
	return &hold{reached: make(chan struct{}), release: make(chan struct{})}
}

func (h *hold) ctx(parent context.Context) context.Context {
	return context.WithValue(parent, holdKey{}, h)
}

// holdingStore returns what it read before pausing, so the caller resumes
// with a copy that may be stale.
type holdingStore struct{ *store.Memory }

func (st holdingStore) Get(ctx context.Context, id string) (*draft.Draft, error) {
	d, err := st.Memory.Get(ctx, id)
	if h, ok := ctx.Value(holdKey{}).(*hold); ok {
		h.once.Do(func() {
			close(h.reached)
			<-h.release
		})
	}
	return d, err
}

// racingStore loses every save to a concurrent writer.
type racingStore struct {
	*store.Memory
	saves int
}

func (st *racingStore) Save(context.Context, *draft.Draft) error {
	st.saves++
	return store.ErrConflict
}

// stuckStore cannot delete drafts.
type stuckStore struct{ *store.Memory }

func (stuckStore) Delete(context.Context, string) error { return errors.New("redis: connection pool timeout") }

// ── Suite ──────────────────────────────────────────────────────────────────

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const jobForm = `{"title":"Backend Engineer","companyData":{"company":{"_id":"c-42","name":"Acme"}},"jobType":"Full-time","location":"Berlin"}`

type ServiceSuite struct {
	suite.Suite
	ctx   context.Context
	store *store.Memory
	sub   *fakeSubmitter
	led   *fakeLedger
	pub   *fakePublisher
	svc   *workflow.Service
	user  draft.User
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory(0)
	s.sub = &fakeSubmitter{resp: &backend.Response{
		Status:  201,
		Message: "Job created",
		Body:    json.RawMessage(`{"message":"Job created","job":{"_id":"j-9"}}`),
	}}
	s.led = &fakeLedger{}
	s.pub = &fakePublisher{}
	s.user = draft.User{ID: "user-1", Email: "alice@acme.io"}
	s.svc = workflow.NewService(s.store, s.sub, s.led, s.pub, zap.NewNop(), workflow.Options{
		Now: func() time.Time { return t0 },
	})
}

// over returns a service sharing the suite's fakes on top of st.
func (s *ServiceSuite) over(st store.Store) *workflow.Service {
	return workflow.NewService(st, s.sub, s.led, s.pub, zap.NewNop(), workflow.Options{
		Now: func() time.Time { return t0 },
	})
}

func (s *ServiceSuite) start() *draft.Draft {
	d, err := s.svc.Start(s.ctx, s.user, []byte(jobForm))
	s.Require().NoError(err)
	return d
}

// toReview walks a fresh draft to the review stage.
func (s *ServiceSuite) toReview(id string) {
	_, err := s.svc.Continue(s.ctx, s.user.ID, id)
	s.Require().NoError(err)
	_, err = s.svc.Continue(s.ctx, s.user.ID, id)
	s.Require().NoError(err)
}

// ── Start ──────────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestStart_NormalizesAndPersists() {
	d := s.start()
	s.Equal(draft.StageAuthoring, d.Stage)
	s.Equal("c-42", d.Core.Company.ID)
	s.Equal("Acme", d.Core.Company.Name)

	got, err := s.svc.Get(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(d.ID, got.ID)
}

func (s *ServiceSuite) TestStart_RejectsUnusableShape() {
	_, err := s.svc.Start(s.ctx, s.user, []byte(`{"title":"no company"}`))
	var ve *workflow.ValidationError
	s.True(errors.As(err, &ve))
}

func (s *ServiceSuite) TestStartUpdate_SeedsAssembly() {
	d, err := s.svc.StartUpdate(s.ctx, s.user, "abc123", []byte(`{"title":"T","company":{"_id":"c"}}`))
	s.Require().NoError(err)
	s.Equal(draft.StageAssembly, d.Stage)
	s.Equal(draft.PageUpdate, d.PageState)
	s.Equal(1, d.Questions.Len())

	_, err = s.svc.StartUpdate(s.ctx, s.user, "", []byte(`{"title":"T","companyId":"c"}`))
	s.Error(err)
}

func (s *ServiceSuite) TestGet_OtherUsersDraftIsNotFound() {
	d := s.start()
	_, err := s.svc.Get(s.ctx, "intruder", d.ID)
	s.ErrorIs(err, workflow.ErrNotFound)
	_, err = s.svc.Get(s.ctx, s.user.ID, "missing")
	s.ErrorIs(err, workflow.ErrNotFound)
}

// ── Authoring ──────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestSelectQuestion_ExclusiveArchetype() {
	d := s.start()
	_, err := s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, screening.Education)
	s.Require().NoError(err)
	_, err = s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, screening.Education)
	s.ErrorIs(err, screening.ErrAlreadyAdded)

	cat, err := s.svc.Catalog(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	for _, e := range cat {
		if e.ID == screening.Education {
			s.False(e.Selectable)
		}
	}
	got, _ := s.svc.Get(s.ctx, s.user.ID, d.ID)
	s.Equal(1, got.Questions.Len())
}

func (s *ServiceSuite) TestSelectQuestion_UnknownArchetype() {
	d := s.start()
	_, err := s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, "salary")
	var ve *workflow.ValidationError
	s.True(errors.As(err, &ve))
}

func (s *ServiceSuite) TestUpdateQuestion_Errors() {
	d := s.start()
	q, _ := s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, screening.Education)

	years := 2
	_, err := s.svc.UpdateQuestion(s.ctx, s.user.ID, d.ID, q.ID, screening.Patch{Years: &years})
	var ve *workflow.ValidationError
	s.True(errors.As(err, &ve))

	_, err = s.svc.UpdateQuestion(s.ctx, s.user.ID, d.ID, "nope", screening.Patch{})
	s.ErrorIs(err, workflow.ErrQuestionNotFound)
}

func (s *ServiceSuite) TestQuestionsFrozenInReview() {
	d := s.start()
	s.toReview(d.ID)

	_, err := s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, screening.DrugTest)
	var se *workflow.StageError
	s.True(errors.As(err, &se))
	s.Equal(draft.StageReview, se.Stage)
}

// ── Assembly ───────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestSettingsOnlyInAssembly() {
	d := s.start()
	_, err := s.svc.EditGroup(s.ctx, s.user.ID, d.ID, draft.GroupRejection)
	var se *workflow.StageError
	s.True(errors.As(err, &se), "authoring has no settings panel")
}

func (s *ServiceSuite) TestSetRejection_TruncatesAndFreezesOnContinue() {
	d := s.start()
	_, _ = s.svc.Continue(s.ctx, s.user.ID, d.ID)

	enabled := true
	long := strings.Repeat("x", draft.MaxRejectionMessage+1)
	got, truncated, err := s.svc.SetRejection(s.ctx, s.user.ID, d.ID, &enabled, &long)
	s.Require().NoError(err)
	s.True(truncated)
	s.Len(got.Panel.Rejection.Message, draft.MaxRejectionMessage)
	s.False(got.Rejection.Enabled, "not frozen yet")

	got, err = s.svc.Continue(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(draft.StageReview, got.Stage)
	s.True(got.Rejection.Enabled)
}

func (s *ServiceSuite) TestEditCancelRestores() {
	d := s.start()
	_, _ = s.svc.Continue(s.ctx, s.user.ID, d.ID)

	_, err := s.svc.EditGroup(s.ctx, s.user.ID, d.ID, draft.GroupApplicants)
	s.Require().NoError(err)
	_, err = s.svc.SetApplicantEmail(s.ctx, s.user.ID, d.ID, "hr@acme.io")
	s.Require().NoError(err)
	got, err := s.svc.CancelEdit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal("alice@acme.io", got.Panel.Applicant.EmailUpdates)
	s.Equal(draft.GroupNone, got.Panel.Editing)
}

func (s *ServiceSuite) TestSetApplicantEmail() {
	d := s.start()
	_, _ = s.svc.Continue(s.ctx, s.user.ID, d.ID)

	_, err := s.svc.SetApplicantEmail(s.ctx, s.user.ID, d.ID, "not an email")
	var ve *workflow.ValidationError
	s.True(errors.As(err, &ve))

	got, err := s.svc.SetApplicantEmail(s.ctx, s.user.ID, d.ID, "")
	s.Require().NoError(err)
	s.Equal("alice@acme.io", got.Panel.Applicant.EmailUpdates, "empty resets to account email")
}

// ── Navigation ─────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestBackPreservesDraft() {
	d := s.start()
	q, _ := s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, screening.Language)
	s.toReview(d.ID)

	got, err := s.svc.Back(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(draft.StageAssembly, got.Stage)
	got, err = s.svc.Back(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(draft.StageAuthoring, got.Stage)
	s.Equal(q.ID, got.Questions.Questions()[0].ID)

	_, err = s.svc.Back(s.ctx, s.user.ID, d.ID)
	var se *workflow.StageError
	s.True(errors.As(err, &se))
}

func (s *ServiceSuite) TestContinueFromReviewIsStageError() {
	d := s.start()
	s.toReview(d.ID)
	_, err := s.svc.Continue(s.ctx, s.user.ID, d.ID)
	var se *workflow.StageError
	s.True(errors.As(err, &se))
}

func (s *ServiceSuite) TestReviewOnlyInReview() {
	d := s.start()
	_, err := s.svc.Review(s.ctx, s.user.ID, d.ID)
	var se *workflow.StageError
	s.True(errors.As(err, &se))

	s.toReview(d.ID)
	rv, err := s.svc.Review(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(d.ID, rv.DraftID)
}

// ── Submit ─────────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestSubmit_CreateSuccess() {
	d := s.start()
	edu, _ := s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, screening.Education)
	degree := "Bachelor's"
	_, _ = s.svc.UpdateQuestion(s.ctx, s.user.ID, d.ID, edu.ID, screening.Patch{Degree: &degree})
	_, _ = s.svc.SetMustHave(s.ctx, s.user.ID, d.ID, edu.ID, true)
	s.toReview(d.ID)

	out, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)

	s.False(out.Failed)
	s.Equal("Job created", out.Message)
	s.Equal("j-9", out.JobID)
	s.JSONEq(`{"message":"Job created","job":{"_id":"j-9"}}`, string(out.Job))
	s.Equal("c-42", out.Company.ID)
	s.Equal(s.user, out.User)

	calls := s.sub.Calls()
	s.Require().Len(calls, 1)
	s.Equal("create", calls[0].method)
	s.Equal(d.IdempotencyKey, calls[0].key)
	s.Equal([]draft.ScreeningAnswer{{Question: "Education", IdealAnswer: "Bachelor's", MustHave: true}}, calls[0].req.ScreeningQuestions)

	_, err = s.svc.Get(s.ctx, s.user.ID, d.ID)
	s.ErrorIs(err, workflow.ErrNotFound, "draft is discarded after success")
	s.Equal(ledger.StatusSucceeded, s.led.status[d.IdempotencyKey])
	s.Require().Len(s.pub.events, 1)
	s.Equal(events.JobPosted, s.pub.events[0].Type)
	s.Equal("j-9", s.pub.events[0].JobID)
}

func (s *ServiceSuite) TestSubmit_UpdateDispatch() {
	d, err := s.svc.StartUpdate(s.ctx, s.user, "abc123", []byte(`{"title":"T","companyId":"c"}`))
	s.Require().NoError(err)
	_, err = s.svc.Continue(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.sub.resp = &backend.Response{Status: 200}

	out, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(workflow.DefaultSuccessMessage, out.Message)
	s.Equal("abc123", out.JobID)

	calls := s.sub.Calls()
	s.Require().Len(calls, 1)
	s.Equal("update", calls[0].method)
	s.Equal("abc123", calls[0].jobID)
	s.Equal(events.JobUpdated, s.pub.events[0].Type)
}

func (s *ServiceSuite) TestSubmit_FailureKeepsDraftForRetry() {
	d := s.start()
	s.toReview(d.ID)
	s.sub.err = &backend.APIError{Status: 400, Message: "Title too long"}

	out, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.ErrorIs(err, workflow.ErrSubmitFailed)
	s.Require().NotNil(out)
	s.True(out.Failed)
	s.Equal("Title too long", out.Message)
	s.Equal(ledger.StatusFailed, s.led.status[d.IdempotencyKey])
	s.Empty(s.pub.events)

	got, err := s.svc.Get(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(draft.StageReview, got.Stage)
	s.False(got.Submitting)

	// retry with the same key succeeds
	s.sub.err = nil
	_, err = s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	calls := s.sub.Calls()
	s.Require().Len(calls, 2)
	s.Equal(calls[0].key, calls[1].key)
}

func (s *ServiceSuite) TestSubmit_FailureWithoutServerMessage() {
	d := s.start()
	s.toReview(d.ID)
	s.sub.err = errors.New("connection reset")

	out, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.ErrorIs(err, workflow.ErrSubmitFailed)
	s.Equal(workflow.DefaultFailureMessage, out.Message)
}

func (s *ServiceSuite) TestSubmit_OnlyFromReview() {
	d := s.start()
	_, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	var se *workflow.StageError
	s.True(errors.As(err, &se))
	s.Empty(s.sub.Calls())
}

func (s *ServiceSuite) TestSubmit_SingleFire() {
	d := s.start()
	s.toReview(d.ID)
	s.sub.entered = make(chan struct{}, 1)
	s.sub.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
		done <- err
	}()
	<-s.sub.entered

	_, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.ErrorIs(err, workflow.ErrSubmitInFlight)
	_, err = s.svc.Back(s.ctx, s.user.ID, d.ID)
	s.ErrorIs(err, workflow.ErrSubmitInFlight, "draft is read-only while submitting")

	close(s.sub.gate)
	s.Require().NoError(<-done)
	s.Len(s.sub.Calls(), 1)
}

func (s *ServiceSuite) TestSubmit_AlreadySucceededKey() {
	d := s.start()
	s.toReview(d.ID)
	s.led.beginErr = ledger.ErrAlreadySucceeded

	_, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.ErrorIs(err, workflow.ErrAlreadySubmitted)
	s.Empty(s.sub.Calls())
}

func (s *ServiceSuite) TestSubmit_LedgerOutageIsNotFatal() {
	d := s.start()
	s.toReview(d.ID)
	s.led.beginErr = errors.New("db down")

	_, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Len(s.sub.Calls(), 1)
}

func (s *ServiceSuite) TestSubmit_PublishFailureIsNotFatal() {
	d := s.start()
	s.toReview(d.ID)
	s.pub.err = errors.New("bus down")

	out, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.False(out.Failed)
}

func (s *ServiceSuite) TestStaleSubmittingFlagIsCleared() {
	d := s.start()
	s.toReview(d.ID)

	// simulate a crash mid-submit: flag saved, lock long gone
	stored, _ := s.store.Get(s.ctx, d.ID)
	stored.Submitting = true
	s.Require().NoError(s.store.Save(s.ctx, stored))

	got, err := s.svc.Back(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.False(got.Submitting)
}

// ── Concurrency ────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestConcurrentEditsAreBothKept() {
	d := s.start()
	slow := s.over(holdingStore{s.store})
	h := newHold()

	done := make(chan error, 1)
	go func() {
		_, err := slow.SelectQuestion(h.ctx(s.ctx), s.user.ID, d.ID, screening.Education)
		done <- err
	}()
	<-h.reached

	_, err := s.svc.SelectQuestion(s.ctx, s.user.ID, d.ID, screening.DrugTest)
	s.Require().NoError(err)
	close(h.release)
	s.Require().NoError(<-done)

	got, err := s.svc.Get(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Questions.Len())
	s.False(got.Questions.Selectable(screening.Education))
	s.False(got.Questions.Selectable(screening.DrugTest))
}

func (s *ServiceSuite) TestEditGivesUpAfterRepeatedConflicts() {
	d := s.start()
	st := &racingStore{Memory: s.store}

	_, err := s.over(st).SelectQuestion(s.ctx, s.user.ID, d.ID, screening.Education)
	s.ErrorIs(err, workflow.ErrConflict)
	s.Equal(3, st.saves)
}

func (s *ServiceSuite) TestSubmit_RecheckedUnderLock() {
	d := s.start()
	s.toReview(d.ID)
	slow := s.over(holdingStore{s.store})
	h := newHold()

	// the slow submit has read the draft in review but not yet locked it
	done := make(chan error, 1)
	go func() {
		_, err := slow.Submit(h.ctx(s.ctx), s.user.ID, d.ID)
		done <- err
	}()
	<-h.reached

	_, err := s.svc.Submit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	close(h.release)

	s.ErrorIs(<-done, workflow.ErrNotFound)
	s.Len(s.sub.Calls(), 1, "the settled draft must not be posted twice")
	s.Len(s.pub.events, 1)
}

func (s *ServiceSuite) TestSubmit_RecheckedAfterBack() {
	d := s.start()
	s.toReview(d.ID)
	slow := s.over(holdingStore{s.store})
	h := newHold()

	done := make(chan error, 1)
	go func() {
		_, err := slow.Submit(h.ctx(s.ctx), s.user.ID, d.ID)
		done <- err
	}()
	<-h.reached

	_, err := s.svc.Back(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	close(h.release)

	s.ErrorIs(<-done, workflow.ErrSubmitInFlight)
	s.Empty(s.sub.Calls())
	got, err := s.svc.Get(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(draft.StageAssembly, got.Stage)
	s.False(got.Submitting)
}

func (s *ServiceSuite) TestSubmit_MarksSubmittedWhenDeleteFails() {
	d := s.start()
	s.toReview(d.ID)
	svc := s.over(stuckStore{s.store})

	_, err := svc.Submit(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)

	got, err := svc.Get(s.ctx, s.user.ID, d.ID)
	s.Require().NoError(err)
	s.Equal(draft.StageSubmitted, got.Stage)
	s.False(got.Submitting)

	_, err = svc.Submit(s.ctx, s.user.ID, d.ID)
	s.ErrorIs(err, workflow.ErrAlreadySubmitted)
	_, err = svc.Back(s.ctx, s.user.ID, d.ID)
	var se *workflow.StageError
	s.True(errors.As(err, &se), "a submitted draft is closed")
	s.Len(s.sub.Calls(), 1)
}
