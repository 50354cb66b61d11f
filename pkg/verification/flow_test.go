package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/repository"
	"github.com/example/lensshop/pkg/usererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const draftKey = "login_phone_draft"

var testConfig = Config{
	DraftKey:           draftKey,
	DefaultPhonePrefix: "+91 ",
	ResendCooldown:     30 * time.Second,
	ResendNotice:       3 * time.Second,
	CodeLength:         4,
	ContinuePath:       "/",
}

type manualTimer struct {
	next      time.Duration
	every     time.Duration
	fn        func()
	cancelled bool
}

// manualScheduler fires timers only when Advance is called.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

func (s *manualScheduler) Every(d time.Duration, fn func()) func() {
	return s.add(d, d, fn)
}

func (s *manualScheduler) After(d time.Duration, fn func()) func() {
	return s.add(d, 0, fn)
}

func (s *manualScheduler) add(d, every time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{next: s.now + d, every: every, fn: fn}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due *manualTimer
		for _, t := range s.timers {
			if t.cancelled || t.next > target {
				continue
			}
			if due == nil || t.next < due.next {
				due = t
			}
		}
		if due == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = due.next
		if due.every > 0 {
			due.next += due.every
		} else {
			due.cancelled = true
		}
		fn := due.fn
		s.mu.Unlock()
		fn()
	}
}

func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

type fakeBackend struct {
	mu         sync.Mutex
	calls      []string
	profiles   []models.UserProfile
	principals []string
	saveErr    error
	requestErr error
	verifyErr  error
	verifyOK   bool
	saveGate   chan struct{}
}

func (b *fakeBackend) record(ctx context.Context, call string) {
	id, _ := identity.FromContext(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
	b.principals = append(b.principals, id.Principal)
}

func (b *fakeBackend) SaveProfile(ctx context.Context, profile models.UserProfile) error {
	b.record(ctx, "SaveProfile")
	if b.saveGate != nil {
		<-b.saveGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profiles = append(b.profiles, profile)
	return b.saveErr
}

func (b *fakeBackend) RequestPhoneCode(ctx context.Context, _ string) error {
	b.record(ctx, "RequestPhoneCode")
	return b.requestErr
}

func (b *fakeBackend) VerifyPhoneCode(ctx context.Context, _, _ string) (bool, error) {
	b.record(ctx, "VerifyPhoneCode")
	return b.verifyOK, b.verifyErr
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) LastProfile() models.UserProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profiles[len(b.profiles)-1]
}

type fakeProvider struct {
	err error
}

func (p fakeProvider) Authenticate(_ context.Context, credential string) (identity.Identity, error) {
	if p.err != nil {
		return identity.Identity{}, p.err
	}
	return identity.Identity{Principal: "user-1", Token: credential}, nil
}

type harness struct {
	flow    *Flow
	backend *fakeBackend
	session *repository.MemoryStore
	sched   *manualScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{verifyOK: true},
		session: repository.NewMemoryStore(),
		sched:   &manualScheduler{},
	}
	h.flow = New(context.Background(), testConfig, h.backend, fakeProvider{}, h.session,
		zaptest.NewLogger(t), WithScheduler(h.sched))
	t.Cleanup(h.flow.Close)
	return h
}

func (h *harness) fillForm(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.flow.SignIn(ctx, "token"))
	require.NoError(t, h.flow.SetName("Asha Rao"))
	require.NoError(t, h.flow.SetEmail("asha@example.com"))
	require.NoError(t, h.flow.SetPhone(ctx, "+91 98765 43210"))
}

func (h *harness) toOtp(t *testing.T) {
	t.Helper()
	h.fillForm(t)
	require.NoError(t, h.flow.SendCode(context.Background()))
}

func TestSendCodeRequiresSignIn(t *testing.T) {
	h := newHarness(t)

	err := h.flow.SendCode(context.Background())

	assert.Equal(t, usererr.KindAuthenticationRequired, usererr.KindOf(err))
	assert.Empty(t, h.backend.Calls())
	snap := h.flow.Snapshot()
	assert.Equal(t, PhaseForm, snap.Phase)
	assert.Equal(t, usererr.MsgSignInFirst, snap.Errors[FieldSubmit])
}

func TestFormEditsRequireSignIn(t *testing.T) {
	h := newHarness(t)

	err := h.flow.SetName("Asha")

	assert.Equal(t, usererr.KindAuthenticationRequired, usererr.KindOf(err))
	assert.Empty(t, h.flow.Snapshot().Name)
}

func TestSignInClearsSignInError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.flow.SendCode(ctx)

	require.NoError(t, h.flow.SignIn(ctx, "token"))

	snap := h.flow.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.Equal(t, "user-1", snap.Principal)
	assert.NotContains(t, snap.Errors, FieldSubmit)
}

func TestSignInFailure(t *testing.T) {
	h := newHarness(t)
	h.flow.provider = fakeProvider{err: identity.ErrInvalidCredential}

	err := h.flow.SignIn(context.Background(), "bad")

	assert.ErrorIs(t, err, identity.ErrInvalidCredential)
	snap := h.flow.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Equal(t, usererr.MsgSignInFailed, snap.Errors[FieldSubmit])
}

func TestSendCodeValidatesFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.flow.SignIn(ctx, "token"))
	require.NoError(t, h.flow.SetEmail("not-an-email"))
	require.NoError(t, h.flow.SetPhone(ctx, "12345"))

	err := h.flow.SendCode(ctx)

	assert.Equal(t, usererr.KindValidation, usererr.KindOf(err))
	assert.Empty(t, h.backend.Calls())
	assert.Equal(t, map[string]string{
		FieldName:  "Name is required",
		FieldEmail: "Please enter a valid email address",
		FieldPhone: "Please enter a valid phone number",
	}, h.flow.Snapshot().Errors)

	require.NoError(t, h.flow.SetName("Asha"))
	assert.NotContains(t, h.flow.Snapshot().Errors, FieldName)
	assert.Contains(t, h.flow.Snapshot().Errors, FieldEmail)
}

func TestSendCodeHappyPath(t *testing.T) {
	h := newHarness(t)
	h.fillForm(t)

	require.NoError(t, h.flow.SendCode(context.Background()))

	snap := h.flow.Snapshot()
	assert.Equal(t, PhaseOtp, snap.Phase)
	assert.Equal(t, 30, snap.ResendCooldown)
	assert.False(t, snap.CanResend)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, []string{"SaveProfile", "RequestPhoneCode"}, h.backend.Calls())
	assert.Equal(t, []string{"user-1", "user-1"}, h.backend.principals)
	assert.Equal(t, models.UserProfile{
		Name:  "Asha Rao",
		Email: "asha@example.com",
		Phone: "+91 98765 43210",
	}, h.backend.LastProfile())
}

func TestSendCodeStopsWhenSaveFails(t *testing.T) {
	h := newHarness(t)
	h.backend.saveErr = status.Error(codes.Unavailable, "connection refused")
	h.fillForm(t)

	err := h.flow.SendCode(context.Background())

	assert.Equal(t, usererr.KindServiceUnavailable, usererr.KindOf(err))
	assert.Equal(t, []string{"SaveProfile"}, h.backend.Calls())
	snap := h.flow.Snapshot()
	assert.Equal(t, PhaseForm, snap.Phase)
	assert.Equal(t, usererr.MsgServiceUnavailable, snap.Errors[FieldSubmit])
	assert.Zero(t, h.sched.Active())
}

func TestSendCodeRejectsDuplicateSubmission(t *testing.T) {
	h := newHarness(t)
	h.fillForm(t)
	gate := make(chan struct{})
	h.backend.saveGate = gate

	done := make(chan error, 1)
	go func() { done <- h.flow.SendCode(context.Background()) }()

	require.Eventually(t, func() bool { return h.flow.Snapshot().Pending.Sending }, time.Second, time.Millisecond)
	assert.ErrorIs(t, h.flow.SendCode(context.Background()), ErrInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"SaveProfile", "RequestPhoneCode"}, h.backend.Calls())
}

func TestCooldownCountsDown(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)

	h.sched.Advance(10 * time.Second)
	assert.Equal(t, 20, h.flow.Snapshot().ResendCooldown)

	h.sched.Advance(25 * time.Second)
	snap := h.flow.Snapshot()
	assert.Equal(t, 0, snap.ResendCooldown)
	assert.True(t, snap.CanResend)
	assert.Zero(t, h.sched.Active())
}

func TestResendDuringCooldownIsNoop(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)
	h.sched.Advance(5 * time.Second)
	before := h.flow.Snapshot()

	err := h.flow.Resend(context.Background())

	assert.ErrorIs(t, err, ErrCooldownActive)
	assert.Equal(t, []string{"SaveProfile", "RequestPhoneCode"}, h.backend.Calls())
	assert.Equal(t, before, h.flow.Snapshot())
}

func TestResendAfterCooldown(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)
	h.sched.Advance(30 * time.Second)

	require.NoError(t, h.flow.Resend(context.Background()))

	assert.Equal(t, []string{"SaveProfile", "RequestPhoneCode", "RequestPhoneCode"}, h.backend.Calls())
	snap := h.flow.Snapshot()
	assert.Equal(t, 30, snap.ResendCooldown)
	assert.Equal(t, ResendNoticeText, snap.Notice)

	h.sched.Advance(3 * time.Second)
	snap = h.flow.Snapshot()
	assert.Empty(t, snap.Notice)
	assert.Equal(t, 27, snap.ResendCooldown)
}

func TestResendFailure(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)
	h.sched.Advance(30 * time.Second)
	h.backend.requestErr = errors.New("Profile not found")

	err := h.flow.Resend(context.Background())

	assert.Equal(t, usererr.KindProfileNotFound, usererr.KindOf(err))
	snap := h.flow.Snapshot()
	assert.Equal(t, usererr.MsgProfileNotFound, snap.Errors[FieldResend])
	assert.Equal(t, 0, snap.ResendCooldown)
	assert.Empty(t, snap.Notice)
}

func TestVerifyCodeRequiresFullCode(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)
	require.NoError(t, h.flow.SetCode("12a"))

	err := h.flow.VerifyCode(context.Background())

	assert.Equal(t, usererr.KindValidation, usererr.KindOf(err))
	assert.Equal(t, "Please enter the 4-digit code", h.flow.Snapshot().Errors[FieldOtp])
	assert.NotContains(t, h.backend.Calls(), "VerifyPhoneCode")
}

func TestSetCodeKeepsDigits(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)

	require.NoError(t, h.flow.SetCode("1-2 3 4 5"))

	assert.Equal(t, "1234", h.flow.Snapshot().Code)
}

func TestVerifyCodeRejected(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)
	h.backend.verifyOK = false
	require.NoError(t, h.flow.SetCode("1234"))

	err := h.flow.VerifyCode(context.Background())

	assert.Equal(t, usererr.KindInvalidOrExpiredCode, usererr.KindOf(err))
	snap := h.flow.Snapshot()
	assert.Equal(t, PhaseOtp, snap.Phase)
	assert.Equal(t, usererr.MsgInvalidCode, snap.Errors[FieldOtp])
	assert.Equal(t, []string{"SaveProfile", "RequestPhoneCode", "VerifyPhoneCode"}, h.backend.Calls())
}

func TestVerifyCodeSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.toOtp(t)
	_, err := h.session.Get(ctx, draftKey)
	require.NoError(t, err)
	require.NoError(t, h.flow.SetCode("4321"))

	require.NoError(t, h.flow.VerifyCode(ctx))

	snap := h.flow.Snapshot()
	assert.Equal(t, PhaseSuccess, snap.Phase)
	assert.Equal(t, 0, snap.ResendCooldown)
	assert.Empty(t, snap.Errors)
	assert.Zero(t, h.sched.Active())
	assert.Equal(t, []string{"SaveProfile", "RequestPhoneCode", "VerifyPhoneCode", "SaveProfile"}, h.backend.Calls())
	assert.True(t, h.backend.LastProfile().PhoneVerified)

	_, err = h.session.Get(ctx, draftKey)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	next, err := h.flow.Continue()
	require.NoError(t, err)
	assert.Equal(t, "/", next)
}

func TestContinueBeforeSuccess(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Continue()
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestPhoneDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	assert.Equal(t, "+91 ", h.flow.Snapshot().Phone)

	require.NoError(t, h.flow.SignIn(ctx, "token"))
	require.NoError(t, h.flow.SetPhone(ctx, "+91 99999"))

	restored := New(ctx, testConfig, h.backend, fakeProvider{}, h.session, zaptest.NewLogger(t), WithScheduler(h.sched))
	defer restored.Close()
	assert.Equal(t, "+91 99999", restored.Snapshot().Phone)
}

func TestCloseCancelsTimers(t *testing.T) {
	h := newHarness(t)
	h.toOtp(t)
	require.Equal(t, 1, h.sched.Active())

	h.flow.Close()

	assert.Zero(t, h.sched.Active())
	h.sched.Advance(time.Minute)
	assert.Equal(t, 30, h.flow.Snapshot().ResendCooldown)
	assert.ErrorIs(t, h.flow.SignIn(context.Background(), "token"), ErrClosed)
}
