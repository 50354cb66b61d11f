// Package verification implements the login and phone verification flow:
// sign in, submit the profile form, confirm the code sent to the phone.
//
// A Flow belongs to one session. It is safe for concurrent use, but
// backend calls are never issued concurrently for the same action: a
// second submission while one is outstanding fails with ErrInFlight.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/metrics"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/repository"
	"github.com/example/lensshop/pkg/usererr"
	"github.com/example/lensshop/pkg/validation"
	"go.uber.org/zap"
)

type Phase string

const (
	PhaseForm    Phase = "form"
	PhaseOtp     Phase = "otp"
	PhaseSuccess Phase = "success"
)

// Keys of the per-field error map.
const (
	FieldName   = "name"
	FieldEmail  = "email"
	FieldPhone  = "phone"
	FieldSubmit = "submit"
	FieldResend = "resend"
	FieldOtp    = "otp"
)

const ResendNoticeText = "A new verification code has been sent."

var (
	ErrInFlight       = errors.New("verification: request already in progress")
	ErrCooldownActive = errors.New("verification: resend cooldown active")
	ErrWrongPhase     = errors.New("verification: action not available in this step")
	ErrClosed         = errors.New("verification: flow closed")
)

var formMessages = validation.Messages{
	FieldName: {"trimmed_required": "Name is required"},
	FieldEmail: {
		"trimmed_required": "Email is required",
		"profile_email":    "Please enter a valid email address",
	},
	FieldPhone: {
		"trimmed_required": "Phone number is required",
		"phone":            "Please enter a valid phone number",
	},
}

type profileForm struct {
	Name  string `json:"name" validate:"trimmed_required"`
	Email string `json:"email" validate:"trimmed_required,profile_email"`
	Phone string `json:"phone" validate:"trimmed_required,phone"`
}

// Backend is the part of the storefront backend the flow talks to. The
// caller's identity travels in the context (see identity.NewContext).
type Backend interface {
	SaveProfile(ctx context.Context, profile models.UserProfile) error
	RequestPhoneCode(ctx context.Context, phone string) error
	VerifyPhoneCode(ctx context.Context, phone, code string) (bool, error)
}

type Config struct {
	DraftKey           string
	DefaultPhonePrefix string
	ResendCooldown     time.Duration
	ResendNotice       time.Duration
	CodeLength         int
	ContinuePath       string
}

func ConfigFrom(sf config.StorefrontConfig) Config {
	return Config{
		DraftKey:           sf.PhoneDraftKey,
		DefaultPhonePrefix: sf.DefaultPhonePrefix,
		ResendCooldown:     sf.ResendCooldown,
		ResendNotice:       sf.ResendNotice,
		CodeLength:         sf.CodeLength,
		ContinuePath:       sf.ContinuePath,
	}
}

func (c Config) cooldownSeconds() int {
	return int(c.ResendCooldown / time.Second)
}

type Pending struct {
	SigningIn bool `json:"signingIn"`
	Sending   bool `json:"sending"`
	Resending bool `json:"resending"`
	Verifying bool `json:"verifying"`
}

// Snapshot is a consistent copy of the flow's state.
type Snapshot struct {
	Phase          Phase             `json:"phase"`
	Authenticated  bool              `json:"authenticated"`
	Principal      string            `json:"principal,omitempty"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	Code           string            `json:"code"`
	CodeLength     int               `json:"codeLength"`
	ResendCooldown int               `json:"resendCooldown"`
	CanResend      bool              `json:"canResend"`
	Notice         string            `json:"notice,omitempty"`
	Errors         map[string]string `json:"errors"`
	Pending        Pending           `json:"pending"`
}

type Flow struct {
	cfg      Config
	backend  Backend
	provider identity.Provider
	session  repository.Store
	sched    Scheduler
	logger   *zap.Logger
	metrics  *metrics.Storefront

	mu      sync.Mutex
	phase   Phase
	id      identity.Identity
	name    string
	email   string
	phone   string
	code    string
	errs    map[string]string
	pending Pending
	closed  bool

	cooldown   int
	stopTick   func()
	tickGen    uint64
	notice     string
	stopNotice func()
	noticeGen  uint64
}

type Option func(*Flow)

func WithScheduler(s Scheduler) Option {
	return func(f *Flow) {
		f.sched = s
	}
}

func WithMetrics(m *metrics.Storefront) Option {
	return func(f *Flow) {
		f.metrics = m
	}
}

// New starts a flow in the form step. The phone field is restored from
// the session draft when one exists.
func New(ctx context.Context, cfg Config, backend Backend, provider identity.Provider, session repository.Store, logger *zap.Logger, opts ...Option) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Flow{
		cfg:      cfg,
		backend:  backend,
		provider: provider,
		session:  session,
		sched:    WallClock{},
		logger:   logger.Named("verification"),
		phase:    PhaseForm,
		errs:     map[string]string{},
	}
	for _, opt := range opts {
		opt(f)
	}

	f.phone = cfg.DefaultPhonePrefix
	draft, err := session.Get(ctx, cfg.DraftKey)
	switch {
	case err == nil && draft != "":
		f.phone = draft
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		f.logger.Warn("Failed to read phone draft", zap.Error(err))
	}
	return f
}

// SignIn authenticates the credential with the identity provider.
func (f *Flow) SignIn(ctx context.Context, credential string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.pending.SigningIn {
		f.mu.Unlock()
		return ErrInFlight
	}
	f.pending.SigningIn = true
	f.mu.Unlock()

	id, err := f.provider.Authenticate(ctx, credential)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.SigningIn = false
	if err != nil {
		f.errs = map[string]string{FieldSubmit: usererr.MsgSignInFailed}
		f.logger.Info("Sign-in failed", zap.Error(err))
		return usererr.Wrap(usererr.KindAuthenticationRequired, err, usererr.MsgSignInFailed)
	}

	f.id = id
	if strings.Contains(strings.ToLower(f.errs[FieldSubmit]), "sign in") {
		delete(f.errs, FieldSubmit)
	}
	f.logger.Info("Signed in", zap.String("principal", id.Principal))
	return nil
}

func (f *Flow) SetName(name string) error {
	return f.editForm(FieldName, func() { f.name = name })
}

func (f *Flow) SetEmail(email string) error {
	return f.editForm(FieldEmail, func() { f.email = email })
}

// SetPhone updates the phone field and stores it as the session draft.
func (f *Flow) SetPhone(ctx context.Context, phone string) error {
	if err := f.editForm(FieldPhone, func() { f.phone = phone }); err != nil {
		return err
	}
	if err := f.session.Set(ctx, f.cfg.DraftKey, phone); err != nil {
		f.logger.Warn("Failed to persist phone draft", zap.Error(err))
	}
	return nil
}

// SetCode keeps only digits, up to the configured code length.
func (f *Flow) SetCode(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseOtp {
		return ErrWrongPhase
	}
	var b strings.Builder
	for _, r := range code {
		if unicode.IsDigit(r) && b.Len() < f.cfg.CodeLength {
			b.WriteRune(r)
		}
	}
	f.code = b.String()
	delete(f.errs, FieldOtp)
	return nil
}

func (f *Flow) editForm(field string, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseForm {
		return ErrWrongPhase
	}
	if f.id.Anonymous() {
		return usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignInFirst)
	}
	apply()
	delete(f.errs, field)
	return nil
}

// SendCode validates the form, saves the unverified profile and then
// requests a code for the phone. The request is only made once the save
// has succeeded.
func (f *Flow) SendCode(ctx context.Context) error {
	f.mu.Lock()
	if f.phase != PhaseForm {
		f.mu.Unlock()
		return ErrWrongPhase
	}
	if f.pending.Sending {
		f.mu.Unlock()
		return ErrInFlight
	}
	if f.id.Anonymous() {
		f.errs = map[string]string{FieldSubmit: usererr.MsgSignInFirst}
		f.mu.Unlock()
		return usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignInFirst)
	}
	form := profileForm{Name: f.name, Email: f.email, Phone: f.phone}
	if fields := validation.Struct(form, formMessages); fields != nil {
		f.errs = fields
		f.mu.Unlock()
		return usererr.Validation(fields)
	}
	f.pending.Sending = true
	profile := models.UserProfile{
		Name:  strings.TrimSpace(form.Name),
		Email: strings.TrimSpace(form.Email),
		Phone: form.Phone,
	}
	callCtx := identity.NewContext(ctx, f.id)
	f.mu.Unlock()

	step := "save profile"
	err := f.backend.SaveProfile(callCtx, profile)
	if err == nil {
		step = "request phone code"
		err = f.backend.RequestPhoneCode(callCtx, profile.Phone)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Sending = false
	if err != nil {
		ue := usererr.SanitizeAuthFlow(err)
		f.errs = map[string]string{FieldSubmit: ue.Message()}
		f.logger.Warn("Failed to send verification code",
			zap.String("step", step),
			zap.String("principal", f.id.Principal),
			zap.Error(err))
		return ue
	}

	f.phase = PhaseOtp
	f.code = ""
	f.errs = map[string]string{}
	f.startCooldownLocked()
	f.metrics.FlowTransition(string(PhaseOtp))
	f.logger.Info("Verification code sent", zap.String("principal", f.id.Principal))
	return nil
}

// Resend asks for a fresh code. While the cooldown is running or another
// resend is outstanding it returns ErrCooldownActive and changes nothing.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.phase != PhaseOtp {
		f.mu.Unlock()
		return ErrWrongPhase
	}
	if f.cooldown > 0 || f.pending.Resending {
		f.mu.Unlock()
		return ErrCooldownActive
	}
	if f.id.Anonymous() {
		f.errs = map[string]string{FieldResend: usererr.MsgSignInFirst}
		f.mu.Unlock()
		return usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignInFirst)
	}
	f.pending.Resending = true
	phone := f.phone
	callCtx := identity.NewContext(ctx, f.id)
	f.mu.Unlock()

	err := f.backend.RequestPhoneCode(callCtx, phone)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Resending = false
	if err != nil {
		ue := usererr.SanitizeAuthFlow(err)
		f.logger.Warn("Failed to resend verification code", zap.String("principal", f.id.Principal), zap.Error(err))
		f.errs = map[string]string{FieldResend: ue.Message()}
		f.clearNoticeLocked()
		return ue
	}

	delete(f.errs, FieldResend)
	f.startCooldownLocked()
	f.showNoticeLocked(ResendNoticeText)
	return nil
}

// VerifyCode confirms the entered code. On success the profile is saved
// as verified, the phone draft is dropped and the flow reaches success.
func (f *Flow) VerifyCode(ctx context.Context) error {
	f.mu.Lock()
	if f.phase != PhaseOtp {
		f.mu.Unlock()
		return ErrWrongPhase
	}
	if f.pending.Verifying {
		f.mu.Unlock()
		return ErrInFlight
	}
	if len(f.code) != f.cfg.CodeLength {
		msg := fmt.Sprintf("Please enter the %d-digit code", f.cfg.CodeLength)
		f.errs = map[string]string{FieldOtp: msg}
		f.mu.Unlock()
		return usererr.Validation(map[string]string{FieldOtp: msg})
	}
	if f.id.Anonymous() {
		f.errs = map[string]string{FieldOtp: usererr.MsgSignIn}
		f.mu.Unlock()
		return usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignIn)
	}
	f.pending.Verifying = true
	code := f.code
	profile := models.UserProfile{
		Name:          strings.TrimSpace(f.name),
		Email:         strings.TrimSpace(f.email),
		Phone:         f.phone,
		PhoneVerified: true,
	}
	callCtx := identity.NewContext(ctx, f.id)
	f.mu.Unlock()

	ok, err := f.backend.VerifyPhoneCode(callCtx, profile.Phone, code)
	if err == nil && !ok {
		err = usererr.New(usererr.KindInvalidOrExpiredCode, usererr.MsgInvalidCode)
	}
	if err == nil {
		err = f.backend.SaveProfile(callCtx, profile)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Verifying = false
	if err != nil {
		ue := usererr.SanitizeAuthFlow(err)
		f.errs = map[string]string{FieldOtp: ue.Message()}
		return ue
	}

	f.phase = PhaseSuccess
	f.errs = map[string]string{}
	f.stopCooldownLocked()
	f.cooldown = 0
	f.clearNoticeLocked()
	if err := f.session.Remove(ctx, f.cfg.DraftKey); err != nil && !errors.Is(err, repository.ErrNotFound) {
		f.logger.Warn("Failed to clear phone draft", zap.Error(err))
	}
	f.metrics.FlowTransition(string(PhaseSuccess))
	f.logger.Info("Phone verified", zap.String("principal", f.id.Principal))
	return nil
}

// Continue leaves a finished flow and returns where to go next.
func (f *Flow) Continue() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseSuccess {
		return "", ErrWrongPhase
	}
	return f.cfg.ContinuePath, nil
}

func (f *Flow) Identity() identity.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	errs := make(map[string]string, len(f.errs))
	for k, v := range f.errs {
		errs[k] = v
	}
	return Snapshot{
		Phase:          f.phase,
		Authenticated:  !f.id.Anonymous(),
		Principal:      f.id.Principal,
		Name:           f.name,
		Email:          f.email,
		Phone:          f.phone,
		Code:           f.code,
		CodeLength:     f.cfg.CodeLength,
		ResendCooldown: f.cooldown,
		CanResend:      f.phase == PhaseOtp && f.cooldown == 0 && !f.pending.Resending,
		Notice:         f.notice,
		Errors:         errs,
		Pending:        f.pending,
	}
}

// Close cancels every timer the flow owns. Later calls fail with ErrClosed
// where they would otherwise start new work.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.stopCooldownLocked()
	f.clearNoticeLocked()
}

func (f *Flow) startCooldownLocked() {
	f.stopCooldownLocked()
	if f.closed {
		return
	}
	f.cooldown = f.cfg.cooldownSeconds()
	if f.cooldown <= 0 {
		return
	}
	gen := f.tickGen
	f.stopTick = f.sched.Every(time.Second, func() { f.tick(gen) })
}

func (f *Flow) tick(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.tickGen || f.cooldown <= 0 {
		return
	}
	f.cooldown--
	if f.cooldown == 0 {
		f.stopCooldownLocked()
	}
}

func (f *Flow) stopCooldownLocked() {
	f.tickGen++
	if f.stopTick != nil {
		f.stopTick()
		f.stopTick = nil
	}
}

func (f *Flow) showNoticeLocked(text string) {
	f.clearNoticeLocked()
	if f.closed {
		return
	}
	f.notice = text
	gen := f.noticeGen
	f.stopNotice = f.sched.After(f.cfg.ResendNotice, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if gen == f.noticeGen {
			f.notice = ""
			f.stopNotice = nil
		}
	})
}

func (f *Flow) clearNoticeLocked() {
	f.noticeGen++
	f.notice = ""
	if f.stopNotice != nil {
		f.stopNotice()
		f.stopNotice = nil
	}
}
