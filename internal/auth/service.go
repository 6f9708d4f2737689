// internal/auth/service.go
//
// AuthService: credentials, sessions, and password reset.
//
// Context
// -------
// Every operation takes the request context and talks only to the injected
// meta.Store and mail.Mailer.  Sessions are opaque random tokens stored
// server-side; there is nothing to verify offline.
//
// Error policy
// ------------
//   - Login failures are one generic AuthError whether the email or the
//     password was wrong.  An unknown email still pays for one argon2id
//     verify against a throwaway hash so response time does not reveal it.
//   - RequestPasswordReset always reports success so callers cannot learn
//     which emails exist.
//   - CompletePasswordReset returns one generic message for unknown,
//     expired, or already used tokens.
//   - Store failures become UpstreamError with the cause kept for logs.
//
// Notes
// -----
//   - A successful reset revokes every session of the user.
//   - Reset mail is sent in the background on a context detached from the
//     request.  Wait drains in-flight sends before shutdown.
//   - Legacy SHA-256 hashes are upgraded in place after a good login; an
//     upgrade failure is logged and does not fail the login.
package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/apperr"
	mailer "github.com/yanizio/siteconf/internal/mail"
	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/metrics"
	"github.com/yanizio/siteconf/internal/requestinfo"
)

// MinPasswordLen is enforced on signup and reset.
const MinPasswordLen = 8

const (
	msgBadCredentials = "invalid email or password"
	msgBadResetToken  = "invalid or expired token"
)

// Options tunes Service.  Zero durations fall back to 7 days and 1 hour.
type Options struct {
	SessionTTL    time.Duration
	ResetTTL      time.Duration
	ResetLinkBase string
	Policy        InvitationPolicy
	Hasher        Hasher
	// Now is the clock for session and token expiry; nil means time.Now.
	Now func() time.Time
}

// resetMailTimeout bounds a background reset send.
const resetMailTimeout = 30 * time.Second

// Service implements the auth operations.  Safe for concurrent use.
type Service struct {
	store  meta.Store
	mail   mailer.Mailer
	opt    Options
	log    *zap.Logger
	now    func() time.Time
	newTok func() (string, error)

	dummyOnce sync.Once
	dummy     string
	sending   sync.WaitGroup
}

func NewService(store meta.Store, m mailer.Mailer, opt Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.SessionTTL <= 0 {
		opt.SessionTTL = 7 * 24 * time.Hour
	}
	if opt.ResetTTL <= 0 {
		opt.ResetTTL = time.Hour
	}
	if opt.Policy == nil {
		opt.Policy = CodePolicy{}
	}
	if opt.Hasher.P == (Argon2Params{}) {
		opt.Hasher.P = DefaultArgon2
	}
	if m == nil {
		m = mailer.LogMailer{Log: log}
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Service{
		store:  store,
		mail:   m,
		opt:    opt,
		log:    log.Named("auth"),
		now:    opt.Now,
		newTok: newToken,
	}
}

// Wait blocks until every background reset mail has been handed off.
func (s *Service) Wait() { s.sending.Wait() }

/*──────────────────────────── signup ──────────────────────────────────────*/

// Signup creates a user bound to the tenant named by code.
func (s *Service) Signup(ctx context.Context, email, password, code string) (*meta.User, error) {
	const op = "auth.Signup"

	email = normalizeEmail(email)
	if err := validateEmail(op, email); err != nil {
		return nil, s.fail("signup", err)
	}
	if len(password) < MinPasswordLen {
		return nil, s.fail("signup", apperr.Validation(op, "password must be at least 8 characters"))
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, s.fail("signup", apperr.Validation(op, "invitation code required"))
	}

	switch _, err := s.store.UserByEmail(ctx, email); {
	case err == nil:
		return nil, s.fail("signup", apperr.Conflict(op, "email already registered"))
	case !errors.Is(err, meta.ErrNotFound):
		return nil, s.fail("signup", apperr.Upstream(op, err))
	}

	hash, err := s.opt.Hasher.Hash(password)
	if err != nil {
		return nil, s.fail("signup", apperr.Upstream(op, err))
	}
	u := &meta.User{Email: email, PasswordHash: hash}
	if err := s.opt.Policy.Redeem(ctx, s.store, u, code, s.now().UTC()); err != nil {
		return nil, s.fail("signup", err)
	}

	metrics.AuthEvents.WithLabelValues("signup", "ok").Inc()
	s.log.Info("user signed up",
		append([]zap.Field{zap.Int64("user_id", u.ID), zap.String("tenant", u.ConfigID)},
			requestinfo.FromContext(ctx).Fields()...)...)
	return u, nil
}

/*──────────────────────────── login / logout ──────────────────────────────*/

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*meta.User, *meta.Session, error) {
	const op = "auth.Login"

	u, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, meta.ErrNotFound):
		s.verifyDummy(password)
		return nil, nil, s.fail("login", apperr.Auth(op, msgBadCredentials))
	case err != nil:
		return nil, nil, s.fail("login", apperr.Upstream(op, err))
	}

	ok, rehash, err := s.opt.Hasher.Verify(u.PasswordHash, password)
	if err != nil {
		s.log.Warn("stored password hash unreadable", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	if !ok {
		return nil, nil, s.fail("login", apperr.Auth(op, msgBadCredentials))
	}
	if rehash {
		s.upgradeHash(ctx, u, password)
	}

	tok, err := s.newTok()
	if err != nil {
		return nil, nil, s.fail("login", apperr.Upstream(op, err))
	}
	sess := &meta.Session{ID: tok, UserID: u.ID, ExpiresAt: s.now().UTC().Add(s.opt.SessionTTL)}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, nil, s.fail("login", apperr.Upstream(op, err))
	}

	metrics.AuthEvents.WithLabelValues("login", "ok").Inc()
	s.log.Info("user logged in",
		append([]zap.Field{zap.Int64("user_id", u.ID), zap.String("tenant", u.ConfigID)},
			requestinfo.FromContext(ctx).Fields()...)...)
	return u, sess, nil
}

// verifyDummy spends the same argon2id work a real verify would.
func (s *Service) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.opt.Hasher.Hash("not-a-real-password")
		if err != nil {
			s.log.Warn("dummy hash generation failed", zap.Error(err))
			return
		}
		s.dummy = h
	})
	if s.dummy != "" {
		_, _, _ = s.opt.Hasher.Verify(s.dummy, password)
	}
}

func (s *Service) upgradeHash(ctx context.Context, u *meta.User, password string) {
	hash, err := s.opt.Hasher.Hash(password)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, u.ID, hash)
	}
	if err != nil {
		s.log.Warn("password hash upgrade failed", zap.Int64("user_id", u.ID), zap.Error(err))
		return
	}
	u.PasswordHash = hash
	s.log.Info("password hash upgraded", zap.Int64("user_id", u.ID))
}

// Logout deletes the session.  Unknown or empty tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil && !errors.Is(err, meta.ErrNotFound) {
		return s.fail("logout", apperr.Upstream("auth.Logout", err))
	}
	metrics.AuthEvents.WithLabelValues("logout", "ok").Inc()
	return nil
}

// CurrentUser maps a session token to its user.  Missing, unknown, and
// expired tokens are all an AuthError.
func (s *Service) CurrentUser(ctx context.Context, token string) (*meta.User, error) {
	const op = "auth.CurrentUser"
	if token == "" {
		return nil, apperr.Auth(op, "")
	}
	_, u, err := s.store.LiveSession(ctx, token, s.now().UTC())
	switch {
	case errors.Is(err, meta.ErrNotFound):
		return nil, apperr.Auth(op, "")
	case err != nil:
		return nil, apperr.Upstream(op, err)
	}
	return u, nil
}

/*──────────────────────────── password reset ──────────────────────────────*/

// RequestPasswordReset emails a one-hour reset link when the account
// exists.  The result is the same either way, and the mail goes out after
// the call returns.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	email = normalizeEmail(email)
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, meta.ErrNotFound) {
			s.log.Error("reset lookup failed", zap.Error(err))
		}
		metrics.AuthEvents.WithLabelValues("reset_request", "ignored").Inc()
		return
	}

	tok, err := s.newTok()
	if err != nil {
		s.log.Error("reset token generation failed", zap.Error(err))
		return
	}
	rt := &meta.PasswordResetToken{
		UserID:    u.ID,
		TokenHash: hashToken(tok),
		ExpiresAt: s.now().UTC().Add(s.opt.ResetTTL),
	}
	if err := s.store.ReplaceResetToken(ctx, rt); err != nil {
		s.log.Error("reset token store failed", zap.Int64("user_id", u.ID), zap.Error(err))
		metrics.AuthEvents.WithLabelValues("reset_request", "error").Inc()
		return
	}

	msg := mailer.Message{
		To:      u.Email,
		Subject: "Reset your password",
		Text: "Use this link within one hour to choose a new password:\n\n" +
			s.resetLink(tok) + "\n\nIf you did not ask for this, ignore this email.",
	}
	s.sending.Add(1)
	go func() {
		defer s.sending.Done()
		s.sendReset(context.WithoutCancel(ctx), u.ID, msg)
	}()
}

func (s *Service) sendReset(ctx context.Context, userID int64, msg mailer.Message) {
	ctx, cancel := context.WithTimeout(ctx, resetMailTimeout)
	defer cancel()

	if err := s.mail.Send(ctx, msg); err != nil {
		s.log.Error("reset mail failed", zap.Int64("user_id", userID), zap.Error(err))
		metrics.AuthEvents.WithLabelValues("reset_request", "mail_error").Inc()
		return
	}
	metrics.AuthEvents.WithLabelValues("reset_request", "ok").Inc()
	s.log.Info("reset link sent", append([]zap.Field{zap.Int64("user_id", userID)},
		requestinfo.FromContext(ctx).Fields()...)...)
}

func (s *Service) resetLink(tok string) string {
	base := s.opt.ResetLinkBase
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(tok)
}

// CompletePasswordReset consumes token and sets a new password.
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	const op = "auth.CompletePasswordReset"

	if len(newPassword) < MinPasswordLen {
		return s.fail("reset", apperr.Validation(op, "password must be at least 8 characters"))
	}
	if token == "" {
		return s.fail("reset", apperr.Validation(op, msgBadResetToken))
	}

	rt, err := s.store.ResetTokenByHash(ctx, hashToken(token))
	switch {
	case errors.Is(err, meta.ErrNotFound):
		return s.fail("reset", apperr.Validation(op, msgBadResetToken))
	case err != nil:
		return s.fail("reset", apperr.Upstream(op, err))
	case !s.now().Before(rt.ExpiresAt):
		return s.fail("reset", apperr.Validation(op, msgBadResetToken))
	}

	hash, err := s.opt.Hasher.Hash(newPassword)
	if err != nil {
		return s.fail("reset", apperr.Upstream(op, err))
	}
	if err := s.store.UpdatePasswordHash(ctx, rt.UserID, hash); err != nil {
		return s.fail("reset", apperr.Upstream(op, err))
	}
	if err := s.store.DeleteResetToken(ctx, rt.UserID); err != nil {
		return s.fail("reset", apperr.Upstream(op, err))
	}
	if err := s.store.DeleteUserSessions(ctx, rt.UserID); err != nil {
		s.log.Error("session revocation after reset failed", zap.Int64("user_id", rt.UserID), zap.Error(err))
	}

	metrics.AuthEvents.WithLabelValues("reset", "ok").Inc()
	s.log.Info("password reset completed", zap.Int64("user_id", rt.UserID))
	return nil
}

/*──────────────────────────── housekeeping ────────────────────────────────*/

// PurgeExpired removes dead sessions and reset tokens.
func (s *Service) PurgeExpired(ctx context.Context) (sessions, tokens int64, err error) {
	now := s.now().UTC()
	if sessions, err = s.store.PurgeSessions(ctx, now); err != nil {
		return 0, 0, apperr.Upstream("auth.PurgeExpired", err)
	}
	if tokens, err = s.store.PurgeResetTokens(ctx, now); err != nil {
		return sessions, 0, apperr.Upstream("auth.PurgeExpired", err)
	}
	return sessions, tokens, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// fail counts and logs a failed event, then returns err unchanged.
func (s *Service) fail(event string, err error) error {
	kind := apperr.KindOf(err)
	metrics.AuthEvents.WithLabelValues(event, string(kind)).Inc()
	if kind == apperr.KindUpstream {
		s.log.Error(event+" failed", zap.Error(err))
	} else {
		s.log.Debug(event+" rejected", zap.Error(err))
	}
	return err
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

var validate = validator.New()

func validateEmail(op, email string) error {
	if err := validate.Var(email, "required,email,max=320"); err != nil {
		return apperr.Validation(op, "invalid email address")
	}
	return nil
}
