// Package service implements the auth orchestrator: the service-facing
// login/register/logout entry points that sequence credential verification,
// identity resolution, and token issuance per identity provider.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agora/internal/auth/device"
	"agora/internal/auth/models"
	"agora/internal/auth/password"
	"agora/internal/auth/sso"
	"agora/internal/auth/store"
	"agora/internal/auth/store/revocation"
	"agora/internal/auth/token"
	"agora/internal/platform/metrics"
	dErrors "agora/pkg/domain-errors"
	audit "agora/pkg/platform/audit"
	"agora/pkg/requestcontext"
	"agora/pkg/sentinel"
)

// Credential and provider failures all collapse to this message at the
// boundary so login responses cannot be used as a username oracle. The
// distinguishing detail is logged server-side only.
const unifiedLoginError = "invalid credentials"

// SSOValidator validates an external SSO token and returns the identity
// assertion it vouches for.
type SSOValidator interface {
	Validate(ctx context.Context, remoteIP, ssoToken string) (*models.ExternalAssertion, error)
}

// Revoker is the token revocation list. A nil Revoker disables logout.
type Revoker interface {
	Revoke(ctx context.Context, digest string, ttl time.Duration) error
}

// Service is the auth orchestrator. All fields are set at construction and
// immutable afterwards; per-request work is pure over its own inputs, so the
// service is safe for concurrent use.
type Service struct {
	users   store.UserStore
	sso     SSOValidator
	codec   *token.Codec
	revoker Revoker
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New wires the orchestrator. revoker may be nil (revocation disabled).
func New(
	users store.UserStore,
	ssoValidator SSOValidator,
	codec *token.Codec,
	revoker Revoker,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:   users,
		sso:     ssoValidator,
		codec:   codec,
		revoker: revoker,
		audit:   auditPub,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("agora/auth"),
	}
}

// Login authenticates a user with the given provider and returns the user
// record plus an opaque session token. Request-shape validation happens
// before any I/O.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login",
		trace.WithAttributes(attribute.String("auth.provider", string(req.Provider))))
	defer span.End()

	if err := validateLoginShape(req); err != nil {
		return nil, err
	}

	var (
		user *models.User
		err  error
	)
	switch req.Provider {
	case models.ProviderSSO:
		user, err = s.loginSSO(ctx, req)
	case models.ProviderPassword:
		user, err = s.loginPassword(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		s.metrics.RecordLogin(string(req.Provider), "failure")
		s.emitLoginAudit(ctx, audit.ActionLoginFailed, req, user, dErrors.MessageOf(err))
		return nil, err
	}

	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	opaque, err := s.codec.Issue(strconv.FormatInt(user.ID, 10), email)
	if err != nil {
		span.RecordError(err)
		s.metrics.RecordLogin(string(req.Provider), "failure")
		s.logger.ErrorContext(ctx, "token issuance failed",
			"user_id", user.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, unifiedLoginError)
	}

	s.metrics.RecordLogin(string(req.Provider), "success")
	s.emitLoginAudit(ctx, audit.ActionLoginSucceeded, req, user, "")

	return &models.LoginResult{Success: true, User: user, Token: opaque}, nil
}

// validateLoginShape enforces per-provider required fields. These failures
// carry no secret information and are surfaced precisely.
func validateLoginShape(req models.LoginRequest) error {
	if !req.Provider.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid login provider")
	}
	switch req.Provider {
	case models.ProviderSSO:
		if req.SSOToken == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "sso token cannot be empty")
		}
		if req.IPAddress == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "ip address cannot be empty")
		}
	case models.ProviderPassword:
		if req.Username == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "username cannot be empty")
		}
		if req.Password == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
		}
	}
	return nil
}

// loginSSO validates the external token and resolves (or provisions) the
// durable user record for the asserted identity.
func (s *Service) loginSSO(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	assertion, err := s.sso.Validate(ctx, req.IPAddress, req.SSOToken)
	if err != nil {
		s.logger.WarnContext(ctx, "sso validation failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if errors.Is(err, sso.ErrUnreachable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, unifiedLoginError)
	}

	return s.resolveExternalIdentity(ctx, assertion)
}

// resolveExternalIdentity looks up the user keyed by the external identity
// id, auto-provisioning on first login. Concurrent first-logins race on the
// insert; the loser sees the unique-constraint conflict and re-fetches.
func (s *Service) resolveExternalIdentity(ctx context.Context, assertion *models.ExternalAssertion) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, assertion.IdentityID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user lookup failed")
	}

	created, err := s.users.Insert(ctx, models.NewUser{
		Username: assertion.IdentityID,
		Provider: models.ProviderSSO,
		Nickname: assertion.Name,
	})
	if err == nil {
		s.metrics.UsersCreated.Inc()
		return created, nil
	}
	if errors.Is(err, sentinel.ErrConflict) {
		// Lost the provisioning race; the row exists now.
		user, err := s.users.FindByUsername(ctx, assertion.IdentityID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user lookup failed")
		}
		return user, nil
	}
	return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user provisioning failed")
}

func (s *Service) loginPassword(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "login for unknown username",
				"username", req.Username,
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil, dErrors.New(dErrors.CodeUnauthorized, unifiedLoginError)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user lookup failed")
	}

	ok, err := password.Verify(user.PasswordHash, req.Password)
	if err != nil {
		// Either a password-provider record without a hash or an
		// unreadable hash: corrupted state, not bad credentials.
		s.logger.ErrorContext(ctx, "stored credential unusable",
			"user_id", user.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential verification failed")
	}
	if !ok {
		s.logger.WarnContext(ctx, "wrong password",
			"username", req.Username,
			"request_id", requestcontext.RequestID(ctx),
		)
		return user, dErrors.New(dErrors.CodeUnauthorized, unifiedLoginError)
	}
	return user, nil
}

// Register creates a local-password user. SSO identities are provisioned
// implicitly on first login and never registered explicitly.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register",
		trace.WithAttributes(attribute.String("auth.provider", string(req.Provider))))
	defer span.End()

	if req.Provider == models.ProviderSSO {
		return nil, dErrors.New(dErrors.CodeUnavailable, "sso identities cannot register")
	}
	if req.Provider != models.ProviderPassword {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid login provider")
	}
	if req.Username == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username cannot be empty")
	}
	if req.Password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "password hashing failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register user")
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}
	created, err := s.users.Insert(ctx, models.NewUser{
		Username:     req.Username,
		Email:        email,
		Provider:     models.ProviderPassword,
		Nickname:     req.Username,
		PasswordHash: &hash,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "user already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register user")
	}

	s.metrics.UsersCreated.Inc()
	s.audit.Emit(ctx, audit.Event{
		Action:    audit.ActionUserRegistered,
		UserID:    created.ID,
		Username:  created.Username,
		Provider:  string(models.ProviderPassword),
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		RequestID: requestcontext.RequestID(ctx),
	})

	return &models.RegisterResult{Success: true, Message: "created success"}, nil
}

// Logout revokes the presented token until its natural expiry. With no
// revocation list configured, logout is unavailable (tokens are then valid
// until they expire, as in deployments without Redis).
func (s *Service) Logout(ctx context.Context, opaque []byte) error {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer span.End()

	if s.revoker == nil {
		return dErrors.New(dErrors.CodeUnavailable, "session revocation is not enabled")
	}

	claims, err := s.codec.Validate(opaque)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}

	now := requestcontext.Now(ctx)
	remaining := time.Duration(claims.ExpiresAt()-now.Unix()) * time.Second
	if remaining <= 0 {
		// Already expired; nothing to revoke.
		return nil
	}

	if err := s.revoker.Revoke(ctx, revocation.Digest(opaque), remaining); err != nil {
		span.RecordError(err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}

	s.audit.Emit(ctx, audit.Event{
		Action:    audit.ActionLogout,
		Username:  claims.Audience,
		ClientIP:  requestcontext.ClientIP(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})
	return nil
}

func (s *Service) emitLoginAudit(ctx context.Context, action audit.Action, req models.LoginRequest, user *models.User, reason string) {
	event := audit.Event{
		Action:    action,
		Provider:  string(req.Provider),
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		RequestID: requestcontext.RequestID(ctx),
		Reason:    reason,
	}
	if user != nil {
		event.UserID = user.ID
		event.Username = user.Username
	} else if req.Provider == models.ProviderPassword {
		event.Username = req.Username
	}
	s.audit.Emit(ctx, event)
}
