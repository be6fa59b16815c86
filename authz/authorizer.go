// Package authz composes rate limiting, identity resolution, permission
// evaluation and audit into the single authorization contract invoked by
// every protected operation.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/campuskit/authcore/audit"
	"github.com/campuskit/authcore/identity"
	"github.com/campuskit/authcore/observability"
	"github.com/campuskit/authcore/permission"
	"github.com/campuskit/authcore/ratelimit"
)

// authzTracer is the OTEL tracer used for authorization operations.
var authzTracer = otel.Tracer("authcore/authz")

// Verdict reasons.
const (
	ReasonRateLimited       = "rate limit exceeded"
	ReasonNotAuthenticated  = "authentication required"
	ReasonInsufficientRole  = "insufficient role"
	ReasonPermissionDenied  = "permission denied"
	ReasonConditionNotMet   = "permission condition not met"
	ReasonNoRequirement     = "no role or permission requirement configured"
	reasonInternalRecovered = "authorization aborted: "
)

// Request is one authorization attempt against a protected operation.
type Request struct {
	// Credentials carries the raw credential material from the request.
	Credentials *identity.Credentials

	// RemoteIP is the caller's source address, used as the rate-limit
	// identifier when no user is known yet.
	RemoteIP string

	// UserAgent is the caller's user agent, recorded in audit events.
	UserAgent string

	// UserID is the caller's user ID when already known upstream;
	// preferred over RemoteIP as the rate-limit identifier.
	UserID string

	// RequiredRoles grants access when the principal's role is one of
	// these. Mutually exclusive with Resource/Action.
	RequiredRoles []permission.Role

	// Resource and Action express a permission requirement evaluated
	// against the permission table.
	Resource permission.Resource
	Action   permission.Action

	// ConditionContext supplies the facts conditional grants need.
	ConditionContext *permission.ConditionContext

	// Metadata is attached to audit events.
	Metadata map[string]any
}

// identifier returns the rate-limit identifier for the request.
func (r *Request) identifier() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.RemoteIP
}

// Verdict is the outcome of an authorization attempt. Upstream handlers
// translate it into status codes; that translation is not authcore's
// concern.
type Verdict struct {
	// Authorized indicates the request may proceed.
	Authorized bool

	// Principal is the resolved identity. Present on success and on
	// permission denials (for upstream logging); absent when
	// authentication itself failed.
	Principal *identity.Principal

	// Reason explains a denial.
	Reason string

	// RateLimited distinguishes throttling from the other denials so
	// callers can apply distinct backoff UX.
	RateLimited bool
}

// Authorizer is the single callable contract of the pipeline.
type Authorizer interface {
	// Authorize runs the ordered pipeline: rate limit, identity
	// resolution, permission evaluation. Fail-closed: it never panics
	// and never returns an implicit allow.
	Authorize(ctx context.Context, req *Request) *Verdict
}

// authorizer implements the Authorizer interface.
type authorizer struct {
	limiter   ratelimit.Limiter
	resolver  *identity.Resolver
	evaluator *permission.Evaluator
	recorder  audit.Recorder
	logger    observability.Logger
	metrics   *Metrics
}

// Option is a functional option for the authorizer.
type Option func(*authorizer)

// WithLimiter sets the rate limiter applied before identity resolution.
func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(a *authorizer) {
		a.limiter = limiter
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(recorder audit.Recorder) Option {
	return func(a *authorizer) {
		a.recorder = recorder
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *authorizer) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(a *authorizer) {
		a.metrics = metrics
	}
}

// New creates an authorizer over the injected resolver and evaluator.
// Stores are injected rather than global so tests can swap in fresh
// instances.
func New(resolver *identity.Resolver, evaluator *permission.Evaluator, opts ...Option) (Authorizer, error) {
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if evaluator == nil {
		return nil, errors.New("permission evaluator is required")
	}

	a := &authorizer{
		limiter:   ratelimit.NewNoopLimiter(),
		resolver:  resolver,
		evaluator: evaluator,
		recorder:  audit.NewNoopRecorder(),
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Authorize implements Authorizer. Any panic inside a step is recovered
// and converted into an unauthorized verdict; nothing propagates.
func (a *authorizer) Authorize(ctx context.Context, req *Request) (verdict *Verdict) {
	start := time.Now()

	ctx, span := authzTracer.Start(ctx, "authz.authorize",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("authz.resource", string(req.Resource)),
			attribute.String("authz.action", string(req.Action)),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("authorization panic recovered",
				observability.Any("panic", r))
			verdict = &Verdict{
				Authorized: false,
				Reason:     reasonInternalRecovered + fmt.Sprint(r),
			}
		}
		a.finish(span, verdict, time.Since(start))
	}()

	if v := a.checkRateLimit(ctx, req); v != nil {
		return v
	}

	principal, v := a.resolvePrincipal(ctx, req)
	if v != nil {
		return v
	}

	if v := a.checkRequirement(ctx, req, principal); v != nil {
		return v
	}

	a.recorder.Log(ctx, audit.AuthorizationEvent(
		audit.OutcomeSuccess,
		principal.ID, principal.Email, string(principal.Role),
		string(req.Resource), string(req.Action), "").
		WithOrigin(req.RemoteIP, req.UserAgent))

	return &Verdict{
		Authorized: true,
		Principal:  principal,
	}
}

// checkRateLimit runs step 1. Returns a verdict on denial, nil to
// continue.
func (a *authorizer) checkRateLimit(ctx context.Context, req *Request) *Verdict {
	id := req.identifier()
	if id == "" {
		return nil
	}

	result, err := a.limiter.Allow(ctx, id)
	if err != nil {
		// Fail closed: a broken limiter backend denies rather than
		// silently waving traffic through.
		a.logger.Error("rate limit check failed",
			observability.String("identifier", id),
			observability.Error(err))
		a.recorder.Log(ctx, audit.RateLimitEvent(id, err.Error()).
			WithOrigin(req.RemoteIP, req.UserAgent))
		return &Verdict{
			Authorized:  false,
			Reason:      ReasonRateLimited,
			RateLimited: true,
		}
	}

	if !result.Allowed {
		a.recorder.Log(ctx, audit.RateLimitEvent(id, ReasonRateLimited).
			WithOrigin(req.RemoteIP, req.UserAgent))
		return &Verdict{
			Authorized:  false,
			Reason:      ReasonRateLimited,
			RateLimited: true,
		}
	}

	return nil
}

// resolvePrincipal runs step 2. Returns the principal, or a verdict on
// failure.
func (a *authorizer) resolvePrincipal(ctx context.Context, req *Request) (*identity.Principal, *Verdict) {
	principal, err := a.resolver.Resolve(ctx, req.Credentials)
	if err != nil {
		a.recorder.Log(ctx, audit.AuthenticationEvent(
			audit.OutcomeFailure, req.UserID, "", err.Error()).
			WithOrigin(req.RemoteIP, req.UserAgent))
		return nil, &Verdict{
			Authorized: false,
			Reason:     ReasonNotAuthenticated,
		}
	}
	return principal, nil
}

// checkRequirement runs step 3. Returns a verdict on denial, nil on
// success.
func (a *authorizer) checkRequirement(ctx context.Context, req *Request, principal *identity.Principal) *Verdict {
	reason := a.evaluateRequirement(req, principal)
	if reason == "" {
		return nil
	}

	a.recorder.Log(ctx, audit.AuthorizationEvent(
		audit.OutcomeDenied,
		principal.ID, principal.Email, string(principal.Role),
		string(req.Resource), string(req.Action), reason).
		WithOrigin(req.RemoteIP, req.UserAgent))

	return &Verdict{
		Authorized: false,
		Principal:  principal,
		Reason:     reason,
	}
}

// evaluateRequirement returns an empty string when the principal meets
// the request's requirement, or the denial reason otherwise.
func (a *authorizer) evaluateRequirement(req *Request, principal *identity.Principal) string {
	// A protected operation with no requirement is a wiring bug; deny
	// before any privilege short-circuit so it never becomes an
	// implicit allow.
	if len(req.RequiredRoles) == 0 && (req.Resource == "" || req.Action == "") {
		return ReasonNoRequirement
	}

	// A globally privileged role short-circuits the remaining checks.
	if a.evaluator.HasPermission(principal.Role, permission.ResourceAll, permission.ActionManage) {
		return ""
	}

	if len(req.RequiredRoles) > 0 {
		for _, role := range req.RequiredRoles {
			if principal.Role == role {
				return ""
			}
		}
		return ReasonInsufficientRole
	}

	if !a.evaluator.HasPermission(principal.Role, req.Resource, req.Action) {
		return ReasonPermissionDenied
	}
	if !a.evaluator.CheckWithConditions(principal.Role, req.Resource, req.Action, req.ConditionContext) {
		return ReasonConditionNotMet
	}
	return ""
}

// finish records span attributes and metrics for the final verdict.
func (a *authorizer) finish(span trace.Span, verdict *Verdict, elapsed time.Duration) {
	if verdict == nil {
		return
	}

	outcome := "denied"
	if verdict.Authorized {
		outcome = "authorized"
	} else if verdict.RateLimited {
		outcome = "rate_limited"
	}

	span.SetAttributes(
		attribute.Bool("authz.authorized", verdict.Authorized),
		attribute.Bool("authz.rate_limited", verdict.RateLimited),
		attribute.String("authz.reason", verdict.Reason),
	)

	if a.metrics != nil {
		a.metrics.RecordVerdict(outcome, elapsed)
	}

	a.logger.Debug("authorization verdict",
		observability.String("outcome", outcome),
		observability.String("reason", verdict.Reason),
		observability.Duration("elapsed", elapsed))
}

// Ensure authorizer implements Authorizer.
var _ Authorizer = (*authorizer)(nil)
