// Package workflow implements the approval state machine that turns a proposed
// remote-control action into an audited, at-most-once execution.
//
// States: PENDING → {APPROVED, DENIED, EXPIRED}; APPROVED → EXECUTING →
// {COMPLETED, FAILED}. Every transition is a compare-and-swap on the request's
// version, committed atomically with its audit entry, so transitions on a
// single request are totally ordered and a transition that cannot be audited
// never commits.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nimbusdesk/console/internal/audit"
	"github.com/nimbusdesk/console/internal/authz"
	"github.com/nimbusdesk/console/internal/metrics"
	"github.com/nimbusdesk/console/internal/models"
	"github.com/nimbusdesk/console/internal/notify"
	"github.com/nimbusdesk/console/internal/requestid"
	"github.com/nimbusdesk/console/internal/risk"
	"github.com/nimbusdesk/console/internal/wferr"
)

// PermRequestAction is the token required to submit an action request.
const PermRequestAction = "action:request"

// Backend is the request store: the single source of truth for request state.
// Transition must perform an atomic compare-and-swap on the version and commit
// the audit entry in the same unit of work.
type Backend interface {
	Insert(req *models.ActionRequest, entry models.AuditEntry) error
	Get(id string) (*models.ActionRequest, error)
	Transition(req *models.ActionRequest, expectedVersion int64, from models.RequestStatus, entry models.AuditEntry) (*models.ActionRequest, error)
	ListByStatus(status models.RequestStatus) ([]*models.ActionRequest, error)
	ListOverdue(now time.Time) ([]*models.ActionRequest, error)
}

// Executor performs an approved action. Invoked at most once per request; it
// is assumed idempotent-unsafe, so the workflow never retries it.
type Executor interface {
	Execute(ctx context.Context, actionID string, params map[string]string) (string, error)
}

// PrincipalStore resolves principals at the instant of an authorization check.
type PrincipalStore interface {
	Get(id string) (models.Principal, error)
}

// Options configures a Workflow.
type Options struct {
	Backend    Backend
	Audit      audit.Sink // standalone entries (authorization denials)
	Resolver   *authz.Resolver
	Catalog    *risk.Catalog
	Policy     *risk.ConfirmationPolicy
	Principals PrincipalStore
	Executor   Executor
	Notifier   notify.Notifier     // optional
	Metrics    *metrics.Metrics    // optional
	Window     time.Duration       // approval window; default 30m
	ExecLimit  time.Duration       // executor deadline; default 5m
}

// Workflow owns all ActionRequest records and their transitions.
type Workflow struct {
	backend    Backend
	sink       audit.Sink
	resolver   *authz.Resolver
	catalog    *risk.Catalog
	policy     *risk.ConfirmationPolicy
	principals PrincipalStore
	executor   Executor
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	window     time.Duration
	execLimit  time.Duration
	logger     zerolog.Logger
}

// New creates a workflow. Backend, Audit, Resolver, Catalog, Policy,
// Principals and Executor are required.
func New(opts Options, logger zerolog.Logger) (*Workflow, error) {
	switch {
	case opts.Backend == nil:
		return nil, fmt.Errorf("workflow: backend is required")
	case opts.Audit == nil:
		return nil, fmt.Errorf("workflow: audit sink is required")
	case opts.Resolver == nil:
		return nil, fmt.Errorf("workflow: resolver is required")
	case opts.Catalog == nil:
		return nil, fmt.Errorf("workflow: catalog is required")
	case opts.Policy == nil:
		return nil, fmt.Errorf("workflow: confirmation policy is required")
	case opts.Principals == nil:
		return nil, fmt.Errorf("workflow: principal store is required")
	case opts.Executor == nil:
		return nil, fmt.Errorf("workflow: executor is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Window <= 0 {
		opts.Window = 30 * time.Minute
	}
	if opts.ExecLimit <= 0 {
		opts.ExecLimit = 5 * time.Minute
	}
	return &Workflow{
		backend:    opts.Backend,
		sink:       opts.Audit,
		resolver:   opts.Resolver,
		catalog:    opts.Catalog,
		policy:     opts.Policy,
		principals: opts.Principals,
		executor:   opts.Executor,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		window:     opts.Window,
		execLimit:  opts.ExecLimit,
		logger:     logger.With().Str("component", "workflow").Logger(),
	}, nil
}

// Create validates and persists a new action request. Safe and low-risk
// actions that need no confirmation for the requester's tier are auto-approved
// and scheduled for execution immediately; everything else starts PENDING.
func (w *Workflow) Create(ctx context.Context, actionID string, params map[string]string, requesterID string) (*models.ActionRequest, error) {
	requester, err := w.principals.Get(requesterID)
	if err != nil || !requester.IsActive {
		return nil, wferr.NewAuthzError(requesterID, "active principal")
	}
	if !w.resolver.HasPermission(requester, PermRequestAction) {
		w.recordDenial(ctx, requesterID, "create", "missing "+PermRequestAction)
		return nil, wferr.NewAuthzError(requesterID, PermRequestAction)
	}

	action, ok := w.catalog.Get(actionID)
	if !ok {
		return nil, fmt.Errorf("action %q: %w", actionID, wferr.ErrUnknownAction)
	}
	if field, err := action.ValidateParams(params); err != nil {
		return nil, wferr.NewValidationError(field, err.Error())
	}

	now := time.Now().UTC()
	req := &models.ActionRequest{
		ID:          uuid.New().String(),
		ActionID:    actionID,
		RequesterID: requesterID,
		Parameters:  params,
		Risk:        action.Risk,
		Status:      models.StatusPending,
		Version:     0,
		CreatedAt:   now,
		ExpiresAt:   now.Add(w.window),
	}

	entry := audit.NewEntry(requesterID, audit.EventRequestCreated, req.ID, models.OutcomeSuccess,
		fmt.Sprintf("action=%s risk=%s", actionID, action.Risk))
	if err := w.backend.Insert(req, entry); err != nil {
		w.recordAuditFailure(err)
		return nil, err
	}

	w.logger.Info().
		Str("request_id", req.ID).
		Str("action", actionID).
		Str("risk", action.Risk.String()).
		Str("requester", requesterID).
		Msg("request created")

	tier := w.resolver.Tier(requester)
	autoExec := action.Risk <= models.RiskLow && !w.policy.RequiresConfirmation(action.Risk, tier)

	if w.metrics != nil {
		status := "pending"
		if autoExec {
			status = "auto_approved"
		}
		w.metrics.RecordRequest(action.Risk.String(), status)
	}

	if !autoExec {
		w.notifier.RequestPending(req)
		return req, nil
	}

	// Auto-approve shortcut: only ever for the requester's own safe/low
	// actions. The PENDING→APPROVED hop is still recorded.
	decidedAt := time.Now().UTC()
	upd := *req
	upd.Status = models.StatusApproved
	upd.DecidedAt = &decidedAt
	upd.DecidedBy = requesterID

	approved, err := w.backend.Transition(&upd, req.Version, models.StatusPending,
		audit.NewEntry(requesterID, audit.EventAutoApproved, req.ID, models.OutcomeSuccess, "auto-approved"))
	if err != nil {
		w.recordAuditFailure(err)
		return nil, err
	}

	w.startExecution(approved)
	return w.backend.Get(req.ID)
}

// Decide approves or denies a pending request. The caller supplies the version
// it observed; a mismatch means another decision won the race.
func (w *Workflow) Decide(ctx context.Context, requestID, deciderID string, approved bool, expectedVersion int64) (*models.ActionRequest, error) {
	req, err := w.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		// Same classification the store applies on a failed CAS: an outdated
		// version means the caller lost a race and should re-fetch;
		// AlreadyDecided means its view was current but the request is done.
		if req.Version != expectedVersion {
			return nil, fmt.Errorf("request %s is at version %d, not %d: %w",
				requestID, req.Version, expectedVersion, wferr.ErrStaleRequest)
		}
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.Status, wferr.ErrAlreadyDecided)
	}

	decider, err := w.principals.Get(deciderID)
	if err != nil || !decider.IsActive {
		return nil, wferr.NewAuthzError(deciderID, "active principal")
	}

	if err := w.authorizeDecision(ctx, req, decider); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	upd := *req
	upd.DecidedAt = &now
	upd.DecidedBy = deciderID

	var entry models.AuditEntry
	if approved {
		upd.Status = models.StatusApproved
		entry = audit.NewEntry(deciderID, audit.EventApproved, req.ID, models.OutcomeSuccess,
			fmt.Sprintf("approved by %s", deciderID))
	} else {
		upd.Status = models.StatusDenied
		entry = audit.NewEntry(deciderID, audit.EventDenied, req.ID, models.OutcomeDenied,
			fmt.Sprintf("denied by %s", deciderID))
	}

	decided, err := w.backend.Transition(&upd, expectedVersion, models.StatusPending, entry)
	if err != nil {
		w.recordAuditFailure(err)
		return nil, err
	}

	w.logger.Info().
		Str("request_id", req.ID).
		Str("decider", deciderID).
		Bool("approved", approved).
		Msg("request decided")

	if w.metrics != nil {
		result := "denied"
		if approved {
			result = "approved"
		}
		w.metrics.RecordDecision(result)
		w.metrics.ObserveDecisionLatency(now.Sub(req.CreatedAt).Seconds())
	}

	w.notifier.RequestDecided(decided)

	if approved {
		w.startExecution(decided)
		return w.backend.Get(req.ID)
	}
	return decided, nil
}

// authorizeDecision enforces tier authority and the self-decide rule.
func (w *Workflow) authorizeDecision(ctx context.Context, req *models.ActionRequest, decider models.Principal) error {
	tier, ok := w.resolver.DecisionTier(decider)
	if !ok || tier < req.Risk {
		w.recordDenial(ctx, decider.ID, "decide",
			fmt.Sprintf("request=%s action=%s decision authority below %s", req.ID, req.ActionID, req.Risk))
		return wferr.NewAuthzError(decider.ID, fmt.Sprintf("decision authority for %s risk", req.Risk))
	}

	if decider.ID == req.RequesterID {
		// Self-decision is only ever the low-risk auto-execute path; a
		// medium or high request can never be approved by its requester.
		selfOK := req.Risk <= models.RiskLow &&
			!w.policy.RequiresConfirmation(req.Risk, w.resolver.Tier(decider))
		if !selfOK {
			w.recordDenial(ctx, decider.ID, "decide",
				fmt.Sprintf("request=%s action=%s self-decision not permitted at %s risk", req.ID, req.ActionID, req.Risk))
			return wferr.NewAuthzError(decider.ID, "self-decision at "+req.Risk.String()+" risk")
		}
	}
	return nil
}

// Cancel withdraws the requester's own still-pending request, recorded as a
// denial by the requester. Permitted at any risk tier: withdrawing an
// unexecuted request cannot cause harm.
func (w *Workflow) Cancel(ctx context.Context, requestID, requesterID string) (*models.ActionRequest, error) {
	req, err := w.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		w.recordDenial(ctx, requesterID, "cancel", fmt.Sprintf("request=%s not requester", requestID))
		return nil, wferr.NewAuthzError(requesterID, "ownership of request")
	}
	if req.Status != models.StatusPending {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.Status, wferr.ErrAlreadyDecided)
	}

	now := time.Now().UTC()
	upd := *req
	upd.Status = models.StatusDenied
	upd.DecidedAt = &now
	upd.DecidedBy = requesterID

	cancelled, err := w.backend.Transition(&upd, req.Version, models.StatusPending,
		audit.NewEntry(requesterID, audit.EventCancelled, req.ID, models.OutcomeDenied, "cancelled by requester"))
	if err != nil {
		w.recordAuditFailure(err)
		return nil, err
	}

	w.logger.Info().Str("request_id", req.ID).Msg("request cancelled by requester")
	if w.metrics != nil {
		w.metrics.RecordDecision("cancelled")
	}
	w.notifier.RequestDecided(cancelled)
	return cancelled, nil
}

// Get returns a request, lazily expiring it if its window has passed. Expiry
// precision is advisory: it fires on read or on the periodic sweep.
func (w *Workflow) Get(ctx context.Context, requestID string) (*models.ActionRequest, error) {
	req, err := w.backend.Get(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == models.StatusPending && time.Now().After(req.ExpiresAt) {
		if expired, err := w.expire(req); err == nil {
			return expired, nil
		} else if !wferr.IsConcurrency(err) {
			return nil, err
		}
		// Lost a race against a concurrent decision or sweep; re-read.
		return w.backend.Get(requestID)
	}
	return req, nil
}

// ListPending returns pending requests visible to the principal: all of them
// for principals holding decision authority, otherwise only their own.
// Overdue requests are expired on the way through, not returned.
func (w *Workflow) ListPending(ctx context.Context, principalID string) ([]*models.ActionRequest, error) {
	p, err := w.principals.Get(principalID)
	if err != nil || !p.IsActive {
		return nil, wferr.NewAuthzError(principalID, "active principal")
	}
	_, approver := w.resolver.DecisionTier(p)

	pending, err := w.backend.ListByStatus(models.StatusPending)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]*models.ActionRequest, 0, len(pending))
	for _, req := range pending {
		if now.After(req.ExpiresAt) {
			if _, err := w.expire(req); err != nil && !wferr.IsConcurrency(err) {
				return nil, err
			}
			continue
		}
		if approver || req.RequesterID == principalID {
			out = append(out, req)
		}
	}
	return out, nil
}

// ExpireOverdue sweeps all pending requests past their window. Returns the
// number expired. System-initiated, so no authorization check applies.
func (w *Workflow) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := w.backend.ListOverdue(time.Now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, req := range overdue {
		if _, err := w.expire(req); err != nil {
			if wferr.IsConcurrency(err) {
				continue // decided or expired concurrently
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		w.logger.Info().Int("count", expired).Msg("expired overdue requests")
	}
	return expired, nil
}

func (w *Workflow) expire(req *models.ActionRequest) (*models.ActionRequest, error) {
	upd := *req
	upd.Status = models.StatusExpired

	expired, err := w.backend.Transition(&upd, req.Version, models.StatusPending,
		audit.NewEntry("system", audit.EventExpired, req.ID, models.OutcomeDenied, "expired"))
	if err != nil {
		if !wferr.IsConcurrency(err) {
			w.recordAuditFailure(err)
		}
		return nil, err
	}
	if w.metrics != nil {
		w.metrics.RecordExpired()
	}
	return expired, nil
}

// recordDenial writes a standalone audit entry for an authorization denial.
// The entry names the actor, the attempted operation, and the API call that
// carried the attempt, but never parameters.
func (w *Workflow) recordDenial(ctx context.Context, actorID, operation, details string) {
	if id := requestid.FromContext(ctx); id != "" {
		details = fmt.Sprintf("%s request_id=%s", details, id)
	}
	entry := audit.NewEntry(actorID, audit.EventAuthzDenied, "", models.OutcomeDenied, details)
	if err := w.sink.Append(entry); err != nil {
		w.recordAuditFailure(err)
	}
	if w.metrics != nil {
		w.metrics.RecordAuthzDenied(operation)
	}
}

func (w *Workflow) recordAuditFailure(err error) {
	if errors.Is(err, wferr.ErrStaleRequest) || errors.Is(err, wferr.ErrAlreadyDecided) || errors.Is(err, wferr.ErrNotFound) {
		return
	}
	w.logger.Error().Err(err).Msg("transition aborted: store or audit write failed")
	if w.metrics != nil {
		w.metrics.RecordAuditFailure()
	}
}
