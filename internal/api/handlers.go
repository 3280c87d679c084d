package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/nimbusdesk/console/internal/audit"
	"github.com/nimbusdesk/console/internal/authz"
	"github.com/nimbusdesk/console/internal/health"
	"github.com/nimbusdesk/console/internal/models"
	"github.com/nimbusdesk/console/internal/risk"
	"github.com/nimbusdesk/console/internal/wferr"
	"github.com/nimbusdesk/console/internal/workflow"
)

// PermAuditView guards the audit reporting endpoint.
const PermAuditView = "audit:view"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	wf        *workflow.Workflow
	resolver  *authz.Resolver
	gate      *authz.Gate
	catalog   *risk.Catalog
	policy    *risk.ConfirmationPolicy
	auditor   audit.Reader
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(wf *workflow.Workflow, resolver *authz.Resolver, catalog *risk.Catalog,
	policy *risk.ConfirmationPolicy, auditor audit.Reader, checker *health.Checker,
	logger zerolog.Logger) *Handlers {
	return &Handlers{
		wf:        wf,
		resolver:  resolver,
		gate:      authz.NewGate(resolver),
		catalog:   catalog,
		policy:    policy,
		auditor:   auditor,
		checker:   checker,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// CreateRequest handles POST /api/v1/requests.
func (h *Handlers) CreateRequest(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	var body CreateRequestBody
	if err := c.BodyParser(&body); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if body.ActionID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_action", "Bad Request",
			"action_id is required")
	}

	req, err := h.wf.Create(c.UserContext(), body.ActionID, body.Parameters, p.ID)
	if err != nil {
		return h.workflowProblem(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(RequestResponse{Request: req})
}

// GetRequest handles GET /api/v1/requests/:id.
func (h *Handlers) GetRequest(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	req, err := h.wf.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.workflowProblem(c, err)
	}

	if !h.canSee(p, req) {
		// Indistinguishable from a missing request: existence is information.
		return problemResponse(c, fiber.StatusNotFound,
			"request_not_found", "Not Found",
			"Request not found: "+c.Params("id"))
	}
	return c.JSON(RequestResponse{Request: req})
}

// canSee reports whether the principal may read a request: its requester,
// anyone with decision authority, or an audit viewer.
func (h *Handlers) canSee(p models.Principal, req *models.ActionRequest) bool {
	if req.RequesterID == p.ID {
		return true
	}
	if _, approver := h.resolver.DecisionTier(p); approver {
		return true
	}
	return h.resolver.HasPermission(p, PermAuditView)
}

// DecideRequest handles POST /api/v1/requests/:id/decision.
func (h *Handlers) DecideRequest(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	var body DecisionBody
	if err := c.BodyParser(&body); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	req, err := h.wf.Decide(c.UserContext(), c.Params("id"), p.ID, body.Approve, body.Version)
	if err != nil {
		return h.workflowProblem(c, err)
	}
	return c.JSON(RequestResponse{Request: req})
}

// CancelRequest handles POST /api/v1/requests/:id/cancel.
func (h *Handlers) CancelRequest(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	req, err := h.wf.Cancel(c.UserContext(), c.Params("id"), p.ID)
	if err != nil {
		return h.workflowProblem(c, err)
	}
	return c.JSON(RequestResponse{Request: req})
}

// ListPending handles GET /api/v1/requests/pending.
func (h *Handlers) ListPending(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	pending, err := h.wf.ListPending(c.UserContext(), p.ID)
	if err != nil {
		return h.workflowProblem(c, err)
	}
	if pending == nil {
		pending = []*models.ActionRequest{}
	}
	return c.JSON(RequestListResponse{Requests: pending, Total: len(pending)})
}

// ListActions handles GET /api/v1/actions. The requires_approval flag is
// computed for the calling principal's tier.
func (h *Handlers) ListActions(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	tier := h.resolver.Tier(p)
	actions := h.catalog.Actions()
	views := make([]ActionView, 0, len(actions))
	for _, a := range actions {
		autoExec := a.Risk <= models.RiskLow && !h.policy.RequiresConfirmation(a.Risk, tier)
		views = append(views, ActionView{
			ID:               a.ID,
			Name:             a.Name,
			Risk:             a.Risk.String(),
			RequiresApproval: !autoExec,
			EstimatedSeconds: a.EstimatedSeconds,
		})
	}
	return c.JSON(ActionListResponse{Actions: views})
}

// QueryAudit handles GET /api/v1/audit.
func (h *Handlers) QueryAudit(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}
	if !h.resolver.HasPermission(p, PermAuditView) {
		return problemResponse(c, fiber.StatusForbidden,
			"forbidden", "Forbidden",
			"Audit access requires "+PermAuditView)
	}

	q := audit.Query{
		ActorID:    c.Query("actor_id"),
		ResourceID: c.Query("resource_id"),
		EventType:  c.Query("event_type"),
		Limit:      c.QueryInt("limit", 100),
	}
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_since", "Bad Request",
				"since must be RFC 3339: "+err.Error())
		}
		q.Since = t
	}
	if raw := c.Query("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_until", "Bad Request",
				"until must be RFC 3339: "+err.Error())
		}
		q.Until = t
	}

	entries, err := h.auditor.Query(q)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"audit_query_failed", "Internal Server Error", err.Error())
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return c.JSON(AuditListResponse{Entries: entries, Total: len(entries)})
}

// Visibility handles POST /api/v1/visibility: should the UI render an
// affordance for this principal? Advisory only; every operation is re-checked
// server-side when invoked.
func (h *Handlers) Visibility(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	var body VisibilityBody
	if err := c.BodyParser(&body); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	return c.JSON(VisibilityResponse{Visible: h.gate.IsVisible(p, body.Required, body.MatchAll)})
}

// Capabilities handles GET /api/v1/capabilities.
func (h *Handlers) Capabilities(c *fiber.Ctx) error {
	p, ok := principalFromCtx(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_principal", "Unauthorized", "No authenticated principal")
	}

	registry := h.resolver.Registry()
	resp := CapabilitiesResponse{
		PrincipalID: p.ID,
		Role:        p.Role,
		Tier:        string(h.resolver.Tier(p)),
		Permissions: registry.PermissionsFor(p.Role),
		Universal:   registry.IsUniversal(p.Role),
	}
	if tier, ok := h.resolver.DecisionTier(p); ok {
		resp.CanDecide = true
		resp.DecisionTier = tier.String()
	}
	return c.JSON(resp)
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"uptime": time.Since(h.startTime).String(),
	})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.UserContext())

	ready := true
	for _, s := range results {
		if s == health.StatusDown {
			ready = false
			break
		}
	}

	status := fiber.StatusOK
	state := "ready"
	if !ready {
		status = fiber.StatusServiceUnavailable
		state = "not_ready"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": state,
		"checks": results,
	})
}

// workflowProblem maps workflow errors to Problem Detail responses.
func (h *Handlers) workflowProblem(c *fiber.Ctx, err error) error {
	var verr *wferr.ValidationError
	if errors.As(err, &verr) {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_parameters", "Bad Request",
			verr.Error())
	}

	switch {
	case errors.Is(err, wferr.ErrInvalidParameters), errors.Is(err, wferr.ErrUnknownAction):
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_request", "Bad Request", err.Error())
	case errors.Is(err, wferr.ErrUnauthorized):
		return problemResponse(c, fiber.StatusForbidden,
			"forbidden", "Forbidden", err.Error())
	case errors.Is(err, wferr.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"request_not_found", "Not Found", err.Error())
	case errors.Is(err, wferr.ErrAlreadyDecided):
		return problemResponse(c, fiber.StatusConflict,
			"already_decided", "Conflict", err.Error())
	case errors.Is(err, wferr.ErrStaleRequest):
		return problemResponse(c, fiber.StatusConflict,
			"stale_version", "Conflict", err.Error())
	}

	h.logger.Error().Err(err).Str("path", c.Path()).Msg("workflow operation failed")
	return problemResponse(c, fiber.StatusInternalServerError,
		"internal_error", "Internal Server Error",
		"An internal error occurred")
}
