package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/console/internal/authz"
	"github.com/nimbusdesk/console/internal/directory"
	"github.com/nimbusdesk/console/internal/health"
	"github.com/nimbusdesk/console/internal/models"
	"github.com/nimbusdesk/console/internal/risk"
	"github.com/nimbusdesk/console/internal/store"
	"github.com/nimbusdesk/console/internal/workflow"
)

const testJWTSecret = "test-secret"

type executorFunc func(actionID string) (string, error)

func (f executorFunc) Execute(_ context.Context, actionID string, _ map[string]string) (string, error) {
	return f(actionID)
}

// testApp builds a Fiber app over a real store and workflow.
func testApp(t *testing.T, authMode string) *fiber.App {
	return testAppWith(t, authMode, nil)
}

func testAppWith(t *testing.T, authMode string, mutate func(*ServerConfig)) *fiber.App {
	t.Helper()
	logger := zerolog.Nop()

	s, err := store.New(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	d := directory.New()
	for id, role := range map[string]string{
		"con":  "contractor",
		"con2": "contractor",
		"stf":  "staff",
		"mgr":  "manager",
		"ita":  "it_admin",
	} {
		d.Put(models.Principal{ID: id, Role: role, IsActive: true})
	}
	d.Put(models.Principal{ID: "ghost", Role: "staff", IsActive: false})

	resolver := authz.NewResolver(authz.DefaultRegistry())
	catalog := risk.DefaultCatalog()
	policy := risk.DefaultConfirmationPolicy()

	wf, err := workflow.New(workflow.Options{
		Backend:    s,
		Audit:      s,
		Resolver:   resolver,
		Catalog:    catalog,
		Policy:     policy,
		Principals: d,
		Executor:   executorFunc(func(actionID string) (string, error) { return "done", nil }),
		Window:     time.Minute,
	}, logger)
	require.NoError(t, err)

	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(s))

	handlers := NewHandlers(wf, resolver, catalog, policy, s, checker, logger)
	cfg := ServerConfig{
		ListenAddr: ":0",
		AuthConfig: AuthConfig{Mode: authMode, JWTSecret: testJWTSecret},
		RateLimit:  RateLimitConfig{RPS: 1000},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg, handlers, d, nil, logger)

	return srv.App()
}

func doJSON(t *testing.T, app *fiber.App, method, path, principal, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("X-Principal-ID", principal)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_Healthz(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_RequestIDHeader(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/healthz", "", "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestServer_CORSAllowedOrigin(t *testing.T) {
	app := testAppWith(t, "header", func(cfg *ServerConfig) {
		cfg.CORSOrigins = []string{"https://console.example.com"}
	})

	req, err := http.NewRequest("OPTIONS", "/api/v1/requests", strings.NewReader(""))
	require.NoError(t, err)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "https://console.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_Readyz(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics_NoAuth(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MissingPrincipalHeader(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/api/v1/capabilities", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_UnknownPrincipal(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/api/v1/capabilities", "nobody", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_InactivePrincipal(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/api/v1/capabilities", "ghost", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func signToken(t *testing.T, subject, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestServer_JWTAuth(t *testing.T) {
	app := testApp(t, "jwt")

	req, _ := http.NewRequest("GET", "/api/v1/capabilities", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "stf", testJWTSecret))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	caps := decode[CapabilitiesResponse](t, resp)
	assert.Equal(t, "stf", caps.PrincipalID)
	assert.Equal(t, "staff", caps.Role)
	assert.True(t, caps.CanDecide)
	assert.Equal(t, "low", caps.DecisionTier)
}

func TestServer_JWTAuth_BadSignature(t *testing.T) {
	app := testApp(t, "jwt")

	req, _ := http.NewRequest("GET", "/api/v1/capabilities", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "stf", "wrong-secret"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_JWTAuth_NoBearer(t *testing.T) {
	app := testApp(t, "jwt")

	req, _ := http.NewRequest("GET", "/api/v1/capabilities", nil)
	req.Header.Set("Authorization", "Basic abc")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_CreateRequest(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "POST", "/api/v1/requests", "con",
		`{"action_id":"kill-process","parameters":{"pid":"42"}}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[RequestResponse](t, resp)
	assert.Equal(t, models.StatusPending, created.Request.Status)
	assert.Equal(t, "con", created.Request.RequesterID)
}

func TestServer_CreateRequest_UnknownAction(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "POST", "/api/v1/requests", "con",
		`{"action_id":"nuke-datacenter"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CreateRequest_InvalidParams(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "POST", "/api/v1/requests", "con",
		`{"action_id":"kill-process","parameters":{"pid":"abc"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_parameters", problem.Type)
}

func TestServer_CreateRequest_MissingAction(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "POST", "/api/v1/requests", "con", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func createPending(t *testing.T, app *fiber.App) *models.ActionRequest {
	t.Helper()
	resp := doJSON(t, app, "POST", "/api/v1/requests", "con",
		`{"action_id":"kill-process","parameters":{"pid":"42"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[RequestResponse](t, resp).Request
}

func TestServer_DecisionFlow(t *testing.T) {
	app := testApp(t, "header")
	created := createPending(t, app)

	// Staff may not decide a high-risk request
	resp := doJSON(t, app, "POST", "/api/v1/requests/"+created.ID+"/decision", "stf",
		`{"approve":true,"version":0}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// it_admin may
	resp = doJSON(t, app, "POST", "/api/v1/requests/"+created.ID+"/decision", "ita",
		`{"approve":false,"version":0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	decided := decode[RequestResponse](t, resp).Request
	assert.Equal(t, models.StatusDenied, decided.Status)
	assert.Equal(t, "ita", decided.DecidedBy)

	// A second decision conflicts
	resp = doJSON(t, app, "POST", "/api/v1/requests/"+created.ID+"/decision", "ita",
		`{"approve":true,"version":0}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_Decision_StaleVersion(t *testing.T) {
	app := testApp(t, "header")
	created := createPending(t, app)

	resp := doJSON(t, app, "POST", "/api/v1/requests/"+created.ID+"/decision", "ita",
		`{"approve":true,"version":9}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "stale_version", problem.Type)
}

func TestServer_Cancel(t *testing.T) {
	app := testApp(t, "header")
	created := createPending(t, app)

	resp := doJSON(t, app, "POST", "/api/v1/requests/"+created.ID+"/cancel", "con", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancelled := decode[RequestResponse](t, resp).Request
	assert.Equal(t, models.StatusDenied, cancelled.Status)

	// Someone else's cancel is forbidden
	other := createPending(t, app)
	resp = doJSON(t, app, "POST", "/api/v1/requests/"+other.ID+"/cancel", "con2", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_GetRequest_Visibility(t *testing.T) {
	app := testApp(t, "header")
	created := createPending(t, app)

	// Requester sees it
	resp := doJSON(t, app, "GET", "/api/v1/requests/"+created.ID, "con", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Approver sees it
	resp = doJSON(t, app, "GET", "/api/v1/requests/"+created.ID, "ita", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// An unrelated contractor cannot tell it exists
	resp = doJSON(t, app, "GET", "/api/v1/requests/"+created.ID, "con2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListPending(t *testing.T) {
	app := testApp(t, "header")
	createPending(t, app)
	createPending(t, app)

	resp := doJSON(t, app, "GET", "/api/v1/requests/pending", "ita", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[RequestListResponse](t, resp)
	assert.Equal(t, 2, list.Total)

	// Unrelated contractor sees none of them
	resp = doJSON(t, app, "GET", "/api/v1/requests/pending", "con2", "")
	list = decode[RequestListResponse](t, resp)
	assert.Equal(t, 0, list.Total)
}

func TestServer_ListActions(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "GET", "/api/v1/actions", "con", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[ActionListResponse](t, resp)
	require.NotEmpty(t, list.Actions)

	byID := make(map[string]ActionView, len(list.Actions))
	for _, a := range list.Actions {
		byID[a.ID] = a
	}
	// Contractors confirm even low-risk actions; high always needs approval.
	assert.True(t, byID["flush-dns"].RequiresApproval)
	assert.True(t, byID["kill-process"].RequiresApproval)
	assert.False(t, byID["ping-host"].RequiresApproval)
}

func TestServer_Visibility(t *testing.T) {
	app := testApp(t, "header")

	resp := doJSON(t, app, "POST", "/api/v1/visibility", "con",
		`{"required":["user:manage"]}`)
	v := decode[VisibilityResponse](t, resp)
	assert.False(t, v.Visible)

	resp = doJSON(t, app, "POST", "/api/v1/visibility", "mgr",
		`{"required":["user:manage"]}`)
	v = decode[VisibilityResponse](t, resp)
	assert.True(t, v.Visible)

	resp = doJSON(t, app, "POST", "/api/v1/visibility", "mgr",
		`{"required":["user:manage","approval:decide:high"],"match_all":true}`)
	v = decode[VisibilityResponse](t, resp)
	assert.False(t, v.Visible)
}

func TestServer_Audit_RequiresPermission(t *testing.T) {
	app := testApp(t, "header")
	createPending(t, app)

	resp := doJSON(t, app, "GET", "/api/v1/audit", "con", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, "GET", "/api/v1/audit", "mgr", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[AuditListResponse](t, resp)
	assert.GreaterOrEqual(t, list.Total, 1)
}

func TestServer_Audit_Filters(t *testing.T) {
	app := testApp(t, "header")
	created := createPending(t, app)
	createPending(t, app)

	resp := doJSON(t, app, "GET", "/api/v1/audit?resource_id="+created.ID, "mgr", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[AuditListResponse](t, resp)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, created.ID, list.Entries[0].ResourceID)

	resp = doJSON(t, app, "GET", "/api/v1/audit?since=not-a-time", "mgr", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
