package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vmwarden/internal/cloud"
	"vmwarden/internal/config"
	"vmwarden/internal/manager"
	"vmwarden/internal/metrics"
	"vmwarden/internal/middleware"
	"vmwarden/internal/models"
	"vmwarden/internal/report"
)

// apiProvider is a canned backend for handler tests.
type apiProvider struct {
	targets    []string
	power      map[string]models.PowerState
	heartbeats map[string]int
}

func (p *apiProvider) Status(ctx context.Context, target string) (models.PowerState, error) {
	state, ok := p.power[target]
	if !ok {
		return models.PowerUnknown, fmt.Errorf("%w: %s not found", cloud.ErrResourceLookup, target)
	}
	return state, nil
}

func (p *apiProvider) Metric(ctx context.Context, target, metric string, window time.Duration) ([]models.MetricSample, error) {
	value := 15.0
	if metric == cloud.MetricAvailableMemory {
		value = 400 * 1024 * 1024
	}
	return []models.MetricSample{{Timestamp: time.Now(), Value: value}}, nil
}

func (p *apiProvider) HeartbeatCount(ctx context.Context, target string, window time.Duration) (int, error) {
	return p.heartbeats[target], nil
}

func (p *apiProvider) Stop(ctx context.Context, target string) error {
	p.power[target] = models.PowerStopped
	return nil
}

func (p *apiProvider) Start(ctx context.Context, target string) error {
	p.power[target] = models.PowerRunning
	return nil
}

func (p *apiProvider) ListTargets(ctx context.Context, resourceGroup string) ([]string, error) {
	return p.targets, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *apiProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := &apiProvider{
		targets: []string{"web-01", "db-01"},
		power: map[string]models.PowerState{
			"web-01": models.PowerRunning,
			"db-01":  models.PowerStopped,
		},
		heartbeats: map[string]int{"web-01": 10, "db-01": 0},
	}

	cfg := config.Default()
	cfg.Provider.ResourceGroup = "staging"
	cfg.Scheduler.Enabled = false
	cfg.Notify.Enabled = false
	reports, err := report.NewWriter(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("report writer: %v", err)
	}
	mgr := manager.New(cfg, provider, reports, metrics.New(), zap.NewNop())
	api := New(mgr, middleware.NewAuthService("", "", ""))

	r := gin.New()
	r.GET("/healthz", api.Healthz)
	r.POST("/api/alerts/webhook", api.AlertWebhook)
	r.POST("/api/targets/:target/assess", api.AssessTarget)
	r.POST("/api/targets/:target/remediate", api.RemediateTarget)
	r.GET("/api/targets/:target/report", api.TargetReport)
	r.POST("/api/fleet/check", api.FleetCheck)
	r.GET("/api/fleet/summary", api.FleetSummary)
	r.GET("/api/notifications", api.Notifications)
	return r, provider
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var parsed map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("%s %s: bad JSON response: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, parsed
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	w, body := doJSON(t, r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, body)
	}
}

func TestAssessTargetEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w, body := doJSON(t, r, http.MethodPost, "/api/targets/web-01/assess", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, body)
	}
	if body["category"] != "healthy" {
		t.Fatalf("expected healthy, got %v", body)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/targets/ghost/assess", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown target, got %d", w.Code)
	}
}

func TestAssessTargetWindowParam(t *testing.T) {
	r, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodPost, "/api/targets/web-01/assess?window_minutes=15", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with window override, got %d", w.Code)
	}
	// Garbage windows fall back to the default rather than erroring.
	w, _ = doJSON(t, r, http.MethodPost, "/api/targets/web-01/assess?window_minutes=bogus", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with bogus window, got %d", w.Code)
	}
}

func TestRemediateTargetEndpoint(t *testing.T) {
	r, provider := newTestRouter(t)
	w, body := doJSON(t, r, http.MethodPost, "/api/targets/db-01/remediate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, body)
	}
	remediation, ok := body["remediation"].(map[string]any)
	if !ok || remediation["triggered"] != true {
		t.Fatalf("expected triggered remediation, got %v", body)
	}
	if provider.power["db-01"] != models.PowerRunning {
		t.Fatalf("target should be running after remediation, got %s", provider.power["db-01"])
	}
}

func TestFleetCheckEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w, body := doJSON(t, r, http.MethodPost, "/api/fleet/check", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, body)
	}
	if body["total"] != float64(2) || body["healthy"] != float64(1) || body["unhealthy"] != float64(1) {
		t.Fatalf("unexpected summary: %v", body)
	}

	// The summary endpoint now serves the persisted result.
	w, body = doJSON(t, r, http.MethodGet, "/api/fleet/summary", "")
	if w.Code != http.StatusOK || body["resource_group"] != "staging" {
		t.Fatalf("fleet summary = %d %v", w.Code, body)
	}
}

func TestTargetReportEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodGet, "/api/targets/web-01/report", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any assessment, got %d", w.Code)
	}
	doJSON(t, r, http.MethodPost, "/api/targets/web-01/assess", "")
	w, body := doJSON(t, r, http.MethodGet, "/api/targets/web-01/report", "")
	if w.Code != http.StatusOK || body["target"] != "web-01" {
		t.Fatalf("report = %d %v", w.Code, body)
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/targets/db-01/assess", "")
	w, body := doJSON(t, r, http.MethodGet, "/api/notifications?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	entries, ok := body["notifications"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one feed entry, got %v", body)
	}
}

func TestAlertWebhookFiredRunsAssessment(t *testing.T) {
	r, _ := newTestRouter(t)
	payload := `{
		"schemaId": "azureMonitorCommonAlertSchema",
		"data": {"essentials": {
			"alertRule": "cpu-high",
			"severity": "Sev2",
			"monitorCondition": "Fired",
			"alertTargetIDs": ["/subscriptions/s/resourceGroups/staging/providers/Microsoft.Compute/virtualMachines/web-01"]
		}}
	}`
	w, body := doJSON(t, r, http.MethodPost, "/api/alerts/webhook", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, body)
	}
	if body["alert_rule"] != "cpu-high" {
		t.Fatalf("expected alert rule echoed, got %v", body)
	}
	if _, ok := body["assessment"].(map[string]any); !ok {
		t.Fatalf("expected an assessment payload, got %v", body)
	}
}

func TestAlertWebhookResolvedIgnored(t *testing.T) {
	r, _ := newTestRouter(t)
	payload := `{
		"data": {"essentials": {
			"monitorCondition": "Resolved",
			"alertTargetIDs": ["web-01"]
		}}
	}`
	w, body := doJSON(t, r, http.MethodPost, "/api/alerts/webhook", payload)
	if w.Code != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("resolved alert should be ignored, got %d %v", w.Code, body)
	}
}

func TestAlertWebhookRejectsEmptyTargets(t *testing.T) {
	r, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodPost, "/api/alerts/webhook", `{"data":{"essentials":{"alertTargetIDs":[]}}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty target list, got %d", w.Code)
	}
}

func TestTargetFromResourceID(t *testing.T) {
	cases := map[string]string{
		"/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/web-01": "web-01",
		"web-01":  "web-01",
		"web-01/": "web-01",
		"":        "",
	}
	for in, want := range cases {
		if got := targetFromResourceID(in); got != want {
			t.Fatalf("targetFromResourceID(%q) = %q, want %q", in, got, want)
		}
	}
}
