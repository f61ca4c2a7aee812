package resources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/analytics"
	"github.com/tareqmamari/logs-ratio-server/internal/config"
	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/health"
	"github.com/tareqmamari/logs-ratio-server/internal/metrics"
	"github.com/tareqmamari/logs-ratio-server/internal/predictor"
	"github.com/tareqmamari/logs-ratio-server/internal/scheduler"
)

type fakeAlerts struct {
	events []scheduler.AlertEvent
	limit  int
}

func (f *fakeAlerts) History(limit int) []scheduler.AlertEvent {
	f.limit = limit
	return f.events
}
func (f *fakeAlerts) LastResult() *scheduler.CycleResult { return &scheduler.CycleResult{ID: "cycle-1"} }
func (f *fakeAlerts) State() scheduler.State              { return scheduler.StateSleeping }

type fakeHealth struct{}

func (fakeHealth) CheckAll(context.Context) (health.Status, []health.Check) {
	return health.StatusDegraded, []health.Check{{Name: "model", Status: health.StatusDegraded}}
}

type fakeModel struct{}

func (fakeModel) Status() predictor.Status {
	return predictor.Status{Available: true, Path: "model.json", ExampleCount: 3}
}

type fakeFiles struct{}

func (fakeFiles) CountLevels(name string) (map[string]int, error) {
	if name != "app.log" {
		return nil, apperrors.NewResourceNotFound("Log file", name)
	}
	return map[string]int{"ERROR": 1, "INFO": 2}, nil
}

func (fakeFiles) ErrorRatios(string) (analytics.ErrorRatioReport, error) {
	return analytics.ErrorRatioReport{Ratios: map[string]float64{"s1": 0.5}, Average: 0.5}, nil
}

func newTestRegistry() (*Registry, *fakeAlerts) {
	alerts := &fakeAlerts{events: []scheduler.AlertEvent{{ID: "01J", FileName: "b.log"}}}
	r := NewRegistry(Dependencies{
		Config: &config.Config{
			LogDir:       "uploads",
			SMTPPassword: "smtp-password-123", // pragma: allowlist secret
			WebhookURL:   "https://hooks.example.com/x?token=abcdef123456",
		},
		Metrics: metrics.New(zap.NewNop(), nil),
		Health:  fakeHealth{},
		Model:   fakeModel{},
		Alerts:  alerts,
		Files:   fakeFiles{},
	}, zap.NewNop(), "test")
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return r, alerts
}

func readJSON(t *testing.T, handler mcp.ResourceHandler, uri string) map[string]interface{} {
	t.Helper()
	result, err := handler(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, uri, result.Contents[0].URI)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &data))
	return data
}

func resourceByURI(t *testing.T, r *Registry, uri string) RegisteredResource {
	t.Helper()
	for _, res := range r.GetResources() {
		if res.Resource.URI == uri {
			return res
		}
	}
	t.Fatalf("resource %s not registered", uri)
	return RegisteredResource{}
}

func TestGetResources(t *testing.T) {
	r, _ := newTestRegistry()

	uris := make([]string, 0)
	for _, res := range r.GetResources() {
		uris = append(uris, res.Resource.URI)
		assert.Equal(t, "application/json", res.Resource.MIMEType)
		assert.NotNil(t, res.Handler)
	}
	assert.ElementsMatch(t, []string{
		"config://current", "metrics://server", "health://status", "model://status", "alerts://recent",
	}, uris)
}

func TestConfigResource_MasksSecrets(t *testing.T) {
	r, _ := newTestRegistry()

	data := readJSON(t, resourceByURI(t, r, "config://current").Handler, "config://current")

	assert.Equal(t, "uploads", data["log_dir"])
	assert.Equal(t, "smtp...-123", data["smtp_password"])
	assert.Equal(t, "https://hooks.example.com/x?token=xxxxx", data["webhook_url"])
}

func TestHealthResource(t *testing.T) {
	r, _ := newTestRegistry()

	data := readJSON(t, resourceByURI(t, r, "health://status").Handler, "health://status")

	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "2026-01-02T03:04:05Z", data["timestamp"])
	assert.Len(t, data["checks"], 1)
}

func TestModelResource(t *testing.T) {
	r, _ := newTestRegistry()

	data := readJSON(t, resourceByURI(t, r, "model://status").Handler, "model://status")

	assert.Equal(t, true, data["available"])
	assert.Equal(t, float64(3), data["example_count"])
}

func TestAlertsResource(t *testing.T) {
	r, alerts := newTestRegistry()

	data := readJSON(t, resourceByURI(t, r, "alerts://recent").Handler, "alerts://recent")

	assert.Equal(t, recentAlertSize, alerts.limit)
	assert.Equal(t, "sleeping", data["state"])
	assert.Len(t, data["alerts"], 1)
}

func TestMetricsResource(t *testing.T) {
	r, _ := newTestRegistry()
	r.deps.Metrics.RecordToolExecution("count_log_types", true, 2*time.Millisecond)

	data := readJSON(t, resourceByURI(t, r, "metrics://server").Handler, "metrics://server")

	tools, ok := data["tools"].(map[string]interface{})
	require.True(t, ok)
	usage := tools["usage"].(map[string]interface{})
	assert.Equal(t, float64(1), usage["count_log_types"])
}

func TestLogFileTemplate(t *testing.T) {
	r, _ := newTestRegistry()
	require.Len(t, r.GetResourceTemplates(), 1)

	data := readJSON(t, r.GetTemplateHandler(), "logfile://app.log")

	assert.Equal(t, "app.log", data["file_name"])
	levels := data["levels"].(map[string]interface{})
	assert.Equal(t, float64(1), levels["ERROR"])
}

func TestLogFileTemplate_MissingFile(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.GetTemplateHandler()(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "logfile://missing.log"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLogFileTemplate_UnknownURI(t *testing.T) {
	r, _ := newTestRegistry()

	data := readJSON(t, r.GetTemplateHandler(), "other://x")

	assert.Equal(t, "Unknown resource template", data["error"])
}
