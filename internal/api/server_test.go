package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/internal/cache"
	"homedash/internal/calendar"
	"homedash/internal/imagefeed"
	"homedash/internal/orchestrator"
	"homedash/internal/store"
	"homedash/pkg/plugin"
)

// fakeService is a service plugin double for handler tests.
type fakeService struct {
	plugin.Base
	webhooks [][]byte
}

func (f *fakeService) Info() plugin.Info {
	return plugin.Info{TypeID: "fake_service", Category: plugin.CategoryService}
}

func (f *fakeService) Init(context.Context) error { return f.BeginInit() }

func (f *fakeService) Cleanup(context.Context) error {
	f.FinishCleanup()
	return nil
}

func (f *fakeService) ValidateConfig(map[string]any) error { return nil }

func (f *fakeService) Content(context.Context) (*plugin.Content, error) {
	return &plugin.Content{Kind: plugin.ContentKindIframe, URL: "https://example.com"}, nil
}

func (f *fakeService) HandleWebhook(_ context.Context, payload []byte) error {
	f.webhooks = append(f.webhooks, payload)
	return nil
}

// fakeServiceProvider owns the fake_service type.
type fakeServiceProvider struct{}

func (fakeServiceProvider) PluginTypes() []plugin.Info {
	return []plugin.Info{{TypeID: "fake_service", Name: "Fake", Category: plugin.CategoryService}}
}

func (fakeServiceProvider) NewInstance(instanceID, typeID, name string, cfg map[string]any) (plugin.Plugin, error) {
	if typeID != "fake_service" {
		return nil, nil
	}
	src := &fakeService{Base: plugin.NewBase(instanceID, name)}
	if err := src.Configure(cfg); err != nil {
		return nil, err
	}
	return src, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *orchestrator.Orchestrator) {
	t.Helper()
	runtime := plugin.NewRuntime(nil)
	registry := plugin.NewRegistry(nil, fakeServiceProvider{})
	orch := orchestrator.New(registry, runtime, store.NewMemoryStore())
	require.NoError(t, orch.Reconcile(context.Background()))

	srv := NewServer("", orch, runtime,
		calendar.New(runtime, cache.NewMemory(0)),
		imagefeed.New(runtime),
		nil,
	)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, orch
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestRegisterAndListPlugins(t *testing.T) {
	ts, _ := newTestServer(t)

	payload := bytes.NewBufferString(`{"id": "svc-1", "type_id": "fake_service", "name": "Widget"}`)
	resp, err := http.Post(ts.URL+"/api/v1/plugins", "application/json", payload)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "svc-1", body["id"])

	resp, err = http.Get(ts.URL + "/api/v1/plugins?category=service")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	plugins, ok := body["plugins"].([]any)
	require.True(t, ok)
	assert.Len(t, plugins, 1)
}

func TestRegisterUnknownTypeFails(t *testing.T) {
	ts, _ := newTestServer(t)

	payload := bytes.NewBufferString(`{"type_id": "bogus"}`)
	resp, err := http.Post(ts.URL+"/api/v1/plugins", "application/json", payload)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUnregisterPlugin(t *testing.T) {
	ts, orch := newTestServer(t)

	_, err := orch.RegisterPlugin(context.Background(), "svc-1", "fake_service", "Widget", nil, true)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/plugins/svc-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServiceContent(t *testing.T) {
	ts, orch := newTestServer(t)

	_, err := orch.RegisterPlugin(context.Background(), "svc-1", "fake_service", "Widget", nil, true)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/v1/services/svc-1/content")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, plugin.ContentKindIframe, body["kind"])
	assert.Equal(t, "https://example.com", body["url"])
}

func TestServiceWebhook(t *testing.T) {
	ts, orch := newTestServer(t)

	obj, err := orch.RegisterPlugin(context.Background(), "svc-1", "fake_service", "Widget", nil, true)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/v1/services/svc-1/webhook", "application/json",
		bytes.NewBufferString(`{"ping": true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, obj.(*fakeService).webhooks, 1)

	resp, err = http.Post(ts.URL+"/api/v1/services/ghost/webhook", "application/json",
		bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsRejectsBadTimestamps(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/events?start=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsDefaultWindow(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/events")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	// no calendar sources registered, so the placeholder set comes back
	events, ok := body["events"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, events)
}

func TestTypeToggle(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/plugin-types/fake_service/enabled",
		bytes.NewBufferString(`{"enabled": false}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/plugin-types")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	types, ok := body["types"].([]any)
	require.True(t, ok)
	require.Len(t, types, 1)
	row, ok := types[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, row["enabled"])
}

func TestShutdownRejectsRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := withContext(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
