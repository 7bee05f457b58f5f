package api_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	domainconfig "github.com/felixgeelhaar/clitool-registry/domain/config"
	"github.com/felixgeelhaar/clitool-registry/domain/event"
	infraconfig "github.com/felixgeelhaar/clitool-registry/infrastructure/config"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/observability"
	api "github.com/felixgeelhaar/clitool-registry/interfaces/api"
)

// fakeExec resolves binaries from a fixed table of version outputs.
type fakeExec struct {
	outputs map[string]string
}

func (f fakeExec) Exec(_ context.Context, command string, _ ...string) (clitool.ExecResult, error) {
	name := strings.TrimPrefix(command, "/usr/bin/")
	out, ok := f.outputs[name]
	if !ok {
		return clitool.ExecResult{Command: command, ExitCode: 127}, fmt.Errorf("%s: not runnable", command)
	}
	return clitool.ExecResult{Command: command, Stdout: out}, nil
}

func (f fakeExec) LookPath(name string) (string, error) {
	if _, ok := f.outputs[name]; !ok {
		return "", fmt.Errorf("%s: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

func testExec() fakeExec {
	return fakeExec{outputs: map[string]string{
		"jq":      "jq-1.7.1\n",
		"kubectl": "Client Version: v1.29.2\n",
	}}
}

func hostConfig(t *testing.T) *domainconfig.RegistryConfig {
	t.Helper()
	return &domainconfig.RegistryConfig{
		Name:       "test-host",
		ManagedDir: t.TempDir(),
		Logging:    domainconfig.LoggingConfig{Level: "error"},
		Tools: []domainconfig.ToolConfig{
			{Extension: domainconfig.ExtensionConfig{ID: "ext.data"}, Name: "jq"},
			{Extension: domainconfig.ExtensionConfig{ID: "ext.data"}, Name: "ghost"},
		},
	}
}

func newHost(t *testing.T, cfg *domainconfig.RegistryConfig, opts ...api.HostOption) *api.Host {
	t.Helper()
	opts = append([]api.HostOption{api.WithExec(testExec()), api.WithLogOutput(io.Discard)}, opts...)
	host, err := api.NewHost(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	t.Cleanup(func() { _ = host.Close() })
	return host
}

func eventTypes(events []event.Event) []event.Type {
	types := make([]event.Type, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestNewHost_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := &domainconfig.RegistryConfig{Journal: domainconfig.JournalConfig{Backend: "postgres"}}
	_, err := api.NewHost(context.Background(), cfg, api.WithLogOutput(io.Discard))
	if !errors.Is(err, api.ErrValidationFailed) {
		t.Fatalf("NewHost() error = %v, want ErrValidationFailed", err)
	}

	var verrs domainconfig.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Errorf("want name and journal.backend errors, got %v", err)
	}
}

func TestHost_Declare_Detect(t *testing.T) {
	t.Parallel()

	host := newHost(t, hostConfig(t))
	ctx := context.Background()

	if err := host.Declare(ctx, api.DeclareOptions{Detect: true}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	infos := host.Registry().ListToolInfos()
	if len(infos) != 2 {
		t.Fatalf("len(ListToolInfos()) = %d, want 2", len(infos))
	}

	jq := infos[0]
	if jq.ID != "ext.data.jq" || jq.State != clitool.StateFound {
		t.Errorf("jq = %+v, want found", jq)
	}
	if jq.Version != "1.7.1" || jq.Path != "/usr/bin/jq" {
		t.Errorf("jq version/path = %q %q", jq.Version, jq.Path)
	}
	if jq.CanUpdate || jq.NewVersion != "" {
		t.Errorf("jq has no strategy, got canUpdate=%v newVersion=%q", jq.CanUpdate, jq.NewVersion)
	}

	ghost := infos[1]
	if ghost.State != clitool.StateMissing || ghost.Version != "" {
		t.Errorf("ghost = %+v, want missing without version", ghost)
	}
}

func TestHost_Declare_WithoutDetect(t *testing.T) {
	t.Parallel()

	host := newHost(t, hostConfig(t))
	if err := host.Declare(context.Background(), api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	for _, info := range host.Registry().ListToolInfos() {
		if info.State != clitool.StateRegistered {
			t.Errorf("%s state = %s, want registered", info.ID, info.State)
		}
	}
}

func newReleaseServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/kubernetes/kubectl/releases", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"tag_name":"v1.29.2"},{"tag_name":"v1.30.1"}]`))
	})
	mux.HandleFunc("/repos/broken/broken/releases", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHost_Declare_Strategies(t *testing.T) {
	t.Parallel()

	srv := newReleaseServer(t)
	cfg := hostConfig(t)
	cfg.Tools = []domainconfig.ToolConfig{
		{
			Extension: domainconfig.ExtensionConfig{ID: "ext.k8s"},
			Name:      "kubectl",
			Update:    &domainconfig.UpdateConfig{Type: domainconfig.UpdateGitHubRelease, Owner: "kubernetes", Repo: "kubectl"},
		},
		{
			Extension:          domainconfig.ExtensionConfig{ID: "ext.k8s"},
			Name:               "kubectl-pinned",
			Binary:             "kubectl",
			InstallationSource: "extension",
			Update:             &domainconfig.UpdateConfig{Type: domainconfig.UpdateFixed, Owner: "kubernetes", Repo: "kubectl", Version: "1.29.2"},
		},
		{
			Extension: domainconfig.ExtensionConfig{ID: "ext.k8s"},
			Name:      "kubectl-pick",
			Binary:    "kubectl",
			Update:    &domainconfig.UpdateConfig{Type: domainconfig.UpdateGitHubRelease, Owner: "kubernetes", Repo: "kubectl", Selectable: true},
		},
		{
			Extension: domainconfig.ExtensionConfig{ID: "ext.k8s"},
			Name:      "broken",
			Update:    &domainconfig.UpdateConfig{Type: domainconfig.UpdateGitHubRelease, Owner: "broken", Repo: "broken"},
		},
	}

	host := newHost(t, cfg, api.WithBuilderOptions(
		infraconfig.WithGitHubBaseURL(srv.URL),
		infraconfig.WithHTTPClient(srv.Client()),
	))
	ctx := context.Background()

	if err := host.Declare(ctx, api.DeclareOptions{Detect: true, Strategies: true}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	infos := make(map[string]clitool.Info)
	for _, info := range host.Registry().ListToolInfos() {
		infos[info.ID] = info
	}
	if len(infos) != 4 {
		t.Fatalf("got %d tools, want 4 (a failing strategy must not drop its tool)", len(infos))
	}

	latest := infos["ext.k8s.kubectl"]
	if latest.NewVersion != "1.30.1" {
		t.Errorf("kubectl NewVersion = %q, want 1.30.1", latest.NewVersion)
	}
	if latest.CanUpdate {
		t.Error("kubectl detected on PATH must not be updatable")
	}

	pinned := infos["ext.k8s.kubectl-pinned"]
	if pinned.NewVersion != "1.29.2" {
		t.Errorf("pinned NewVersion = %q, want 1.29.2", pinned.NewVersion)
	}

	pick := infos["ext.k8s.kubectl-pick"]
	if pick.NewVersion != "" {
		t.Errorf("selectable strategy must not expose NewVersion, got %q", pick.NewVersion)
	}
	version, err := host.SelectVersion(ctx, "ext.k8s.kubectl-pick")
	if err != nil || version != "1.30.1" {
		t.Errorf("SelectVersion() = %q, %v; want 1.30.1", version, err)
	}

	if broken := infos["ext.k8s.broken"]; broken.NewVersion != "" || broken.CanUpdate {
		t.Errorf("broken strategy should not be attached: %+v", broken)
	}
}

func TestHost_UpdateAndHistory(t *testing.T) {
	t.Parallel()

	host := newHost(t, hostConfig(t))
	ctx := context.Background()
	if err := host.Declare(ctx, api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	tool, ok := host.Registry().Tool("ext.data.jq")
	if !ok {
		t.Fatal("jq not declared")
	}

	var calls int
	var gotLogger api.Logger
	_, err := tool.RegisterUpdate(api.NewPredefinedUpdater(api.PredefinedFunc{
		Target: "1.8.0",
		Update: func(_ context.Context, logger api.Logger) error {
			calls++
			gotLogger = logger
			logger.Log("installing jq 1.8.0")
			return nil
		},
	}))
	if err != nil {
		t.Fatalf("RegisterUpdate() error = %v", err)
	}

	if err := host.Update(ctx, "ext.data.jq"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if calls != 1 || gotLogger == nil {
		t.Fatalf("strategy calls = %d, logger = %v", calls, gotLogger)
	}

	// No strategy: silent no-op.
	if err := host.Update(ctx, "ext.data.ghost"); err != nil {
		t.Errorf("Update() without strategy error = %v", err)
	}

	history, err := host.History(ctx, "ext.data.jq")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	want := []event.Type{event.TypeToolCreated, event.TypeToolChanged, event.TypeUpdateSucceeded}
	got := eventTypes(history)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("History() types = %v, want %v", got, want)
	}

	failed, err := host.QueryHistory(ctx, "ext.data.jq", event.QueryOptions{Types: []event.Type{event.TypeUpdateFailed}})
	if err != nil {
		t.Fatalf("QueryHistory() error = %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("QueryHistory(update.failed) = %v, want none", eventTypes(failed))
	}
}

func TestHost_Update_Failure(t *testing.T) {
	t.Parallel()

	host := newHost(t, hostConfig(t))
	ctx := context.Background()
	if err := host.Declare(ctx, api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	tool, _ := host.Registry().Tool("ext.data.jq")

	errDownload := errors.New("download failed")
	if _, err := tool.RegisterUpdate(api.NewPredefinedUpdater(api.PredefinedFunc{
		Target: "1.8.0",
		Update: func(context.Context, api.Logger) error { return errDownload },
	})); err != nil {
		t.Fatalf("RegisterUpdate() error = %v", err)
	}

	if err := host.Update(ctx, "ext.data.jq"); !errors.Is(err, errDownload) {
		t.Fatalf("Update() error = %v, want strategy error unchanged", err)
	}

	failed, err := host.QueryHistory(ctx, "ext.data.jq", event.QueryOptions{Types: []event.Type{event.TypeUpdateFailed}})
	if err != nil {
		t.Fatalf("QueryHistory() error = %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("got %d update.failed events, want 1", len(failed))
	}
	var payload event.UpdatePayload
	if err := failed[0].UnmarshalPayload(&payload); err != nil {
		t.Fatalf("UnmarshalPayload() error = %v", err)
	}
	if payload.Error != "download failed" || payload.Version != "1.8.0" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestHost_UnknownTool(t *testing.T) {
	t.Parallel()

	host := newHost(t, hostConfig(t))
	ctx := context.Background()

	if err := host.Update(ctx, "ext.nope"); !errors.Is(err, api.ErrToolNotFound) {
		t.Errorf("Update() error = %v, want ErrToolNotFound", err)
	}
	if _, err := host.SelectVersion(ctx, "ext.nope"); !errors.Is(err, api.ErrToolNotFound) {
		t.Errorf("SelectVersion() error = %v, want ErrToolNotFound", err)
	}
}

func TestHost_SelectVersion_NoSelectableStrategy(t *testing.T) {
	t.Parallel()

	host := newHost(t, hostConfig(t))
	ctx := context.Background()
	if err := host.Declare(ctx, api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	_, err := host.SelectVersion(ctx, "ext.data.jq")
	if !errors.Is(err, api.ErrNoUpdater) {
		t.Fatalf("SelectVersion() error = %v, want ErrNoUpdater", err)
	}
	if err.Error() != "no updater registered for ext.data.jq" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestHost_Bus(t *testing.T) {
	t.Parallel()

	host := newHost(t, hostConfig(t))
	ch, unsubscribe := host.Bus().Subscribe(api.FilterByType(api.EventToolRemoved), 4)
	defer unsubscribe()

	if err := host.Declare(context.Background(), api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	tool, _ := host.Registry().Tool("ext.data.ghost")
	tool.Dispose()
	tool.Dispose()

	select {
	case n := <-ch:
		if n.Type != api.EventToolRemoved || n.ToolID != "ext.data.ghost" {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no tool-removed notification")
	}
	select {
	case n := <-ch:
		t.Errorf("unexpected second notification %+v", n)
	default:
	}
	if host.Registry().Count() != 1 {
		t.Errorf("Count() = %d, want 1", host.Registry().Count())
	}
}

func TestHost_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	host := newHost(t, hostConfig(t), api.WithMeterProvider(provider))

	if err := host.Declare(context.Background(), api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var tools int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "clitool.registry.tools" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				t.Fatalf("unexpected data for %s: %T", m.Name, m.Data)
			}
			tools = sum.DataPoints[0].Value
		}
	}
	if tools != 2 {
		t.Errorf("clitool.registry.tools = %d, want 2", tools)
	}
}

func TestHost_BadgerJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := func() *domainconfig.RegistryConfig {
		c := hostConfig(t)
		c.Journal = domainconfig.JournalConfig{Backend: domainconfig.JournalBadger, Dir: dir}
		return c
	}
	ctx := context.Background()

	first, err := api.NewHost(ctx, cfg(), api.WithExec(testExec()), api.WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	if err := first.Declare(ctx, api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	tool, _ := first.Registry().Tool("ext.data.ghost")
	tool.Dispose()
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := newHost(t, cfg())
	history, err := second.History(ctx, "ext.data.ghost")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	want := []event.Type{event.TypeToolCreated, event.TypeToolRemoved}
	if got := eventTypes(history); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("History() after reopen = %v, want %v", got, want)
	}
}

func TestHost_Webhook(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	cfg := hostConfig(t)
	cfg.Notification.Webhooks = []domainconfig.WebhookConfig{
		{Name: "ops", URL: srv.URL, Events: []string{"tool-removed"}},
	}

	host, err := api.NewHost(context.Background(), cfg, api.WithExec(testExec()), api.WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	if err := host.Declare(context.Background(), api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	tool, _ := host.Registry().Tool("ext.data.jq")
	tool.Dispose()

	if err := host.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := host.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("webhook received %d deliveries, want 1: %v", len(bodies), bodies)
	}
	if !strings.Contains(bodies[0], "tool-removed") || !strings.Contains(bodies[0], "ext.data.jq") {
		t.Errorf("body = %s", bodies[0])
	}
}

func TestHost_Tracing(t *testing.T) {
	var buf bytes.Buffer
	cfg := hostConfig(t)
	cfg.Tracing = domainconfig.TracingConfig{Exporter: domainconfig.TraceStdout}

	host, err := api.NewHost(context.Background(), cfg,
		api.WithExec(testExec()),
		api.WithLogOutput(io.Discard),
		api.WithTraceOptions(observability.WithTraceWriter(&buf)),
	)
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	if err := host.Declare(context.Background(), api.DeclareOptions{}); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	if err := host.Update(context.Background(), "ext.data.jq"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := host.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if out := buf.String(); !strings.Contains(out, "clitool.update") || !strings.Contains(out, "ext.data.jq") {
		t.Errorf("trace output missing update span:\n%s", out)
	}
}

func TestHost_SQLiteJournalAndReleaseCache(t *testing.T) {
	t.Parallel()

	var lists atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/kubernetes/kubectl/releases", func(w http.ResponseWriter, _ *http.Request) {
		lists.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"tag_name":"v1.29.2"},{"tag_name":"v1.30.1"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := func() *domainconfig.RegistryConfig {
		c := hostConfig(t)
		c.Journal = domainconfig.JournalConfig{Backend: domainconfig.JournalSQLite, Path: filepath.Join(dir, "journal.db")}
		c.Cache = domainconfig.CacheConfig{Backend: domainconfig.CacheSQLite, Path: filepath.Join(dir, "cache.db")}
		c.Tools = []domainconfig.ToolConfig{{
			Extension: domainconfig.ExtensionConfig{ID: "ext.k8s"},
			Name:      "kubectl",
			Update:    &domainconfig.UpdateConfig{Type: domainconfig.UpdateGitHubRelease, Owner: "kubernetes", Repo: "kubectl", Selectable: true},
		}}
		return c
	}
	ctx := context.Background()

	for run := range 2 {
		host, err := api.NewHost(ctx, cfg(),
			api.WithExec(testExec()),
			api.WithLogOutput(io.Discard),
			api.WithBuilderOptions(infraconfig.WithGitHubBaseURL(srv.URL), infraconfig.WithHTTPClient(srv.Client())),
		)
		if err != nil {
			t.Fatalf("run %d: NewHost() error = %v", run, err)
		}
		if err := host.Declare(ctx, api.DeclareOptions{Strategies: true}); err != nil {
			t.Fatalf("run %d: Declare() error = %v", run, err)
		}
		version, err := host.SelectVersion(ctx, "ext.k8s.kubectl")
		if err != nil || version != "1.30.1" {
			t.Fatalf("run %d: SelectVersion() = %q, %v", run, version, err)
		}

		created, err := host.QueryHistory(ctx, "ext.k8s.kubectl", event.QueryOptions{Types: []event.Type{event.TypeToolCreated}})
		if err != nil {
			t.Fatalf("run %d: QueryHistory() error = %v", run, err)
		}
		if len(created) != run+1 {
			t.Errorf("run %d: %d tool.created entries, want %d", run, len(created), run+1)
		}
		if err := host.Close(); err != nil {
			t.Fatalf("run %d: Close() error = %v", run, err)
		}
	}

	if n := lists.Load(); n != 1 {
		t.Errorf("release listing fetched %d times across runs, want 1", n)
	}
}

func TestNewHost_CacheUnavailable(t *testing.T) {
	t.Parallel()

	cfg := hostConfig(t)
	cfg.Cache = domainconfig.CacheConfig{Backend: domainconfig.CacheSQLite, Path: filepath.Join(t.TempDir(), "missing", "cache.db")}

	_, err := api.NewHost(context.Background(), cfg, api.WithExec(testExec()), api.WithLogOutput(io.Discard))
	if !errors.Is(err, domainconfig.ErrBuildFailed) {
		t.Errorf("NewHost() error = %v, want ErrBuildFailed", err)
	}
}
