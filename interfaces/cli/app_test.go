package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	"github.com/felixgeelhaar/clitool-registry/domain/event"
	infraconfig "github.com/felixgeelhaar/clitool-registry/infrastructure/config"
	api "github.com/felixgeelhaar/clitool-registry/interfaces/api"
)

// stubExec finds every binary in its table on PATH.
type stubExec map[string]string

func (s stubExec) Exec(_ context.Context, command string, _ ...string) (clitool.ExecResult, error) {
	out, ok := s[filepath.Base(command)]
	if !ok {
		return clitool.ExecResult{}, fmt.Errorf("%s: not runnable", command)
	}
	return clitool.ExecResult{Command: command, Stdout: out}, nil
}

func (s stubExec) LookPath(name string) (string, error) {
	if _, ok := s[name]; !ok {
		return "", fmt.Errorf("%s: not found", name)
	}
	return "/usr/local/bin/" + name, nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clitools.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const toolsConfig = `
name: workstation
logging:
  level: error
tools:
  - extension: {id: ext.data, label: Data}
    name: jq
    description: JSON processor
  - extension: {id: ext.data}
    name: yq
`

func newTestApp(stdout, stderr *bytes.Buffer, opts ...api.HostOption) *App {
	opts = append([]api.HostOption{api.WithExec(stubExec{"jq": "jq-1.7.1"})}, opts...)
	return New().WithOutput(stdout, stderr).WithHostOptions(opts...)
}

func TestApp_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"version"}); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "clitools version") {
		t.Errorf("version output missing 'clitools version', got: %s", stdout.String())
	}
}

func TestApp_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	output := stdout.String()
	for _, cmd := range []string{"list", "update", "select-version", "history", "validate", "export-schema"} {
		if !strings.Contains(output, cmd) {
			t.Errorf("help output missing %q command", cmd)
		}
	}
}

func TestApp_Validate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", writeConfig(t, toolsConfig)})
	if err != nil {
		t.Fatalf("validate command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "valid") || !strings.Contains(output, "ext.data.jq [update: none]") {
		t.Errorf("unexpected validate output: %s", output)
	}
}

func TestApp_ValidateInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		args    []string
	}{
		{name: "missing name", content: "logging:\n  level: info\n"},
		{name: "bad strategy", content: "name: x\nmanaged_dir: /opt\ntools:\n  - extension: {id: e}\n    name: t\n    update: {type: brew}\n"},
		{name: "unknown key in strict mode", content: "name: x\nshiny: true\n", args: []string{"--strict"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			app := New().WithOutput(&stdout, &stderr)

			args := append([]string{"validate", "-c", writeConfig(t, tt.content)}, tt.args...)
			if err := app.ExecuteWithArgs(context.Background(), args); err == nil {
				t.Fatal("validate command should fail")
			}
		})
	}
}

func TestApp_ExportSchema(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"export-schema"}); err != nil {
		t.Fatalf("export-schema failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "CLI Tool Registry Configuration") {
		t.Errorf("schema output missing title, got: %s", stdout.String())
	}

	out := filepath.Join(t.TempDir(), "schema.json")
	stdout.Reset()
	if err := app.ExecuteWithArgs(context.Background(), []string{"export-schema", "-o", out}); err != nil {
		t.Fatalf("export-schema -o failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("schema file not written: %v", err)
	}
	if !json.Valid(data) {
		t.Error("schema file is not valid JSON")
	}
}

func TestApp_List(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := newTestApp(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"list", "-c", writeConfig(t, toolsConfig)})
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header and 2 rows, got:\n%s", stdout.String())
	}
	if !strings.Contains(lines[1], "ext.data.jq") || !strings.Contains(lines[1], "found") || !strings.Contains(lines[1], "1.7.1") {
		t.Errorf("jq row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "ext.data.yq") || !strings.Contains(lines[2], "missing") {
		t.Errorf("yq row = %q", lines[2])
	}
}

func TestApp_ListJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := newTestApp(&stdout, &stderr)

	args := []string{"list", "--json", "--no-detect", "-c", writeConfig(t, toolsConfig)}
	if err := app.ExecuteWithArgs(context.Background(), args); err != nil {
		t.Fatalf("list --json failed: %v", err)
	}

	var infos []clitool.Info
	if err := json.Unmarshal(stdout.Bytes(), &infos); err != nil {
		t.Fatalf("output is not a tool list: %v\n%s", err, stdout.String())
	}
	if len(infos) != 2 {
		t.Fatalf("len(infos) = %d, want 2", len(infos))
	}
	if infos[0].Description != "JSON processor" || infos[0].ExtensionInfo.Label != "Data" {
		t.Errorf("jq = %+v", infos[0])
	}
	if infos[0].State != clitool.StateRegistered {
		t.Errorf("State = %s, want registered without detection", infos[0].State)
	}
}

func TestApp_ListMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := newTestApp(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"list", "-c", filepath.Join(t.TempDir(), "nope.yaml")})
	if !errors.Is(err, api.ErrConfigNotFound) {
		t.Errorf("list error = %v, want ErrConfigNotFound", err)
	}
}

func TestApp_Update(t *testing.T) {
	path := writeConfig(t, toolsConfig)

	tests := []struct {
		name    string
		id      string
		wantErr error
		wantOut string
	}{
		{name: "no strategy is a no-op", id: "ext.data.jq", wantOut: "ext.data.jq: 1.7.1"},
		{name: "unknown tool", id: "ext.data.nope", wantErr: api.ErrToolNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			app := newTestApp(&stdout, &stderr)

			err := app.ExecuteWithArgs(context.Background(), []string{"update", tt.id, "-c", path})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("update error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", stdout.String(), tt.wantOut)
			}
		})
	}
}

func TestApp_SelectVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/mikefarah/yq/releases", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"tag_name":"v4.43.1"},{"tag_name":"v4.44.3"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	content := toolsConfig + `    update:
      type: github-release
      owner: mikefarah
      repo: yq
      selectable: true
managed_dir: ` + t.TempDir() + "\n"
	path := writeConfig(t, content)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr error
	}{
		{name: "newest", args: []string{"select-version", "ext.data.yq"}, want: "4.44.3"},
		{name: "pinned", args: []string{"select-version", "ext.data.yq", "--version", "4.43.1"}, want: "4.43.1"},
		{name: "no selectable strategy", args: []string{"select-version", "ext.data.jq"}, wantErr: api.ErrNoUpdater},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			app := newTestApp(&stdout, &stderr, api.WithBuilderOptions(
				infraconfig.WithGitHubBaseURL(srv.URL),
				infraconfig.WithHTTPClient(srv.Client()),
			))

			err := app.ExecuteWithArgs(context.Background(), append(tt.args, "-c", path))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("select-version error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("select-version failed: %v", err)
			}
			if got := strings.TrimSpace(stdout.String()); got != tt.want {
				t.Errorf("select-version = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApp_History(t *testing.T) {
	content := toolsConfig + "journal:\n  backend: badger\n  dir: " + t.TempDir() + "\n"
	path := writeConfig(t, content)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		var stdout, stderr bytes.Buffer
		if err := newTestApp(&stdout, &stderr).ExecuteWithArgs(ctx, []string{"list", "-c", path}); err != nil {
			t.Fatalf("list run %d failed: %v", i, err)
		}
	}

	var stdout, stderr bytes.Buffer
	args := []string{"history", "ext.data.jq", "--json", "--type", "tool.created", "-c", path}
	if err := newTestApp(&stdout, &stderr).ExecuteWithArgs(ctx, args); err != nil {
		t.Fatalf("history failed: %v", err)
	}

	var events []event.Event
	if err := json.Unmarshal(stdout.Bytes(), &events); err != nil {
		t.Fatalf("output is not an event list: %v\n%s", err, stdout.String())
	}
	// Two list runs plus the history run itself each declare the tool.
	if len(events) != 3 {
		t.Fatalf("got %d tool.created events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Errorf("events out of order: %d after %d", events[i].Sequence, events[i-1].Sequence)
		}
	}

	stdout.Reset()
	args = []string{"history", "ext.data.jq", "--limit", "1", "-c", path}
	if err := newTestApp(&stdout, &stderr).ExecuteWithArgs(ctx, args); err != nil {
		t.Fatalf("history --limit failed: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(stdout.String()), "\n"); len(lines) != 2 {
		t.Errorf("want header and 1 row, got:\n%s", stdout.String())
	}
}
