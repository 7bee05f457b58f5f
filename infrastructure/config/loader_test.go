package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	domainconfig "github.com/felixgeelhaar/clitool-registry/domain/config"
)

const sampleYAML = `
name: workstation
managed_dir: /opt/clitools
logging:
  level: debug
updates:
  max_concurrent: 2
  exec_timeout: 3s
notification:
  webhooks:
    - name: ops
      url: https://hooks.example.com/tools
      secret: s3cr3t
      events: [tool-created, tool-removed]
tools:
  - extension: {id: ext.k8s, label: Kubernetes}
    name: kubectl
    version_args: [version, --client]
    update:
      type: github-release
      owner: kubernetes
      repo: kubectl
  - extension: {id: ext.k8s}
    name: helm
    update:
      type: fixed
      owner: helm
      repo: helm
      version: 3.14.0
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().LoadFile(writeFile(t, "clitools.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "workstation" {
		t.Errorf("Name = %s, want workstation", cfg.Name)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Updates.ExecTimeout.Duration().Seconds() != 3 {
		t.Errorf("ExecTimeout = %v", cfg.Updates.ExecTimeout.Duration())
	}
	if len(cfg.Tools) != 2 {
		t.Fatalf("len(Tools) = %d, want 2", len(cfg.Tools))
	}
	if cfg.Tools[1].Binary != "helm" || cfg.Tools[1].Extension.Label != "ext.k8s" {
		t.Errorf("defaults not applied: %+v", cfg.Tools[1])
	}
	if cfg.Journal.Backend != domainconfig.JournalMemory {
		t.Errorf("Backend = %q", cfg.Journal.Backend)
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	t.Parallel()

	content := `{
  "name": "workstation",
  "tools": [{"extension": {"id": "ext"}, "name": "jq"}]
}`
	cfg, err := NewLoader().LoadFile(writeFile(t, "clitools.json", content))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Name != "workstation" || len(cfg.Tools) != 1 || cfg.Tools[0].DisplayName != "jq" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.yaml"), wantErr: domainconfig.ErrConfigNotFound},
		{name: "directory", path: dir, wantErr: domainconfig.ErrInvalidFormat},
		{name: "unsupported extension", path: writeFile(t, "clitools.toml", "name = 'x'"), wantErr: domainconfig.ErrUnsupportedFormat},
		{name: "broken yaml", path: writeFile(t, "broken.yaml", "name: [unclosed"), wantErr: domainconfig.ErrInvalidFormat},
		{name: "invalid config", path: writeFile(t, "invalid.yaml", "logging:\n  level: loud\n"), wantErr: domainconfig.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLoader().LoadFile(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ValidationErrorsExposed(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().LoadString("logging:\n  level: loud\n", FormatYAML)

	var verrs domainconfig.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error %v does not expose ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2 (name, logging.level): %v", len(verrs), verrs)
	}
}

func TestLoader_WithoutValidation(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoaderWithOptions(WithValidation(false)).LoadString("", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("defaults should still apply, Level = %q", cfg.Logging.Level)
	}
}

func TestLoader_StrictFields(t *testing.T) {
	t.Parallel()

	yamlInput := "name: host\nunknown_key: 1\n"
	if _, err := NewLoader().LoadString(yamlInput, FormatYAML); err != nil {
		t.Errorf("lenient loader rejected unknown key: %v", err)
	}
	if _, err := NewLoaderWithOptions(WithStrictFields(true)).LoadString(yamlInput, FormatYAML); !errors.Is(err, domainconfig.ErrInvalidFormat) {
		t.Errorf("strict yaml error = %v, want ErrInvalidFormat", err)
	}

	jsonInput := `{"name": "host", "unknown_key": 1}`
	if _, err := NewLoaderWithOptions(WithStrictFields(true)).LoadString(jsonInput, FormatJSON); !errors.Is(err, domainconfig.ErrInvalidFormat) {
		t.Errorf("strict json error = %v, want ErrInvalidFormat", err)
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("CLITOOLS_TEST_SECRET", "from-env")

	input := `
name: host
notification:
  webhooks:
    - url: https://hooks.example.com
      secret: ${CLITOOLS_TEST_SECRET}
`
	cfg, err := NewLoader().LoadString(input, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if got := cfg.Notification.Webhooks[0].Secret; got != "from-env" {
		t.Errorf("Secret = %q, want from-env", got)
	}

	raw, err := NewLoaderWithOptions(WithEnvExpansion(false)).LoadString(input, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if got := raw.Notification.Webhooks[0].Secret; !strings.HasPrefix(got, "${") {
		t.Errorf("Secret = %q, want unexpanded reference", got)
	}

	_, err = NewLoaderWithOptions(WithStrictEnv(true)).LoadString("name: ${CLITOOLS_UNSET_NAME}\n", FormatYAML)
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("strict env error = %v, want ErrMissingEnvVar", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "a.yaml", want: FormatYAML},
		{path: "a.YML", want: FormatYAML},
		{path: "a.json", want: FormatJSON},
		{path: "a.ini", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, err := FormatFromPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromPath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatFromPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
