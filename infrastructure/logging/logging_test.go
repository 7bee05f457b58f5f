package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// testLogger creates a logger that writes to a buffer for testing
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := bolt.New(bolt.NewJSONHandler(buf)).SetLevel(bolt.TRACE)
	return logger, buf
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if config.Level != "info" {
		t.Errorf("Level = %s, want info", config.Level)
	}
	if config.Format != "console" {
		t.Errorf("Format = %s, want console", config.Format)
	}
	if config.Output != os.Stderr {
		t.Errorf("Output = %v, want os.Stderr", config.Output)
	}

	if ProductionConfig().Format != "json" {
		t.Errorf("ProductionConfig().Format = %s, want json", ProductionConfig().Format)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if result := parseLevel(tt.input); result != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := New(Config{Level: "debug", Format: "json", Output: buf})
	logger.Debug().Str("k", "v").Msg("hello")

	if !bytes.Contains(buf.Bytes(), []byte(`"k":"v"`)) {
		t.Errorf("expected field in output: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Errorf("expected message in output: %s", buf.String())
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Field
		want  string
	}{
		{"tool id", ToolID("ext.kubectl"), `"tool_id":"ext.kubectl"`},
		{"extension", Extension("ext"), `"extension":"ext"`},
		{"event", EventName("tool-changed"), `"event":"tool-changed"`},
		{"version", Version("1.2.3"), `"version":"1.2.3"`},
		{"updater", Updater("predefined"), `"updater":"predefined"`},
		{"duration", Duration(1500 * time.Millisecond), `"duration_ms":1500`},
		{"count", Count("tools", 3), `"tools":3`},
		{"component", Component("registry"), `"component":"registry"`},
		{"operation", Operation("perform_update"), `"operation":"perform_update"`},
		{"str", Str("key", "value"), `"key":"value"`},
		{"error", ErrorField(errors.New("boom")), `boom`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := testLogger()
			tt.field(logger.Info()).Msg("test")
			if !bytes.Contains(buf.Bytes(), []byte(tt.want)) {
				t.Errorf("expected %s in output: %s", tt.want, buf.String())
			}
		})
	}
}

func TestErrorField_Nil(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	ErrorField(nil)(logger.Info()).Msg("test")

	if bytes.Contains(buf.Bytes(), []byte(`"error"`)) {
		t.Errorf("nil error should not add an error field: %s", buf.String())
	}
}

func TestLogEvent_Add(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	NewEvent(logger.Warn()).Add(ToolID("ext.kind")).Add(Version("0.20.0")).Msg("chained")

	for _, want := range []string{`"tool_id":"ext.kind"`, `"version":"0.20.0"`, "chained"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("expected %s in output: %s", want, buf.String())
		}
	}
}

func TestStrategyLogger(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	sl := NewStrategyLogger(logger, "ext.kubectl")

	sl.Log("downloading")
	sl.Warn("checksum missing")
	sl.Error("install failed")

	for _, want := range []string{"downloading", "checksum missing", "install failed", `"tool_id":"ext.kubectl"`, `"component":"updater"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("expected %s in output: %s", want, buf.String())
		}
	}
}
