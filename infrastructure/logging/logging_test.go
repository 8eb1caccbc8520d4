package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// testLogger creates a logger that writes to a buffer for testing
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Config{Level: "trace", Format: "json", Output: buf}), buf
}

func TestConfigs(t *testing.T) {
	t.Parallel()

	def := DefaultConfig()
	if def.Level != "info" || def.Format != "console" || def.Output != os.Stderr {
		t.Errorf("DefaultConfig() = %+v", def)
	}
	prod := ProductionConfig()
	if prod.Format != "json" {
		t.Errorf("ProductionConfig().Format = %s, want json", prod.Format)
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
		{"INFO", bolt.INFO},
		{"warn", bolt.WARN},
		{" error ", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Field
		want  []string
	}{
		{"request id", RequestID("r-1"), []string{`"request_id":"r-1"`}},
		{"decision id", DecisionID("d-1"), []string{`"decision_id":"d-1"`}},
		{"actor", Actor(identity.Actor{ID: "m1", Role: identity.RoleResponsable, Scope: "svc"}),
			[]string{`"actor_id":"m1"`, `"role":"RESPONSABLE"`, `"scope":"svc"`}},
		{"role", Role(identity.RoleDGR), []string{`"role":"DGR"`}},
		{"from status", FromStatus(status.Submitted), []string{`"from_status":"SUBMITTED"`}},
		{"to status", ToStatus(status.LineApproved), []string{`"to_status":"LINE_APPROVED"`}},
		{"outcome", Outcome(validation.Reject), []string{`"outcome":"REJECT"`}},
		{"count", Count("queue_size", 4), []string{`"queue_size":4`}},
		{"duration", Duration(100 * time.Millisecond), []string{`"duration_ms":100`}},
		{"error", ErrorField(errors.New("boom")), []string{`"error":"boom"`}},
		{"reason", Reason("late"), []string{`"reason":"late"`}},
		{"component", Component("http"), []string{`"component":"http"`}},
		{"operation", Operation("decide"), []string{`"operation":"decide"`}},
		{"str", Str("k", "v"), []string{`"k":"v"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := testLogger()
			NewEvent(logger.Info()).Add(tt.field).Msg("test")

			for _, w := range tt.want {
				if !bytes.Contains(buf.Bytes(), []byte(w)) {
					t.Errorf("output %s lacks %s", buf.String(), w)
				}
			}
		})
	}
}

func TestActorField_OmitsEmptyScope(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	NewEvent(logger.Info()).Add(Actor(identity.Actor{ID: "u42", Role: identity.RoleDGR})).Msg("test")
	if bytes.Contains(buf.Bytes(), []byte(`"scope"`)) {
		t.Errorf("unexpected scope in %s", buf.String())
	}
}

func TestErrorField_Nil(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	NewEvent(logger.Info()).Add(ErrorField(nil)).Send()
	if bytes.Contains(buf.Bytes(), []byte(`"error"`)) {
		t.Errorf("unexpected error field in output: %s", buf.String())
	}
}

func TestNew_Level(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := New(Config{Level: "warn", Format: "json", Output: buf})
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Error("info should be filtered at warn level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Error("warn should be logged at warn level")
	}
}

func TestGet_InitializesDefault(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get() returned nil")
	}

	buf := &bytes.Buffer{}
	Init(Config{Level: "debug", Format: "json", Output: buf})
	Info().Add(RequestID("r-9")).Msg("global")
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"r-9"`)) {
		t.Errorf("global logger output = %s", buf.String())
	}
	Init(Config{Output: os.Stderr})
}
