package config

import (
	"errors"
	"testing"

	domainconfig "github.com/felixgeelhaar/mutaflow/domain/config"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestEnvExpander_Expand(t *testing.T) {
	t.Parallel()

	env := fakeEnv(map[string]string{
		"HOST":  "db.local",
		"PORT":  "5432",
		"EMPTY": "",
	})

	tests := []struct {
		name    string
		input   string
		strict  bool
		want    string
		wantErr bool
	}{
		{name: "braced", input: "host=${HOST}", want: "host=db.local"},
		{name: "simple", input: "port=$PORT", want: "port=5432"},
		{name: "default used when unset", input: "${MISSING:-fallback}", want: "fallback"},
		{name: "default used when empty", input: "${EMPTY:-fallback}", want: "fallback"},
		{name: "default ignored when set", input: "${HOST:-fallback}", want: "db.local"},
		{name: "required present", input: "${HOST:?host is required}", want: "db.local"},
		{name: "required missing", input: "${MISSING:?set it}", wantErr: true},
		{name: "unset lenient", input: "x${MISSING}y", want: "xy"},
		{name: "unset strict", input: "x${MISSING}y", strict: true, wantErr: true},
		{name: "escaped dollar", input: "cost: $$5", want: "cost: $5"},
		{name: "several", input: "${HOST}:${PORT}", want: "db.local:5432"},
		{name: "no variables", input: "plain text", want: "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := &envExpander{strict: tt.strict, lookup: env}
			got, err := e.Expand(tt.input)
			if tt.wantErr {
				if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
					t.Fatalf("Expand() error = %v, want ErrMissingEnvVar", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("MUTAFLOW_TEST_VAR", "value")

	got, err := ExpandEnvStrict("${MUTAFLOW_TEST_VAR}")
	if err != nil || got != "value" {
		t.Errorf("ExpandEnvStrict() = %q, %v", got, err)
	}
	if _, err := ExpandEnvStrict("${MUTAFLOW_TEST_UNSET_VAR}"); err == nil {
		t.Error("ExpandEnvStrict() expected error for unset variable")
	}
	if got := ExpandEnv("a${MUTAFLOW_TEST_UNSET_VAR}b"); got != "ab" {
		t.Errorf("ExpandEnv() = %q, want ab", got)
	}
}
