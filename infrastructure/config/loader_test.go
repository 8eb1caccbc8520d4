package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/mutaflow/domain/config"
)

const sampleYAML = `
name: test-deployment
server:
  address: ":9090"
storage:
  backend: sqlite
  sqlite:
    path: /var/lib/mutaflow.db
lock:
  backend: memory
  ttl: 5s
queue:
  refresh_interval: 15s
policies:
  options:
    advisory_regional_rejection: true
    advisory_committee_rejection: true
    auto_open_first_review: false
`

func TestLoader_LoadString(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().LoadString(sampleYAML, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	if cfg.Name != "test-deployment" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLite.Path != "/var/lib/mutaflow.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Lock.TTL != 5*time.Second {
		t.Errorf("Lock.TTL = %v", cfg.Lock.TTL)
	}
	if cfg.Queue.RefreshInterval != 15*time.Second {
		t.Errorf("Queue.RefreshInterval = %v", cfg.Queue.RefreshInterval)
	}
	if !cfg.Policies.Options.AdvisoryCommitteeRejection || cfg.Policies.Options.AutoOpenFirstReview {
		t.Errorf("Policies.Options = %+v", cfg.Policies.Options)
	}

	// Untouched sections keep their defaults.
	if cfg.Identity.Provider != "header" {
		t.Errorf("Identity.Provider = %q, want default header", cfg.Identity.Provider)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want default", cfg.Server.ReadTimeout)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		format  Format
		opts    []LoaderOption
		wantErr error
	}{
		{
			name:    "malformed yaml",
			content: "server: [unterminated",
			format:  FormatYAML,
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name:    "malformed json",
			content: `{"server":`,
			format:  FormatJSON,
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name:    "unsupported format",
			content: "x = 1",
			format:  Format("toml"),
			wantErr: domainconfig.ErrUnsupportedFormat,
		},
		{
			name:    "validation failure",
			content: "storage:\n  backend: cassandra\n",
			format:  FormatYAML,
			wantErr: domainconfig.ErrValidationFailed,
		},
		{
			name:    "strict env",
			content: "name: ${MUTAFLOW_LOADER_TEST_UNSET}\n",
			format:  FormatYAML,
			opts:    []LoaderOption{WithStrictEnv(true)},
			wantErr: domainconfig.ErrMissingEnvVar,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLoaderWithOptions(tt.opts...).LoadString(tt.content, tt.format)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadString() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoaderWithOptions(WithValidation(false)).LoadString("storage:\n  backend: cassandra\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Storage.Backend != "cassandra" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("MUTAFLOW_LOADER_ADDR", ":7070")

	cfg, err := NewLoader().LoadString("server:\n  address: ${MUTAFLOW_LOADER_ADDR}\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}

	raw, err := NewLoaderWithOptions(WithEnvExpansion(false), WithValidation(false)).
		LoadString("name: ${MUTAFLOW_LOADER_ADDR}\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if raw.Name != "${MUTAFLOW_LOADER_ADDR}" {
		t.Errorf("Name = %q, want unexpanded", raw.Name)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mutaflow.yaml")
	content := "name: from-file\npolicies:\n  file: policies.yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Name != "from-file" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if want := filepath.Join(dir, "policies.yaml"); cfg.Policies.File != want {
		t.Errorf("Policies.File = %q, want %q", cfg.Policies.File, want)
	}

	jsonPath := filepath.Join(dir, "mutaflow.json")
	if err := os.WriteFile(jsonPath, []byte(`{"name":"json"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if cfg, err := NewLoader().LoadFile(jsonPath); err != nil || cfg.Name != "json" {
		t.Errorf("LoadFile(json) = %v, %v", cfg, err)
	}
}

func TestLoader_LoadFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	txt := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(txt, []byte("name: x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing", filepath.Join(dir, "nope.yaml"), domainconfig.ErrConfigNotFound},
		{"directory", dir, domainconfig.ErrInvalidFormat},
		{"extension", txt, domainconfig.ErrUnsupportedFormat},
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

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().Load(strings.NewReader(`{"name":"reader"}`), FormatJSON)
	if err != nil || cfg.Name != "reader" {
		t.Errorf("Load() = %v, %v", cfg, err)
	}
}
