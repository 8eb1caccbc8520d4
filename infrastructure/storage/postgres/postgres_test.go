package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Schema != "public" {
		t.Errorf("Schema = %s, want public", cfg.Schema)
	}
	if cfg.MaxConns != 10 || cfg.MinConns != 2 {
		t.Errorf("pool size = %d/%d, want 2/10", cfg.MinConns, cfg.MaxConns)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.ConnectTimeout)
	}

	for _, opt := range []ConfigOption{WithDSN("postgres://x"), WithSchema("hr"), WithPoolSize(1, 4)} {
		opt(&cfg)
	}
	if cfg.DSN != "postgres://x" || cfg.Schema != "hr" || cfg.MinConns != 1 || cfg.MaxConns != 4 {
		t.Errorf("options not applied: %+v", cfg)
	}
}

func TestTableNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		schema    string
		requests  string
		decisions string
	}{
		{"default schema", "public", "public.requests", "public.decisions"},
		{"custom schema", "hr", "hr.requests", "hr.decisions"},
		{"empty schema defaults to public", "", "public.requests", "public.decisions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewRequestStore(nil, tt.schema).tableName(); got != tt.requests {
				t.Errorf("requests tableName() = %s, want %s", got, tt.requests)
			}
			if got := NewDecisionStore(nil, tt.schema).tableName(); got != tt.decisions {
				t.Errorf("decisions tableName() = %s, want %s", got, tt.decisions)
			}
		})
	}
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	stmts := migrations("hr")
	joined := strings.Join(stmts, "\n")
	for _, want := range []string{
		"CREATE SCHEMA IF NOT EXISTS hr",
		"hr.requests",
		"hr.decisions",
		"UNIQUE (request_id, role)",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("migrations missing %q", want)
		}
	}
}

func TestValidationBeforeQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	requests := NewRequestStore(nil, "")
	decisions := NewDecisionStore(nil, "")

	if err := requests.Save(ctx, &mutation.Request{}); !errors.Is(err, mutation.ErrInvalidRequest) {
		t.Errorf("Save() error = %v, want ErrInvalidRequest", err)
	}
	if _, err := requests.Get(ctx, ""); !errors.Is(err, mutation.ErrRequestNotFound) {
		t.Errorf("Get() error = %v, want ErrRequestNotFound", err)
	}
	if _, err := requests.Update(ctx, "", mutation.Patch{}); !errors.Is(err, mutation.ErrRequestNotFound) {
		t.Errorf("Update() error = %v, want ErrRequestNotFound", err)
	}
	if _, err := decisions.Create(ctx, &validation.Decision{ID: "d"}); !errors.Is(err, validation.ErrInvalidDecision) {
		t.Errorf("Create() error = %v, want ErrInvalidDecision", err)
	}
	if _, _, err := decisions.Record(ctx, &validation.Decision{ID: "d"}, mutation.Patch{}); !errors.Is(err, validation.ErrInvalidDecision) {
		t.Errorf("Record() error = %v, want ErrInvalidDecision", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "clé dupliquée"}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"message only", errors.New("duplicate key value violates unique constraint"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBuildRequestWhere(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filter   mutation.ListFilter
		wantSQL  string
		wantArgs []any
	}{
		{"empty", mutation.ListFilter{}, "", nil},
		{
			"status and kind",
			mutation.ListFilter{Status: []status.Status{status.Submitted, status.UnderLineReview}, Kind: mutation.KindOrdinary},
			"WHERE status = ANY($1) AND kind = $2",
			[]any{[]string{"SUBMITTED", "UNDER_LINE_REVIEW"}, "ORDINAIRE"},
		},
		{
			"requester",
			mutation.ListFilter{RequesterID: "agent-1"},
			"WHERE requester_id = $1",
			[]any{"agent-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sql, args := buildRequestWhere(tt.filter)
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestBuildDecisionWhere(t *testing.T) {
	t.Parallel()

	sql, args := buildDecisionWhere(validation.ListFilter{ActorID: "user42", Role: identity.RoleDGR})
	if sql != "WHERE actor_id = $1 AND role = $2" {
		t.Errorf("sql = %q", sql)
	}
	if !reflect.DeepEqual(args, []any{"user42", "DGR"}) {
		t.Errorf("args = %v", args)
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	if wrapError(nil) != nil {
		t.Error("wrapError(nil) != nil")
	}
	if err := wrapError(context.DeadlineExceeded); !errors.Is(err, ErrOperationTimeout) {
		t.Errorf("wrapError(deadline) = %v", err)
	}
	if err := wrapError(errors.New("boom")); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("wrapError(boom) = %v", err)
	}
}
