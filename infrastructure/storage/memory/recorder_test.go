package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/memory"
)

func TestRecorder_Record(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		seed       func(t *testing.T, decisions *memory.DecisionStore)
		d          *validation.Decision
		expected   status.Status
		wantErr    error
		wantStatus status.Status
		wantCount  int
	}{
		{
			name:       "commits both writes",
			d:          decision("d1", "req-1", "m1", identity.RoleResponsable),
			expected:   status.Draft,
			wantStatus: status.Submitted,
			wantCount:  1,
		},
		{
			name:       "status conflict keeps no decision",
			d:          decision("d1", "req-1", "m1", identity.RoleResponsable),
			expected:   status.UnderLineReview,
			wantErr:    mutation.ErrStatusConflict,
			wantStatus: status.Draft,
			wantCount:  0,
		},
		{
			name: "taken pair leaves the request alone",
			seed: func(t *testing.T, decisions *memory.DecisionStore) {
				if _, err := decisions.Create(context.Background(), decision("d0", "req-1", "m0", identity.RoleResponsable)); err != nil {
					t.Fatalf("Create() error = %v", err)
				}
			},
			d:          decision("d1", "req-1", "m1", identity.RoleResponsable),
			expected:   status.Draft,
			wantErr:    validation.ErrDecisionExists,
			wantStatus: status.Draft,
			wantCount:  1,
		},
		{
			name:       "unknown request",
			d:          decision("d1", "missing", "m1", identity.RoleResponsable),
			expected:   status.Draft,
			wantErr:    mutation.ErrRequestNotFound,
			wantStatus: status.Draft,
			wantCount:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			requests := memory.NewRequestStore()
			decisions := memory.NewDecisionStore()
			if err := requests.Save(ctx, draft("req-1", "agent-1")); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if tt.seed != nil {
				tt.seed(t, decisions)
			}

			rec := memory.NewRecorder(requests, decisions)
			_, updated, err := rec.Record(ctx, tt.d, mutation.Patch{
				ExpectedStatus: tt.expected,
				Status:         statusPtr(status.Submitted),
				UpdatedAt:      now,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Record() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && updated.Status != tt.wantStatus {
				t.Errorf("returned status = %s, want %s", updated.Status, tt.wantStatus)
			}

			stored, err := requests.Get(ctx, "req-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if stored.Status != tt.wantStatus {
				t.Errorf("stored status = %s, want %s", stored.Status, tt.wantStatus)
			}
			if decisions.Len() != tt.wantCount {
				t.Errorf("decisions = %d, want %d", decisions.Len(), tt.wantCount)
			}
		})
	}
}

func TestRecorder_RejectsInvalidDecision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	requests := memory.NewRequestStore()
	decisions := memory.NewDecisionStore()
	if err := requests.Save(ctx, draft("req-1", "agent-1")); err != nil {
		t.Fatal(err)
	}

	d := decision("d1", "req-1", "m1", identity.RoleResponsable)
	d.Comment = ""
	_, _, err := memory.NewRecorder(requests, decisions).Record(ctx, d, mutation.Patch{Status: statusPtr(status.Submitted)})
	if !errors.Is(err, validation.ErrInvalidDecision) {
		t.Fatalf("Record() error = %v, want ErrInvalidDecision", err)
	}
	if got, _ := requests.Get(ctx, "req-1"); got.Status != status.Draft {
		t.Errorf("status = %s, want DRAFT", got.Status)
	}
}
