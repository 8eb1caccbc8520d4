package application_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/mutaflow/application"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/memory"
)

var errConnectionReset = errors.New("connection reset")

// flakyRequests fails Update while armed.
type flakyRequests struct {
	*memory.RequestStore
	armed atomic.Bool
}

func (s *flakyRequests) Update(ctx context.Context, id string, patch mutation.Patch) (*mutation.Request, error) {
	if s.armed.Load() {
		return nil, errConnectionReset
	}
	return s.RequestStore.Update(ctx, id, patch)
}

// flakyDecisions fails Create while armed.
type flakyDecisions struct {
	*memory.DecisionStore
	armed atomic.Bool
}

func (s *flakyDecisions) Create(ctx context.Context, d *validation.Decision) (*validation.Decision, error) {
	if s.armed.Load() {
		return nil, errConnectionReset
	}
	return s.DecisionStore.Create(ctx, d)
}

// flakyRecorder fails the next Record once armed, leaving both stores as
// a rolled-back transaction would.
type flakyRecorder struct {
	*memory.Recorder
	armed atomic.Bool
}

func (r *flakyRecorder) Record(ctx context.Context, d *validation.Decision, patch mutation.Patch) (*validation.Decision, *mutation.Request, error) {
	if r.armed.CompareAndSwap(true, false) {
		return nil, nil, errConnectionReset
	}
	return r.Recorder.Record(ctx, d, patch)
}

type flakyEnv struct {
	svc       *application.WorkflowService
	requests  *flakyRequests
	decisions *flakyDecisions
	recorder  *flakyRecorder
}

func newFlakyEnv(t *testing.T) *flakyEnv {
	t.Helper()

	requests := memory.NewRequestStore()
	decisions := memory.NewDecisionStore()
	e := &flakyEnv{
		requests:  &flakyRequests{RequestStore: requests},
		decisions: &flakyDecisions{DecisionStore: decisions},
		recorder:  &flakyRecorder{Recorder: memory.NewRecorder(requests, decisions)},
	}
	svc, err := application.New(
		application.WithEngine(workflow.NewEngine(workflow.StaticSource{Set: policy.DefaultSet(policy.DefaultOptions())})),
		application.WithRequestStore(e.requests),
		application.WithDecisionStore(e.decisions),
		application.WithRecorder(e.recorder),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	e.svc = svc
	return e
}

func TestNewWorkflowService_RequiresRecorder(t *testing.T) {
	t.Parallel()

	_, err := application.New(
		application.WithEngine(workflow.NewEngine(workflow.StaticSource{Set: policy.DefaultSet(policy.DefaultOptions())})),
		application.WithRequestStore(memory.NewRequestStore()),
		application.WithDecisionStore(memory.NewDecisionStore()),
	)
	if err == nil {
		t.Fatal("New() without a recorder should fail for a store that cannot record")
	}
}

func TestDecide_StorageFailures(t *testing.T) {
	t.Parallel()

	type op func(e *flakyEnv, id string) (*application.DecisionResult, error)
	decide := func(e *flakyEnv, id string) (*application.DecisionResult, error) {
		return e.svc.Decide(context.Background(), manager, id, validation.Approve, "ok")
	}
	ineligible := func(e *flakyEnv, id string) (*application.DecisionResult, error) {
		return e.svc.DeclareIneligible(context.Background(), manager, id, "hors délai")
	}

	tests := []struct {
		name      string
		op        op
		arm       func(e *flakyEnv)
		wantFirst error
		want      status.Status
	}{
		{"decide with failing insert", decide, func(e *flakyEnv) { e.decisions.armed.Store(true) }, nil, status.LineApproved},
		{"decide with failing update", decide, func(e *flakyEnv) { e.requests.armed.Store(true) }, nil, status.LineApproved},
		{"decide with failing commit", decide, func(e *flakyEnv) { e.recorder.armed.Store(true) }, errConnectionReset, status.LineApproved},
		{"ineligible with failing insert", ineligible, func(e *flakyEnv) { e.decisions.armed.Store(true) }, nil, status.Ineligible},
		{"ineligible with failing update", ineligible, func(e *flakyEnv) { e.requests.armed.Store(true) }, nil, status.Ineligible},
		{"ineligible with failing commit", ineligible, func(e *flakyEnv) { e.recorder.armed.Store(true) }, errConnectionReset, status.Ineligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newFlakyEnv(t)
			ctx := context.Background()
			req, err := e.svc.CreateRequest(ctx, agent, application.CreateInput{
				Motive:    "rapprochement familial",
				Locations: []string{"Kara"},
				Name:      "Ama Koffi",
				Matricule: "M-001",
			})
			if err != nil {
				t.Fatalf("CreateRequest() error = %v", err)
			}
			if _, err := e.svc.Submit(ctx, agent, req.ID); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			tt.arm(e)

			res, err := tt.op(e, req.ID)
			if !errors.Is(err, tt.wantFirst) {
				t.Fatalf("first attempt error = %v, want %v", err, tt.wantFirst)
			}
			if err != nil {
				// Nothing was kept: the request is still waiting on the manager.
				stored, _ := e.requests.RequestStore.Get(ctx, req.ID)
				if stored.Status != status.UnderLineReview {
					t.Errorf("status after failure = %s, want UNDER_LINE_REVIEW", stored.Status)
				}
				if n := e.decisions.Len(); n != 0 {
					t.Errorf("decisions after failure = %d, want 0", n)
				}
				q, err := e.svc.Queue(ctx, manager)
				if err != nil {
					t.Fatalf("Queue() error = %v", err)
				}
				if len(q.Requests) != 1 {
					t.Errorf("manager queue = %d requests, want 1", len(q.Requests))
				}

				res, err = tt.op(e, req.ID)
				if err != nil {
					t.Fatalf("retry error = %v", err)
				}
			}

			if res.Request.Status != tt.want {
				t.Errorf("status = %s, want %s", res.Request.Status, tt.want)
			}
			stored, err := e.requests.RequestStore.Get(ctx, req.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if stored.Status != tt.want {
				t.Errorf("stored status = %s, want %s", stored.Status, tt.want)
			}
			if n := e.decisions.Len(); n != 1 {
				t.Errorf("decisions = %d, want 1", n)
			}
		})
	}
}
