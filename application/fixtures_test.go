package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/mutaflow/application"
	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/distributed/lock"
	infraevent "github.com/felixgeelhaar/mutaflow/infrastructure/event"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/memory"
)

type env struct {
	svc       *application.WorkflowService
	requests  *memory.RequestStore
	decisions *memory.DecisionStore
	events    *memory.EventStore
	policies  workflow.PolicySource
}

var (
	agent    = identity.Actor{ID: "agent-1", Role: identity.RoleAgent, Scope: "svc-1"}
	manager  = identity.Actor{ID: "mgr-1", Role: identity.RoleResponsable, Scope: "svc-1"}
	outsider = identity.Actor{ID: "mgr-2", Role: identity.RoleResponsable, Scope: "svc-2"}
	dgr      = identity.Actor{ID: "dgr-1", Role: identity.RoleDGR}
	cvr      = identity.Actor{ID: "cvr-1", Role: identity.RoleCVR}
	dncf     = identity.Actor{ID: "dncf-1", Role: identity.RoleDNCF}
)

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithOptions(t, policy.DefaultOptions())
}

func newEnvWithOptions(t *testing.T, opts policy.Options) *env {
	t.Helper()

	e := &env{
		requests:  memory.NewRequestStore(),
		decisions: memory.NewDecisionStore(),
		events:    memory.NewEventStore(),
		policies:  workflow.StaticSource{Set: policy.DefaultSet(opts)},
	}
	svc, err := application.New(
		application.WithEngine(workflow.NewEngine(e.policies)),
		application.WithRequestStore(e.requests),
		application.WithDecisionStore(e.decisions),
		application.WithRecorder(memory.NewRecorder(e.requests, e.decisions)),
		application.WithPublisher(infraevent.NewPublisher(e.events)),
		application.WithLock(lock.NewMemoryLock(), 5*time.Second,
			lock.WithRetryInterval(time.Millisecond),
			lock.WithMaxRetries(2000),
		),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	e.svc = svc
	return e
}

// submitted creates and submits a draft for agent, landing in UNDER_LINE_REVIEW.
func (e *env) submitted(t *testing.T) *mutation.Request {
	t.Helper()
	ctx := context.Background()
	req, err := e.svc.CreateRequest(ctx, agent, application.CreateInput{
		Motive:    "rapprochement familial",
		Locations: []string{"Kara", "Sokodé"},
		Name:      "Ama Koffi",
		Matricule: "M-001",
	})
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	req, err = e.svc.Submit(ctx, agent, req.ID)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return req
}

// decide is Decide that fails the test on error.
func (e *env) decide(t *testing.T, actor identity.Actor, id string, approve bool) *application.DecisionResult {
	t.Helper()
	outcome := "REJECT"
	if approve {
		outcome = "APPROVE"
	}
	res, err := e.svc.Decide(context.Background(), actor, id, outcomeOf(outcome), "vu et "+outcome)
	if err != nil {
		t.Fatalf("Decide(%s, %s) error = %v", actor.Role, outcome, err)
	}
	return res
}
