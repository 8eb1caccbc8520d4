package workflow_test

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
)

var baseTime = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func newEngine() *workflow.Engine {
	var seq atomic.Int64
	return workflow.NewEngine(
		workflow.StaticSource{Set: policy.DefaultSet(policy.DefaultOptions())},
		workflow.WithClock(func() time.Time { return baseTime.Add(time.Hour) }),
		workflow.WithIDGenerator(func() string { return fmt.Sprintf("dec-%d", seq.Add(1)) }),
	)
}

func request(id string, st status.Status, serviceID string, age time.Duration) *mutation.Request {
	submitted := baseTime.Add(-age)
	return &mutation.Request{
		ID:               id,
		Kind:             mutation.KindOrdinary,
		Requester:        mutation.Resolved(mutation.Agent{ID: "agent-" + id, Name: "Agent " + id, ServiceID: serviceID}),
		DesiredLocations: []string{"Sokodé"},
		Motive:           "motive " + id,
		Status:           st,
		CreatedAt:        submitted,
		SubmittedAt:      &submitted,
		UpdatedAt:        submitted,
	}
}

func manager(id, scope string) identity.Actor {
	return identity.Actor{ID: id, Role: identity.RoleResponsable, Scope: scope}
}

func reviewer(id string, role identity.Role) identity.Actor {
	return identity.Actor{ID: id, Role: role}
}
