package workflow_test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
)

var (
	allStatuses = status.All()
	allRoles    = identity.Reviewers()
	services    = []string{"", "svc-1", "svc-2"}
)

// world builds a request set and decision log from generated indices.
func world(statusIdx, serviceIdx, decidedBy []int) ([]*mutation.Request, []*validation.Decision) {
	var reqs []*mutation.Request
	var decisions []*validation.Decision
	for i, si := range statusIdx {
		svc := services[serviceIdx[i%len(serviceIdx)]]
		r := request(fmt.Sprintf("r%02d", i), allStatuses[si], svc, time.Duration(i%4)*time.Hour)
		reqs = append(reqs, r)
		if len(decidedBy) > 0 {
			if ri := decidedBy[i%len(decidedBy)]; ri < len(allRoles) {
				decisions = append(decisions, &validation.Decision{
					ID:        fmt.Sprintf("d%02d", i),
					RequestID: r.ID,
					ActorID:   "actor",
					Role:      allRoles[ri],
					Outcome:   validation.Approve,
					Comment:   "ok",
				})
			}
		}
	}
	return reqs, decisions
}

func TestQueueForIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("queueFor is a pure function of its inputs", prop.ForAll(
		func(statusIdx, serviceIdx, decidedBy []int, roleIdx, scopeIdx int) bool {
			if len(serviceIdx) == 0 {
				serviceIdx = []int{0}
			}
			reqs, decisions := world(statusIdx, serviceIdx, decidedBy)
			role := allRoles[roleIdx]
			scope := services[scopeIdx]

			first := workflow.QueueFor(defaultSet(), role, "actor", reqs, decisions, scope)
			second := workflow.QueueFor(defaultSet(), role, "actor", reqs, decisions, scope)
			if !reflect.DeepEqual(first.IDs(), second.IDs()) {
				return false
			}

			decided := make(map[string]bool)
			for _, d := range decisions {
				if d.Role == role {
					decided[d.RequestID] = true
				}
			}
			for _, r := range first.Requests {
				if decided[r.ID] {
					return false
				}
				if !defaultSet().Ordinary.CanAct(role, r.Status) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allStatuses)-1)),
		gen.SliceOf(gen.IntRange(0, len(services)-1)),
		gen.SliceOf(gen.IntRange(0, len(allRoles))),
		gen.IntRange(0, len(allRoles)-1),
		gen.IntRange(0, len(services)-1),
	))

	properties.TestingRun(t)
}

func TestApplyWithBlankCommentAlwaysFails(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	engine := newEngine()

	properties.Property("blank comment yields MissingComment", prop.ForAll(
		func(statusIdx, roleIdx, spaces int, approve bool) bool {
			outcome := validation.Reject
			if approve {
				outcome = validation.Approve
			}
			req := request("r", allStatuses[statusIdx], "svc-1", 0)
			actor := identity.Actor{ID: "a", Role: allRoles[roleIdx], Scope: "svc-1"}
			_, err := engine.Apply(req, actor, outcome, strings.Repeat(" \t\n", spaces), nil)
			return errors.Is(err, workflow.ErrMissingComment)
		},
		gen.IntRange(0, len(allStatuses)-1),
		gen.IntRange(0, len(allRoles)-1),
		gen.IntRange(0, 3),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestApplyThenDuplicate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	engine := newEngine()

	properties.Property("a successful apply spends the (request, role) pair", prop.ForAll(
		func(statusIdx, roleIdx int, approve bool) bool {
			outcome := validation.Reject
			if approve {
				outcome = validation.Approve
			}
			req := request("r", allStatuses[statusIdx], "svc-1", 0)
			actor := identity.Actor{ID: "a", Role: allRoles[roleIdx], Scope: "svc-1"}

			first, err := engine.Apply(req, actor, outcome, "ok", nil)
			if err != nil {
				// Not actionable: nothing to spend.
				return errors.Is(err, workflow.ErrInvalidStateForRole)
			}
			log := []*validation.Decision{first.Decision}

			count := 0
			for _, d := range log {
				if d.RequestID == req.ID && d.Role == actor.Role {
					count++
				}
			}
			if count != 1 {
				return false
			}

			_, err = engine.Apply(first.Request, actor, outcome, "again", log)
			return errors.Is(err, workflow.ErrDuplicateDecision)
		},
		gen.IntRange(0, len(allStatuses)-1),
		gen.IntRange(0, len(allRoles)-1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
