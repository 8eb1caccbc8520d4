package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
)

// Payload is attached to every event sent to the chart.
type Payload struct {
	Role identity.Role
}

const (
	guardNameRequester  statekit.GuardType = "requester"
	guardNameOwner      statekit.GuardType = "owner"
	guardNameFirstStage statekit.GuardType = "firstStage"
)

// guards are registered on the chart by name.
var guards = map[statekit.GuardType]func(*Context, statekit.Event) bool{
	guardNameRequester:  guardRequester,
	guardNameOwner:      guardOwner,
	guardNameFirstStage: guardFirstStage,
}

func payloadRole(event statekit.Event) identity.Role {
	if p, ok := event.Payload.(Payload); ok {
		return p.Role
	}
	return ""
}

// guardRequester admits submissions made without a reviewer role.
func guardRequester(_ *Context, event statekit.Event) bool {
	role := payloadRole(event)
	return role == "" || role == identity.RoleAgent
}

// guardOwner admits the role that owns the current status.
func guardOwner(ctx *Context, event statekit.Event) bool {
	if ctx == nil || ctx.Policy == nil {
		return false
	}
	owner, ok := ctx.Policy.Owner(ctx.Current)
	return ok && owner == payloadRole(event)
}

// guardFirstStage admits the head of the chain declaring ineligibility.
func guardFirstStage(ctx *Context, event statekit.Event) bool {
	if ctx == nil || ctx.Policy == nil {
		return false
	}
	return ctx.Policy.CanDeclareIneligible(payloadRole(event), ctx.Current)
}
