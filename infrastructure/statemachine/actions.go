package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// recordStep appends the transition to the trail. The target is filled in
// by the interpreter once the chart has settled.
func recordStep(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx
	c.Trail = append(c.Trail, Step{
		Event: event.Type,
		Role:  payloadRole(event),
		From:  c.Current,
	})
}
