package mutation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RequesterKind discriminates the two requester shapes.
type RequesterKind string

const (
	// RequesterResolved references a known agent record.
	RequesterResolved RequesterKind = "resolved"

	// RequesterInline carries snapshot fields from an unauthenticated submission.
	RequesterInline RequesterKind = "inline"
)

// Agent is a resolved agent record.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Matricule string `json:"matricule,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
}

// AgentSnapshot holds the fields typed in on the public submission form.
type AgentSnapshot struct {
	Name      string `json:"name"`
	Matricule string `json:"matricule"`
	ServiceID string `json:"service_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Requester is either a resolved agent or an inline snapshot.
// The zero value is neither and is rejected by Request.Validate.
type Requester struct {
	kind     RequesterKind
	agent    Agent
	snapshot AgentSnapshot
}

// Resolved returns a requester referencing a known agent.
func Resolved(a Agent) Requester {
	return Requester{kind: RequesterResolved, agent: a}
}

// Inline returns a requester carrying snapshot fields.
func Inline(s AgentSnapshot) Requester {
	return Requester{kind: RequesterInline, snapshot: s}
}

// Kind returns which shape the requester has.
func (r Requester) Kind() RequesterKind {
	return r.kind
}

// IsZero reports whether the requester is unset.
func (r Requester) IsZero() bool {
	return r.kind == ""
}

// Agent returns the resolved agent, if any.
func (r Requester) Agent() (Agent, bool) {
	return r.agent, r.kind == RequesterResolved
}

// Snapshot returns the inline snapshot, if any.
func (r Requester) Snapshot() (AgentSnapshot, bool) {
	return r.snapshot, r.kind == RequesterInline
}

// AgentID returns the agent identifier. Inline requesters have none.
func (r Requester) AgentID() string {
	if r.kind == RequesterResolved {
		return r.agent.ID
	}
	return ""
}

// ServiceID returns the organizational service of the requester, or empty if unknown.
func (r Requester) ServiceID() string {
	switch r.kind {
	case RequesterResolved:
		return strings.TrimSpace(r.agent.ServiceID)
	case RequesterInline:
		return strings.TrimSpace(r.snapshot.ServiceID)
	}
	return ""
}

// Name returns the display name of the requester.
func (r Requester) Name() string {
	switch r.kind {
	case RequesterResolved:
		return r.agent.Name
	case RequesterInline:
		return r.snapshot.Name
	}
	return ""
}

// Matricule returns the staff number of the requester.
func (r Requester) Matricule() string {
	switch r.kind {
	case RequesterResolved:
		return r.agent.Matricule
	case RequesterInline:
		return r.snapshot.Matricule
	}
	return ""
}

type requesterWire struct {
	Kind     RequesterKind  `json:"kind"`
	Agent    *Agent         `json:"agent,omitempty"`
	Snapshot *AgentSnapshot `json:"snapshot,omitempty"`
}

// MarshalJSON encodes the requester as a tagged object.
func (r Requester) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case RequesterResolved:
		a := r.agent
		return json.Marshal(requesterWire{Kind: r.kind, Agent: &a})
	case RequesterInline:
		s := r.snapshot
		return json.Marshal(requesterWire{Kind: r.kind, Snapshot: &s})
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts every shape the backend emits: a bare agent
// identifier, a tagged object, a populated agent object, or a flat
// snapshot without an identifier.
func (r *Requester) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Requester{}
		return nil
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		if strings.TrimSpace(id) == "" {
			*r = Requester{}
			return nil
		}
		*r = Resolved(Agent{ID: id})
		return nil
	}

	var tagged requesterWire
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("requester: %w", err)
	}
	switch tagged.Kind {
	case RequesterResolved:
		if tagged.Agent == nil {
			return fmt.Errorf("requester: %w: resolved without agent", ErrInvalidRequest)
		}
		*r = Resolved(*tagged.Agent)
		return nil
	case RequesterInline:
		if tagged.Snapshot == nil {
			return fmt.Errorf("requester: %w: inline without snapshot", ErrInvalidRequest)
		}
		*r = Inline(*tagged.Snapshot)
		return nil
	case "":
	default:
		return fmt.Errorf("requester: %w: kind %q", ErrInvalidRequest, tagged.Kind)
	}

	var flat struct {
		AgentSnapshot
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("requester: %w", err)
	}
	if flat.ID != "" {
		*r = Resolved(Agent{
			ID:        flat.ID,
			Name:      flat.Name,
			Matricule: flat.Matricule,
			ServiceID: flat.ServiceID,
		})
		return nil
	}
	*r = Inline(flat.AgentSnapshot)
	return nil
}
