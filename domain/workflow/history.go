package workflow

import (
	"sort"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// PlaceholderName is shown for a decision whose request cannot be joined.
const PlaceholderName = "Demande non disponible"

// RequestLookup resolves a request by ID for read-only joins.
type RequestLookup func(id string) (*mutation.Request, bool)

// LookupFrom indexes requests for use as a RequestLookup.
func LookupFrom(requests []*mutation.Request) RequestLookup {
	index := make(map[string]*mutation.Request, len(requests))
	for _, r := range requests {
		if r != nil {
			index[r.ID] = r
		}
	}
	return func(id string) (*mutation.Request, bool) {
		r, ok := index[id]
		return r, ok
	}
}

// HistorySource says where an entry's request summary came from.
type HistorySource string

const (
	// SourceSnapshot means the summary was captured with the decision.
	SourceSnapshot HistorySource = "snapshot"

	// SourceJoined means the summary was read from the current request.
	SourceJoined HistorySource = "joined"

	// SourcePlaceholder means the request could not be resolved.
	SourcePlaceholder HistorySource = "placeholder"
)

// HistoryEntry is one past decision with its request context.
type HistoryEntry struct {
	Decision *validation.Decision `json:"decision"`
	Request  mutation.Summary     `json:"request"`
	Source   HistorySource        `json:"source"`
}

// HistoryFor lists the decisions actorID made in role, most recent first.
// Each entry carries the request as seen at decision time when captured,
// else the current request from lookup, else a placeholder. A nil lookup
// is allowed.
func HistoryFor(
	role identity.Role,
	actorID string,
	decisions []*validation.Decision,
	lookup RequestLookup,
) []HistoryEntry {
	entries := make([]HistoryEntry, 0)
	for _, d := range decisions {
		if d == nil || d.Role != role || d.ActorID != actorID {
			continue
		}
		entry := HistoryEntry{Decision: d.Clone()}
		switch {
		case d.Snapshot != nil:
			entry.Request = *entry.Decision.Snapshot
			entry.Source = SourceSnapshot
		default:
			if req, ok := resolve(lookup, d.RequestID); ok {
				entry.Request = req.Summarize()
				entry.Source = SourceJoined
			} else {
				entry.Request = mutation.Summary{
					RequestID:     d.RequestID,
					Resolved:      false,
					RequesterName: PlaceholderName,
				}
				entry.Source = SourcePlaceholder
			}
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Decision, entries[j].Decision
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return entries
}

func resolve(lookup RequestLookup, id string) (*mutation.Request, bool) {
	if lookup == nil || id == "" {
		return nil, false
	}
	req, ok := lookup(id)
	return req, ok && req != nil
}
