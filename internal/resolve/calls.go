package resolve

import (
	"log/slog"

	"github.com/lodestone-ai/codegraph/internal/model"
)

// CallResolver matches call sites to same-snapshot symbols by exact short
// name or qualified name. Name-based on purpose: overloads and same-named
// methods across classes all receive an edge.
type CallResolver struct {
	log *slog.Logger

	byName     map[string][]string // short name -> symbol ids
	byQualName map[string][]string
}

// NewCallResolver indexes one snapshot's complete symbol set.
func NewCallResolver(log *slog.Logger, symbols []model.Symbol) *CallResolver {
	r := &CallResolver{
		log:        log,
		byName:     make(map[string][]string, len(symbols)),
		byQualName: make(map[string][]string, len(symbols)),
	}
	for _, s := range symbols {
		r.byName[s.Name] = append(r.byName[s.Name], s.ID)
		if s.QualName != s.Name {
			r.byQualName[s.QualName] = append(r.byQualName[s.QualName], s.ID)
		}
	}
	return r
}

// Resolve returns RESOLVES_TO edges for every matching call site plus the
// ids of call sites to flip resolved in one batch update. Call sites with no
// match stay unresolved permanently; that is a marker, not an error.
// Re-running over already-resolved sites yields the same edges and ids, so
// the flag is monotonic.
func (r *CallResolver) Resolve(calls []model.CallSite) (edges []model.Edge, resolvedIDs []string) {
	for _, c := range calls {
		targets := r.match(c.CalleeName)
		if len(targets) == 0 {
			continue
		}
		for _, symID := range targets {
			edges = append(edges, model.Edge{
				SourceID: c.ID,
				TargetID: symID,
				Type:     model.EdgeResolvesTo,
			})
		}
		resolvedIDs = append(resolvedIDs, c.ID)
	}
	r.log.Debug("resolve.calls",
		"total", len(calls),
		"resolved", len(resolvedIDs))
	return edges, resolvedIDs
}

// match collects symbol ids whose short or qualified name equals the callee
// text, deduplicated.
func (r *CallResolver) match(callee string) []string {
	short := r.byName[callee]
	qual := r.byQualName[callee]
	if len(qual) == 0 {
		return short
	}
	seen := make(map[string]bool, len(short)+len(qual))
	out := make([]string, 0, len(short)+len(qual))
	for _, id := range short {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range qual {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
