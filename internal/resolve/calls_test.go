package resolve

import (
	"testing"

	"github.com/lodestone-ai/codegraph/internal/model"
)

func mkSymbol(id, name, qualName string) model.Symbol {
	return model.Symbol{
		ID:         id,
		SnapshotID: "snap-1",
		FileID:     "file-1",
		Kind:       model.KindFunction,
		Name:       name,
		QualName:   qualName,
	}
}

func mkCall(id, callee string) model.CallSite {
	return model.CallSite{
		ID:             id,
		SnapshotID:     "snap-1",
		CallerSymbolID: "sym-caller",
		CalleeName:     callee,
		Kind:           model.CallDirect,
	}
}

func TestCallResolverShortAndQualNames(t *testing.T) {
	symbols := []model.Symbol{
		mkSymbol("sym-foo", "foo", "foo"),
		mkSymbol("sym-save", "save", "Service.save"),
	}
	r := NewCallResolver(discardLogger(), symbols)

	edges, resolved := r.Resolve([]model.CallSite{
		mkCall("c-1", "foo"),
		mkCall("c-2", "save"),
		mkCall("c-3", "Service.save"),
		mkCall("c-4", "external_lib_call"),
	})

	if len(resolved) != 3 {
		t.Fatalf("resolved = %v, want 3 ids", resolved)
	}
	if len(edges) != 3 {
		t.Fatalf("got %d edges, want 3: %+v", len(edges), edges)
	}
	for _, e := range edges {
		if e.Type != model.EdgeResolvesTo {
			t.Errorf("edge type = %s", e.Type)
		}
	}
	// c-4 has no match and must stay unresolved.
	for _, id := range resolved {
		if id == "c-4" {
			t.Error("external call marked resolved")
		}
	}
}

func TestCallResolverAllSameNamedMatchesGetEdges(t *testing.T) {
	// Same-named methods on different classes are not disambiguated.
	symbols := []model.Symbol{
		mkSymbol("sym-a", "save", "UserRepo.save"),
		mkSymbol("sym-b", "save", "ItemRepo.save"),
	}
	r := NewCallResolver(discardLogger(), symbols)

	edges, resolved := r.Resolve([]model.CallSite{mkCall("c-1", "save")})

	if len(resolved) != 1 {
		t.Fatalf("resolved = %v", resolved)
	}
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want one per matching symbol: %+v", len(edges), edges)
	}
	targets := map[string]bool{edges[0].TargetID: true, edges[1].TargetID: true}
	if !targets["sym-a"] || !targets["sym-b"] {
		t.Errorf("edge targets = %v", targets)
	}
}

func TestCallResolverRerunIsStable(t *testing.T) {
	symbols := []model.Symbol{mkSymbol("sym-foo", "foo", "foo")}
	r := NewCallResolver(discardLogger(), symbols)

	calls := []model.CallSite{mkCall("c-1", "foo")}
	edges1, resolved1 := r.Resolve(calls)

	// Second run over the already-resolved site: same edges, same ids, so a
	// batch upsert cannot flip the flag back.
	calls[0].Resolved = true
	edges2, resolved2 := r.Resolve(calls)

	if len(edges1) != len(edges2) || len(resolved1) != len(resolved2) {
		t.Fatal("re-run changed resolver output")
	}
	if resolved2[0] != "c-1" {
		t.Errorf("resolved ids = %v", resolved2)
	}
}

func TestCallResolverNoDuplicateEdgeWhenNameEqualsQualName(t *testing.T) {
	symbols := []model.Symbol{mkSymbol("sym-foo", "foo", "foo")}
	r := NewCallResolver(discardLogger(), symbols)

	edges, _ := r.Resolve([]model.CallSite{mkCall("c-1", "foo")})
	if len(edges) != 1 {
		t.Fatalf("got %d edges, want 1: %+v", len(edges), edges)
	}
}
