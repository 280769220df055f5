package retrieval

import (
	"reflect"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

func passage(id string) domain.Passage {
	return domain.Passage{ID: id, Text: "text of " + id, Metadata: map[string]string{domain.MetaSource: id + ".pdf"}}
}

func rankedIDs(ranker domain.RankerName, ids ...string) domain.RankedList {
	candidates := make([]domain.Candidate, 0, len(ids))
	for i, id := range ids {
		candidates = append(candidates, domain.Candidate{Passage: passage(id), Score: float64(len(ids) - i), Rank: i + 1})
	}
	return domain.RankedList{Ranker: ranker, Candidates: candidates}
}

func fusedIDs(in []domain.FusedPassage) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, p.Passage.ID)
	}
	return out
}

func TestFuseWeightedThreeListsOrdersByFusedScore(t *testing.T) {
	f := NewFusion(DefaultWeights(), 60, nil)
	lists := []domain.RankedList{
		rankedIDs(domain.RankerDense, "p2", "p1", "p3"),
		rankedIDs(domain.RankerLexical, "p1", "p4", "p2"),
		rankedIDs(domain.RankerCrossEncoder, "p1", "p2"),
	}

	got := f.Fuse(lists, 3)
	if want := []string{"p1", "p2", "p3"}; !reflect.DeepEqual(fusedIDs(got), want) {
		t.Fatalf("unexpected order: got %v want %v", fusedIDs(got), want)
	}

	wantTop := 0.4/62 + 0.3/61 + 0.3/61
	if got[0].Score != wantTop {
		t.Fatalf("unexpected p1 score: got %v want %v", got[0].Score, wantTop)
	}
	if got[0].Appearances != 3 {
		t.Fatalf("expected p1 in 3 lists, got %d", got[0].Appearances)
	}
	if got[0].Ranks[domain.RankerDense] != 2 || got[0].Ranks[domain.RankerLexical] != 1 {
		t.Fatalf("unexpected contributing ranks: %+v", got[0].Ranks)
	}
}

func TestFuseTieBreaksByPassageID(t *testing.T) {
	f := NewFusion(Weights{Dense: 0.5, Lexical: 0.5}, 60, nil)
	lists := []domain.RankedList{
		rankedIDs(domain.RankerDense, "A", "B"),
		rankedIDs(domain.RankerLexical, "B", "A"),
	}

	got := f.Fuse(lists, 2)
	if got[0].Score != got[1].Score {
		t.Fatalf("expected tied scores, got %v and %v", got[0].Score, got[1].Score)
	}
	if want := []string{"A", "B"}; !reflect.DeepEqual(fusedIDs(got), want) {
		t.Fatalf("unexpected tie-break: got %v want %v", fusedIDs(got), want)
	}
}

func TestFuseTieBreaksByAppearancesBeforeID(t *testing.T) {
	// Z appears twice with the same total as A appearing once.
	f := NewFusion(Weights{Dense: 0.5, Lexical: 0.5}, 1, nil)
	lists := []domain.RankedList{
		{Ranker: domain.RankerDense, Candidates: []domain.Candidate{
			{Passage: passage("A"), Rank: 1},
			{Passage: passage("Z"), Rank: 3},
		}},
		{Ranker: domain.RankerLexical, Candidates: []domain.Candidate{
			{Passage: passage("Z"), Rank: 3},
		}},
	}

	got := f.Fuse(lists, 2)
	if got[0].Score != got[1].Score {
		t.Fatalf("expected tied scores, got %v and %v", got[0].Score, got[1].Score)
	}
	if got[0].Passage.ID != "Z" {
		t.Fatalf("expected passage seen in more lists first, got %v", fusedIDs(got))
	}
}

func TestFuseIsDeterministic(t *testing.T) {
	f := NewFusion(DefaultWeights(), 60, nil)
	lists := []domain.RankedList{
		rankedIDs(domain.RankerDense, "d", "c", "b", "a", "e", "f"),
		rankedIDs(domain.RankerLexical, "a", "g", "c", "h"),
		rankedIDs(domain.RankerCrossEncoder, "c", "d", "a"),
	}

	first := f.Fuse(lists, 5)
	for i := 0; i < 50; i++ {
		again := f.Fuse(lists, 5)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("fusion output changed on run %d: %v vs %v", i, fusedIDs(first), fusedIDs(again))
		}
	}
}

func TestFuseNeverInventsPassages(t *testing.T) {
	f := NewFusion(DefaultWeights(), 60, nil)
	lists := []domain.RankedList{
		rankedIDs(domain.RankerDense, "a", "b"),
		rankedIDs(domain.RankerLexical, "c"),
	}
	inputs := map[string]struct{}{"a": {}, "b": {}, "c": {}}

	for _, p := range f.Fuse(lists, 10) {
		if _, ok := inputs[p.Passage.ID]; !ok {
			t.Fatalf("fused output contains unknown passage %q", p.Passage.ID)
		}
	}
}

func TestFuseSingleListPreservesOrder(t *testing.T) {
	f := NewFusion(Weights{Dense: 1}, 60, nil)
	in := rankedIDs(domain.RankerDense, "x", "a", "m", "b")

	got := f.Fuse([]domain.RankedList{in}, 4)
	if want := []string{"x", "a", "m", "b"}; !reflect.DeepEqual(fusedIDs(got), want) {
		t.Fatalf("single list order changed: got %v want %v", fusedIDs(got), want)
	}
}

func TestFuseTruncatesToTopKOrUnion(t *testing.T) {
	f := NewFusion(DefaultWeights(), 60, nil)
	lists := []domain.RankedList{
		rankedIDs(domain.RankerDense, "a", "b", "c"),
		rankedIDs(domain.RankerLexical, "b", "d"),
	}

	if got := f.Fuse(lists, 2); len(got) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(got))
	}
	if got := f.Fuse(lists, 10); len(got) != 4 {
		t.Fatalf("expected union of 4 passages, got %d", len(got))
	}
	if got := f.Fuse(lists, 0); len(got) != 0 {
		t.Fatalf("expected empty output for top_k=0, got %d", len(got))
	}
}

func TestFuseHigherWeightNeverLowersPosition(t *testing.T) {
	lists := []domain.RankedList{
		rankedIDs(domain.RankerDense, "a", "b", "c", "target"),
		rankedIDs(domain.RankerLexical, "target", "a", "e"),
	}
	position := func(w Weights) int {
		for i, p := range NewFusion(w, 60, nil).Fuse(lists, 10) {
			if p.Passage.ID == "target" {
				return i
			}
		}
		t.Fatalf("target missing from fused output")
		return -1
	}

	low := position(Weights{Dense: 0.7, Lexical: 0.3})
	high := position(Weights{Dense: 0.3, Lexical: 0.7})
	if high > low {
		t.Fatalf("raising lexical weight moved target down: %d -> %d", low, high)
	}
}

func TestFuseDropsUnresolvablePassages(t *testing.T) {
	f := NewFusion(Weights{Dense: 0.5, Lexical: 0.5}, 60, nil)
	lists := []domain.RankedList{
		{Ranker: domain.RankerDense, Candidates: []domain.Candidate{
			{Passage: domain.Passage{ID: "ghost"}, Rank: 1},
			{Passage: passage("real"), Rank: 2},
		}},
	}

	got := f.Fuse(lists, 5)
	if want := []string{"real"}; !reflect.DeepEqual(fusedIDs(got), want) {
		t.Fatalf("expected unresolvable passage dropped, got %v", fusedIDs(got))
	}
	if want := 0.5 / 62; got[0].Score != want {
		t.Fatalf("expected original rank kept for real passage, score %v want %v", got[0].Score, want)
	}
}

func TestFuseCountsDuplicateWithinListOnce(t *testing.T) {
	f := NewFusion(Weights{Dense: 1}, 60, nil)
	lists := []domain.RankedList{rankedIDs(domain.RankerDense, "a", "a", "b")}

	got := f.Fuse(lists, 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 unique passages, got %v", fusedIDs(got))
	}
	if got[0].Score != 1.0/61 {
		t.Fatalf("duplicate contributed twice: %v", got[0].Score)
	}
}
