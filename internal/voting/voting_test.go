package voting

import (
	"testing"

	"walrus/internal/types"
)

func TestQuorumBoundary(t *testing.T) {
	// n=100: 2/3 = 66.67, so w=67 is quorum, w=66 is not.
	if Quorum(66, 100) {
		t.Error("66/100 should not meet quorum")
	}
	if !Quorum(67, 100) {
		t.Error("67/100 should meet quorum")
	}
}

func TestValidityBoundary(t *testing.T) {
	// n=100: 1/3 = 33.33, so w=34 is validity, w=33 is not.
	if Validity(33, 100) {
		t.Error("33/100 should not meet validity")
	}
	if !Validity(34, 100) {
		t.Error("34/100 should meet validity")
	}
}

func TestQuorumWeight(t *testing.T) {
	cases := []struct{ n, want int }{
		{100, 67},
		{1, 1},
		{3, 3},
		{99, 67},
	}
	for _, c := range cases {
		got := QuorumWeight(c.n)
		if got != c.want {
			t.Errorf("QuorumWeight(%d) = %d, want %d", c.n, got, c.want)
		}
		if !Quorum(got, c.n) {
			t.Errorf("QuorumWeight(%d) = %d does not itself satisfy Quorum", c.n, got)
		}
		if got > 0 && Quorum(got-1, c.n) {
			t.Errorf("QuorumWeight(%d) = %d is not minimal", c.n, got)
		}
	}
}

func TestValidityWeight(t *testing.T) {
	cases := []struct{ n, want int }{
		{100, 34},
		{1, 1},
		{3, 2},
	}
	for _, c := range cases {
		got := ValidityWeight(c.n)
		if got != c.want {
			t.Errorf("ValidityWeight(%d) = %d, want %d", c.n, got, c.want)
		}
		if !Validity(got, c.n) {
			t.Errorf("ValidityWeight(%d) = %d does not itself satisfy Validity", c.n, got)
		}
		if got > 0 && Validity(got-1, c.n) {
			t.Errorf("ValidityWeight(%d) = %d is not minimal", c.n, got)
		}
	}
}

func TestHighestValidLifecyclePicksHighestRank(t *testing.T) {
	statuses := []types.BlobStatus{
		{Lifecycle: types.LifecycleNonexistent},
		{Lifecycle: types.LifecyclePermanent},
	}
	weights := []int{20, 80}

	best, found := HighestValidLifecycle(statuses, weights, 100)
	if !found {
		t.Fatal("expected a valid lifecycle to be found")
	}
	if best.Lifecycle != types.LifecyclePermanent {
		t.Errorf("got %v, want Permanent", best.Lifecycle)
	}
}

func TestHighestValidLifecycleRejectsBelowValidity(t *testing.T) {
	statuses := []types.BlobStatus{{Lifecycle: types.LifecyclePermanent}}
	weights := []int{10} // below 1/3 of 100

	_, found := HighestValidLifecycle(statuses, weights, 100)
	if found {
		t.Error("expected no lifecycle to meet validity weight")
	}
}

func TestHighestValidLifecycleMultipleValidPicksHighest(t *testing.T) {
	// Two lifecycles both clear validity; the higher-ranked one must win,
	// mirroring the walrus rule that a node reporting a stale "nonexistent"
	// view never overrides a validity-backed "deletable" report.
	statuses := []types.BlobStatus{
		{Lifecycle: types.LifecycleNonexistent},
		{Lifecycle: types.LifecycleDeletable},
	}
	weights := []int{40, 40}

	best, found := HighestValidLifecycle(statuses, weights, 100)
	if !found {
		t.Fatal("expected a valid lifecycle")
	}
	if best.Lifecycle != types.LifecycleDeletable {
		t.Errorf("got %v, want Deletable", best.Lifecycle)
	}
}
