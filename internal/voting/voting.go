// Package voting implements the weighted quorum/validity thresholds and
// BlobStatus lifecycle tie-breaking that the dispatcher and write path
// both need.
package voting

import "walrus/internal/types"

// Quorum reports whether weight w out of n total weight exceeds 2/3,
// i.e. 3w > 2n. This is the Byzantine-safety threshold: at most f < n/3
// weight is malicious.
func Quorum(w, n int) bool {
	return 3*w > 2*n
}

// Validity reports whether weight w out of n total weight exceeds 1/3,
// i.e. 3w > n. At least one honest contributor is guaranteed to be among
// any weight meeting this threshold.
func Validity(w, n int) bool {
	return 3*w > n
}

// QuorumWeight returns the minimum integer weight that satisfies
// Quorum(w, n).
func QuorumWeight(n int) int {
	w := (2*n)/3 + 1
	for !Quorum(w, n) {
		w++
	}
	return w
}

// ValidityWeight returns the minimum integer weight that satisfies
// Validity(w, n).
func ValidityWeight(n int) int {
	w := n/3 + 1
	for !Validity(w, n) {
		w++
	}
	return w
}

// HighestValidLifecycle picks the BlobStatus with the highest lifecycle
// rank among those whose reporting weight meets the validity threshold.
// statuses and weights must be parallel slices. Returns false if no
// status reaches validity.
func HighestValidLifecycle(statuses []types.BlobStatus, weights []int, nShards int) (types.BlobStatus, bool) {
	type bucket struct {
		status types.BlobStatus
		weight int
	}

	buckets := make(map[types.BlobLifecycle]*bucket)
	order := make([]types.BlobLifecycle, 0, len(statuses))

	for i, s := range statuses {
		b, ok := buckets[s.Lifecycle]
		if !ok {
			b = &bucket{status: s}
			buckets[s.Lifecycle] = b
			order = append(order, s.Lifecycle)
		}
		b.weight += weights[i]
	}

	best := types.BlobStatus{}
	bestRank := types.BlobLifecycle(-1)
	found := false

	for _, lc := range order {
		b := buckets[lc]
		if !Validity(b.weight, nShards) {
			continue
		}
		if lc > bestRank {
			bestRank = lc
			best = b.status
			found = true
		}
	}

	return best, found
}
