// Package similarity provides vector similarity and clustering utilities.
package similarity

import (
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared. It signals an upstream embedding-model change and must never be
// silently tolerated.
var ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")

// Cosine computes the cosine similarity of two vectors. The result is in
// [-1, 1]; embeddings from the same model version land in [0, 1] in practice.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cannot compare empty vectors")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Vector pairs an id with its embedding for clustering.
type Vector struct {
	ID        string
	Embedding []float64
}

// Cluster is a group of vectors whose similarity to the seed met the
// threshold. MemberIDs includes the seed as its first element.
type Cluster struct {
	SeedID        string
	MemberIDs     []string
	AvgSimilarity float64
}

// GreedyClusters performs a deterministic single greedy pass over vectors in
// the order given (callers pass most-recent-first). For each unassigned
// vector, every other unassigned vector meeting the threshold is absorbed
// into its cluster when at least minSize-1 do; otherwise the vector stays
// unclustered. Membership therefore depends on iteration order: two runs
// over unchanged input are identical, but a different order may yield a
// different, still threshold-valid, grouping.
//
// No id appears in two returned clusters. AvgSimilarity is the mean of
// seed-to-member similarities only. Results are sorted by member count
// descending, ties keeping pass order.
func GreedyClusters(vectors []Vector, minSize int, threshold float64) ([]Cluster, error) {
	if minSize < 2 {
		return nil, fmt.Errorf("minimum cluster size must be at least 2, got %d", minSize)
	}
	if len(vectors) < minSize {
		return nil, nil
	}

	assigned := make([]bool, len(vectors))
	var clusters []Cluster

	for i := range vectors {
		if assigned[i] {
			continue
		}

		var matchIdx []int
		var sims []float64
		for j := range vectors {
			if j == i || assigned[j] {
				continue
			}
			sim, err := Cosine(vectors[i].Embedding, vectors[j].Embedding)
			if err != nil {
				return nil, fmt.Errorf("compare %s with %s: %w", vectors[i].ID, vectors[j].ID, err)
			}
			if sim >= threshold {
				matchIdx = append(matchIdx, j)
				sims = append(sims, sim)
			}
		}

		if len(matchIdx) < minSize-1 {
			continue
		}

		// The seed and all matches form one cluster, not only the closest
		// minSize-1.
		assigned[i] = true
		members := []string{vectors[i].ID}
		var sum float64
		for k, j := range matchIdx {
			assigned[j] = true
			members = append(members, vectors[j].ID)
			sum += sims[k]
		}

		clusters = append(clusters, Cluster{
			SeedID:        vectors[i].ID,
			MemberIDs:     members,
			AvgSimilarity: sum / float64(len(matchIdx)),
		})
	}

	sort.SliceStable(clusters, func(a, b int) bool {
		return len(clusters[a].MemberIDs) > len(clusters[b].MemberIDs)
	})

	return clusters, nil
}
