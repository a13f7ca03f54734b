package hierarchy

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Score blends verification, completeness, activity and registrations into 0-100
func Score(n *HierarchyNode) float64 {
	activity := 0.0
	if n.IsActive {
		activity = 100
	}
	registration := math.Min(float64(n.RegisteredCount)*10, 100)

	return (n.Performance.VerificationRate + n.Performance.DataCompleteness + activity + registration) / 4
}

// BandOf classifies a score. Lower bounds are inclusive.
func BandOf(score float64) Band {
	switch {
	case score >= 90:
		return BandExcellent
	case score >= 70:
		return BandGood
	case score >= 50:
		return BandAverage
	default:
		return BandPoor
	}
}

// ParseBand accepts a band name in any case
func ParseBand(s string) (Band, error) {
	switch b := Band(strings.ToLower(strings.TrimSpace(s))); b {
	case BandExcellent, BandGood, BandAverage, BandPoor:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBand, s)
	}
}

// AssignRankings returns flat (a pre-order list) ordered by descending score, with
// dense 1-based rankings. Equal scores keep their input order. The input slice and
// its nodes are left untouched.
func AssignRankings(flat []HierarchyNode) []RankedNode {
	ranked := make([]RankedNode, len(flat))
	for i := range flat {
		score := Score(&flat[i])
		ranked[i] = RankedNode{HierarchyNode: flat[i], Score: score, Band: BandOf(score)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for i := range ranked {
		ranked[i].Performance.Ranking = i + 1
	}
	return ranked
}
