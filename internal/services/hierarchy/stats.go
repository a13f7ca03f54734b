package hierarchy

// Stats aggregates the whole tree in a single pre-order walk.
// MostProductive is the first node seen with the highest RegisteredCount.
func Stats(tree []*HierarchyNode) HierarchyStats {
	stats := HierarchyStats{DeepestLevel: 1}
	var best *HierarchyNode

	var walk func(n *HierarchyNode)
	walk = func(n *HierarchyNode) {
		switch n.Role {
		case RoleLeader:
			stats.TotalLeaders++
		case RoleBrigadeMember:
			stats.TotalBrigadeMembers++
			if stats.DeepestLevel < 2 {
				stats.DeepestLevel = 2
			}
		case RoleMobilizer:
			stats.TotalMobilizers++
			stats.TotalCitizens += n.RegisteredCount
			stats.DeepestLevel = 3
		}

		if best == nil || n.RegisteredCount > best.RegisteredCount {
			best = n
		}

		for _, child := range n.Children {
			walk(child)
		}
	}

	for _, root := range tree {
		walk(root)
	}

	stats.AverageCitizensPerLeader = safeAverage(stats.TotalCitizens, stats.TotalLeaders)
	stats.AverageCitizensPerBrigadeMember = safeAverage(stats.TotalCitizens, stats.TotalBrigadeMembers)
	stats.AverageCitizensPerMobilizer = safeAverage(stats.TotalCitizens, stats.TotalMobilizers)

	if best != nil {
		stats.MostProductive = &NodeSummary{
			ID:              best.ID,
			Name:            best.Name,
			Role:            best.Role,
			RegisteredCount: best.RegisteredCount,
		}
	}

	return stats
}

func safeAverage(total, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}
