package hierarchy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Flatten lists the tree in pre-order (root, then each child's subtree in order).
// Each entry is a copy annotated with its zero-based depth and without children,
// so callers may modify the result freely.
func Flatten(tree []*HierarchyNode) []HierarchyNode {
	var flat []HierarchyNode

	var walk func(n *HierarchyNode, depth int)
	walk = func(n *HierarchyNode, depth int) {
		entry := *n
		entry.Level = depth
		entry.Children = nil
		flat = append(flat, entry)

		for _, child := range n.Children {
			walk(child, depth+1)
		}
	}

	for _, root := range tree {
		walk(root, 0)
	}
	return flat
}

// Search returns flattened nodes whose name or any location field contains term,
// ignoring case and accents. An empty term matches every node.
func Search(term string, tree []*HierarchyNode) []HierarchyNode {
	return searchFlat(term, Flatten(tree))
}

// FilterByBand returns flattened nodes whose composite score falls in band
func FilterByBand(band Band, tree []*HierarchyNode) []HierarchyNode {
	return bandFlat(band, Flatten(tree))
}

func bandFlat(band Band, flat []HierarchyNode) []HierarchyNode {
	matched := make([]HierarchyNode, 0, len(flat))
	for i := range flat {
		if BandOf(Score(&flat[i])) == band {
			matched = append(matched, flat[i])
		}
	}
	return matched
}

func searchFlat(term string, flat []HierarchyNode) []HierarchyNode {
	needle := normalizeText(term)
	if needle == "" {
		return flat
	}

	matched := make([]HierarchyNode, 0)
	for i := range flat {
		if matchesTerm(&flat[i], needle) {
			matched = append(matched, flat[i])
		}
	}
	return matched
}

func matchesTerm(n *HierarchyNode, needle string) bool {
	if strings.Contains(normalizeText(n.Name), needle) {
		return true
	}
	for _, field := range n.Location.fields() {
		if field != "" && strings.Contains(normalizeText(field), needle) {
			return true
		}
	}
	return false
}

// normalizeText lower-cases s and strips combining marks, so "Peña" matches "pena"
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// applyViewFilter narrows a flattened list by the filter options the gateway does not handle
func applyViewFilter(flat []HierarchyNode, f *Filter) []HierarchyNode {
	if f == nil {
		return flat
	}

	roles := make(map[Role]bool, len(f.Roles))
	for _, r := range f.Roles {
		roles[r] = true
	}
	needle := normalizeText(f.SearchTerm)

	kept := make([]HierarchyNode, 0, len(flat))
	for i := range flat {
		n := &flat[i]
		if len(roles) > 0 && !roles[n.Role] {
			continue
		}
		if f.ActiveOnly && !n.IsActive {
			continue
		}
		if f.PerformanceRange != nil {
			score := Score(n)
			if score < f.PerformanceRange.Min || score > f.PerformanceRange.Max {
				continue
			}
		}
		if needle != "" && !matchesTerm(n, needle) {
			continue
		}
		kept = append(kept, *n)
	}
	return kept
}
