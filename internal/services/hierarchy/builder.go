package hierarchy

import (
	"fmt"
	"strings"

	"brigadas-analytics/internal/models"
)

// Build turns nested gateway rows into a three-level forest of worker nodes.
// Citizens are counted, not materialized. Any malformed row aborts the whole build
// with a *BuildError; a partial tree is never returned.
func Build(rows []models.Leader, calc Calculator) ([]*HierarchyNode, error) {
	tree := make([]*HierarchyNode, 0, len(rows))

	for i := range rows {
		leader := &rows[i]
		path := fmt.Sprintf("leaders[%d]", i)
		if err := validateRecord(RoleLeader, path, leader.ID, leader.PersonRecord); err != nil {
			return nil, err
		}

		root := newNode(leader.ID, "", RoleLeader, 0, leader.PersonRecord, calc)

		// Leader totals come straight from the citizen rows, not from the
		// brigade members' already-summed counts.
		total := 0
		for j := range leader.BrigadeMembers {
			member := &leader.BrigadeMembers[j]
			memberPath := fmt.Sprintf("%s.brigadistas[%d]", path, j)
			if err := validateRecord(RoleBrigadeMember, memberPath, member.ID, member.PersonRecord); err != nil {
				return nil, err
			}

			memberNode := newNode(member.ID, leader.ID, RoleBrigadeMember, 1, member.PersonRecord, calc)
			memberTotal := 0

			for k := range member.Mobilizers {
				mobilizer := &member.Mobilizers[k]
				mobilizerPath := fmt.Sprintf("%s.movilizadores[%d]", memberPath, k)
				if err := validateRecord(RoleMobilizer, mobilizerPath, mobilizer.ID, mobilizer.PersonRecord); err != nil {
					return nil, err
				}
				for c := range mobilizer.Citizens {
					if strings.TrimSpace(mobilizer.Citizens[c].ID) == "" {
						return nil, &BuildError{
							Role:   RoleMobilizer,
							Path:   fmt.Sprintf("%s.ciudadanos[%d]", mobilizerPath, c),
							Field:  "id",
							Reason: "is empty",
						}
					}
				}

				leaves := len(mobilizer.Citizens)
				mobilizerNode := newNode(mobilizer.ID, member.ID, RoleMobilizer, 2, mobilizer.PersonRecord, calc)
				mobilizerNode.setRegistered(leaves)

				memberNode.Children = append(memberNode.Children, mobilizerNode)
				memberTotal += leaves
				total += leaves
			}

			memberNode.setRegistered(memberTotal)
			root.Children = append(root.Children, memberNode)
		}

		root.setRegistered(total)
		tree = append(tree, root)
	}

	return tree, nil
}

func newNode(id, parentID string, role Role, level int, rec models.PersonRecord, calc Calculator) *HierarchyNode {
	return &HierarchyNode{
		ID:       id,
		Name:     rec.Name,
		Role:     role,
		Level:    level,
		ParentID: parentID,
		Location: Location{
			Region:     rec.Region,
			SubRegion:  rec.SubRegion,
			Sector:     rec.Sector,
			Locality:   rec.Locality,
			PostalCode: rec.PostalCode,
		},
		Children: []*HierarchyNode{},
		Performance: PerformanceMetrics{
			VerificationRate: calc.VerificationRate(rec),
			DataCompleteness: calc.DataCompleteness(rec),
			Trend:            calc.Trend(rec),
			LastActivity:     rec.CreatedAt,
		},
		IsActive:     calc.IsActive(rec.CreatedAt),
		LastActivity: rec.CreatedAt,
	}
}

func (n *HierarchyNode) setRegistered(count int) {
	n.RegisteredCount = count
	n.Performance.RegisteredCount = count
}

func validateRecord(role Role, path, id string, rec models.PersonRecord) error {
	if strings.TrimSpace(id) == "" {
		return &BuildError{Role: role, Path: path, Field: "id", Reason: "is empty"}
	}
	if strings.TrimSpace(rec.Name) == "" {
		return &BuildError{Role: role, Path: path, Field: "name", Reason: "is empty"}
	}
	return nil
}
