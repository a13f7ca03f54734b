package hierarchy

import (
	"fmt"
	"time"

	"brigadas-analytics/internal/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return testNow.Add(-time.Duration(d) * 24 * time.Hour)
}

func person(name string, created time.Time) models.PersonRecord {
	return models.PersonRecord{Name: name, CreatedAt: created}
}

func citizens(prefix string, n int) []models.Citizen {
	out := make([]models.Citizen, n)
	for i := range out {
		out[i] = models.Citizen{
			ID:           fmt.Sprintf("%s-c%d", prefix, i),
			PersonRecord: person(fmt.Sprintf("Citizen %s %d", prefix, i), daysAgo(1)),
		}
	}
	return out
}

func mobilizer(id string, leaves int) models.Mobilizer {
	return models.Mobilizer{
		ID:           id,
		PersonRecord: person("Mobilizer "+id, daysAgo(10)),
		Citizens:     citizens(id, leaves),
	}
}

// scenarioRows is one leader with two brigade members, each with one mobilizer
// registering 3 and 7 citizens.
func scenarioRows() []models.Leader {
	return []models.Leader{
		{
			ID:           "L1",
			PersonRecord: person("Leader One", daysAgo(40)),
			BrigadeMembers: []models.BrigadeMember{
				{
					ID:           "B1",
					PersonRecord: person("Brigade One", daysAgo(20)),
					Mobilizers:   []models.Mobilizer{mobilizer("M1", 3)},
				},
				{
					ID:           "B2",
					PersonRecord: person("Brigade Two", daysAgo(20)),
					Mobilizers:   []models.Mobilizer{mobilizer("M2", 7)},
				},
			},
		},
	}
}

// wideRows has two leaders with uneven subtrees and populated locations
func wideRows() []models.Leader {
	rows := scenarioRows()
	rows[0].Region = "Jalisco"
	rows[0].SubRegion = "Zapopan"

	rows = append(rows, models.Leader{
		ID: "L2",
		PersonRecord: models.PersonRecord{
			Name:      "Leader Two",
			Region:    "Nuevo León",
			Locality:  "Monterrey",
			Verified:  true,
			CreatedAt: daysAgo(3),
		},
		BrigadeMembers: []models.BrigadeMember{
			{
				ID:           "B3",
				PersonRecord: person("Brigade Three", daysAgo(100)),
				Mobilizers: []models.Mobilizer{
					mobilizer("M3", 0),
					mobilizer("M4", 12),
				},
			},
			{
				ID:           "B4",
				PersonRecord: person("Brigade Four", daysAgo(5)),
			},
		},
	})
	return rows
}

func buildTree(rows []models.Leader) []*HierarchyNode {
	tree, err := Build(rows, NewCalculator(testNow))
	if err != nil {
		panic(err)
	}
	return tree
}
