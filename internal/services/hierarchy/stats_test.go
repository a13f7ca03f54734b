package hierarchy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigadas-analytics/internal/models"
)

func TestStats(t *testing.T) {
	t.Run("Should aggregate the three tiers", func(t *testing.T) {
		stats := Stats(buildTree(scenarioRows()))

		assert.Equal(t, 1, stats.TotalLeaders)
		assert.Equal(t, 2, stats.TotalBrigadeMembers)
		assert.Equal(t, 2, stats.TotalMobilizers)
		assert.Equal(t, 10, stats.TotalCitizens)
		assert.Equal(t, 10.0, stats.AverageCitizensPerLeader)
		assert.Equal(t, 5.0, stats.AverageCitizensPerBrigadeMember)
		assert.Equal(t, 5.0, stats.AverageCitizensPerMobilizer)
		assert.Equal(t, 3, stats.DeepestLevel)

		require.NotNil(t, stats.MostProductive)
		assert.Equal(t, "L1", stats.MostProductive.ID)
		assert.Equal(t, RoleLeader, stats.MostProductive.Role)
		assert.Equal(t, 10, stats.MostProductive.RegisteredCount)
	})

	t.Run("Should report zero averages for an empty forest", func(t *testing.T) {
		stats := Stats(nil)

		assert.Zero(t, stats.TotalLeaders)
		assert.Zero(t, stats.TotalCitizens)
		assert.Equal(t, 1, stats.DeepestLevel)
		assert.Nil(t, stats.MostProductive)
		for _, avg := range []float64{
			stats.AverageCitizensPerLeader,
			stats.AverageCitizensPerBrigadeMember,
			stats.AverageCitizensPerMobilizer,
		} {
			assert.False(t, math.IsNaN(avg))
			assert.Zero(t, avg)
		}
	})

	t.Run("Should stop at the deepest populated tier", func(t *testing.T) {
		rows := []models.Leader{
			{
				ID:           "L1",
				PersonRecord: person("Solo", daysAgo(1)),
				BrigadeMembers: []models.BrigadeMember{
					{ID: "B1", PersonRecord: person("Only member", daysAgo(1))},
				},
			},
		}
		stats := Stats(buildTree(rows))
		assert.Equal(t, 2, stats.DeepestLevel)
		assert.Zero(t, stats.TotalMobilizers)
		assert.Zero(t, stats.AverageCitizensPerMobilizer)
	})

	t.Run("Should keep the first node seen on a tie", func(t *testing.T) {
		rows := []models.Leader{
			{ID: "A", PersonRecord: person("First", daysAgo(1)),
				BrigadeMembers: []models.BrigadeMember{{ID: "A1", PersonRecord: person("A member", daysAgo(1)),
					Mobilizers: []models.Mobilizer{mobilizer("A1m", 4)}}}},
			{ID: "B", PersonRecord: person("Second", daysAgo(1)),
				BrigadeMembers: []models.BrigadeMember{{ID: "B1", PersonRecord: person("B member", daysAgo(1)),
					Mobilizers: []models.Mobilizer{mobilizer("B1m", 4)}}}},
		}
		stats := Stats(buildTree(rows))
		require.NotNil(t, stats.MostProductive)
		assert.Equal(t, "A", stats.MostProductive.ID)
	})

	t.Run("Should count leaders in a wide forest", func(t *testing.T) {
		stats := Stats(buildTree(wideRows()))
		assert.Equal(t, 2, stats.TotalLeaders)
		assert.Equal(t, 4, stats.TotalBrigadeMembers)
		assert.Equal(t, 4, stats.TotalMobilizers)
		assert.Equal(t, 22, stats.TotalCitizens)
		assert.Equal(t, 11.0, stats.AverageCitizensPerLeader)
		assert.Equal(t, "L2", stats.MostProductive.ID)
	})
}
