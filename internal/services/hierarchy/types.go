package hierarchy

import (
	"context"
	"time"

	"brigadas-analytics/internal/models"
)

// Role identifies the tier of a worker in the organisation
type Role string

const (
	RoleLeader        Role = "level1"
	RoleBrigadeMember Role = "level2"
	RoleMobilizer     Role = "level3"
)

// Trend is an elapsed-time heuristic, not a comparison against past performance
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Band is a performance bracket over the composite score
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandAverage   Band = "average"
	BandPoor      Band = "poor"
)

// Gateway supplies raw nested rows: leaders embedding brigade members, embedding
// mobilizers, embedding citizens. Implementations own connection handling and retries.
type Gateway interface {
	FetchHierarchy(ctx context.Context, filter *Filter) ([]models.Leader, error)
}

// GatewayFunc adapts a plain function to the Gateway interface
type GatewayFunc func(ctx context.Context, filter *Filter) ([]models.Leader, error)

func (f GatewayFunc) FetchHierarchy(ctx context.Context, filter *Filter) ([]models.Leader, error) {
	return f(ctx, filter)
}

// Location is a partial address copied verbatim from the source record
type Location struct {
	Region     string `json:"region,omitempty"`
	SubRegion  string `json:"sub_region,omitempty"`
	Sector     string `json:"sector,omitempty"`
	Locality   string `json:"locality,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

func (l Location) fields() []string {
	return []string{l.Region, l.SubRegion, l.Sector, l.Locality, l.PostalCode}
}

// PerformanceMetrics are the derived figures carried by every node
type PerformanceMetrics struct {
	RegisteredCount  int       `json:"registered_count"`
	VerificationRate float64   `json:"verification_rate"`
	DataCompleteness float64   `json:"data_completeness"`
	Ranking          int       `json:"ranking"`
	Trend            Trend     `json:"trend"`
	LastActivity     time.Time `json:"last_activity"`
}

// HierarchyNode is one worker in the tree. Citizens are never nodes; they only
// contribute to RegisteredCount.
type HierarchyNode struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Role            Role               `json:"role"`
	Level           int                `json:"level"` // zero-based depth
	RegisteredCount int                `json:"registered_count"`
	Location        Location           `json:"location"`
	Children        []*HierarchyNode   `json:"children,omitempty"`
	Performance     PerformanceMetrics `json:"performance"`
	ParentID        string             `json:"parent_id,omitempty"`
	IsActive        bool               `json:"is_active"`
	LastActivity    time.Time          `json:"last_activity"`
}

// NodeSummary identifies a node without its subtree
type NodeSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Role            Role   `json:"role"`
	RegisteredCount int    `json:"registered_count"`
}

// HierarchyStats are whole-tree aggregates
type HierarchyStats struct {
	TotalLeaders                    int          `json:"totalLideres"`
	TotalBrigadeMembers             int          `json:"totalBrigadistas"`
	TotalMobilizers                 int          `json:"totalMovilizadores"`
	TotalCitizens                   int          `json:"totalCiudadanos"`
	AverageCitizensPerLeader        float64      `json:"averageCiudadanosPorLider"`
	AverageCitizensPerBrigadeMember float64      `json:"averageCiudadanosPorBrigadista"`
	AverageCitizensPerMobilizer     float64      `json:"averageCiudadanosPorMovilizador"`
	DeepestLevel                    int          `json:"deepestLevel"`
	MostProductive                  *NodeSummary `json:"mostProductive,omitempty"`
}

// RankedNode is a flattened node annotated with its score, band and ranking
type RankedNode struct {
	HierarchyNode
	Score float64 `json:"score"`
	Band  Band    `json:"band"`
}

// DashboardSummary is the landing view. Stats are best-effort: when they cannot
// be computed, StatsAvailable is false and the rest of the summary is still served.
type DashboardSummary struct {
	TotalNodes     int             `json:"total_nodes"`
	ActiveNodes    int             `json:"active_nodes"`
	BandCounts     map[Band]int    `json:"band_counts"`
	TopPerformers  []RankedNode    `json:"top_performers"`
	Stats          *HierarchyStats `json:"stats,omitempty"`
	StatsAvailable bool            `json:"stats_available"`
	StatsError     string          `json:"stats_error,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}
