package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"brigadas-analytics/internal/services/hierarchy"
)

// filterQuery is the query-string form of hierarchy.Filter
type filterQuery struct {
	Regions    []string `form:"region"`
	ActiveOnly bool     `form:"active_only"`
	Start      string   `form:"start"`
	End        string   `form:"end"`
	Roles      []string `form:"role"`
	MinScore   *float64 `form:"min_score"`
	MaxScore   *float64 `form:"max_score"`
	Query      string   `form:"q"`
}

// parseFilter reads filter options from the query string. It returns nil when none are set.
// Parse failures come back as *hierarchy.ValidationError so they map to 400.
func parseFilter(c *gin.Context) (*hierarchy.Filter, error) {
	var q filterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return nil, &hierarchy.ValidationError{Field: "query", Message: err.Error()}
	}

	f := &hierarchy.Filter{
		Regions:    q.Regions,
		ActiveOnly: q.ActiveOnly,
		SearchTerm: q.Query,
	}
	for _, r := range q.Roles {
		f.Roles = append(f.Roles, hierarchy.Role(r))
	}

	start, err := parseTime("start", q.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTime("end", q.End)
	if err != nil {
		return nil, err
	}
	if start != nil || end != nil {
		f.DateRange = &hierarchy.DateRange{Start: start, End: end}
	}

	if q.MinScore != nil || q.MaxScore != nil {
		pr := &hierarchy.PerformanceRange{Min: 0, Max: 100}
		if q.MinScore != nil {
			pr.Min = *q.MinScore
		}
		if q.MaxScore != nil {
			pr.Max = *q.MaxScore
		}
		f.PerformanceRange = pr
	}

	if len(f.Regions) == 0 && !f.ActiveOnly && f.SearchTerm == "" && len(f.Roles) == 0 &&
		f.DateRange == nil && f.PerformanceRange == nil {
		return nil, nil
	}
	return f, nil
}

func parseTime(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, &hierarchy.ValidationError{Field: field, Message: "must be an RFC3339 timestamp"}
	}
	return &t, nil
}

// intQuery parses a non-negative integer query parameter, returning def when absent
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
