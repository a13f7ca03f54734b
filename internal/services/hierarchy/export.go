package hierarchy

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExportRankings renders the ranked worker list as "json" or "csv".
// A positive limit keeps only the top entries.
func (s *Service) ExportRankings(ctx context.Context, filter *Filter, format string, limit int) (string, error) {
	const op = "ExportRankings"

	format = strings.ToLower(strings.TrimSpace(format))
	if format != "json" && format != "csv" {
		return "", wrap(op, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format))
	}

	ranked, err := s.GetRankings(ctx, filter)
	if err != nil {
		return "", wrap(op, err)
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	var out string
	if format == "json" {
		out, err = rankingsJSON(ranked)
	} else {
		out, err = rankingsCSV(ranked)
	}
	if err != nil {
		return "", wrap(op, err)
	}
	return out, nil
}

func rankingsJSON(ranked []RankedNode) (string, error) {
	data, err := json.MarshalIndent(ranked, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func rankingsCSV(ranked []RankedNode) (string, error) {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)

	header := []string{"id", "name", "role", "level", "parent_id", "region", "registered_count",
		"verification_rate", "data_completeness", "is_active", "trend", "score", "band", "ranking"}
	if err := writer.Write(header); err != nil {
		return "", err
	}

	for i := range ranked {
		n := &ranked[i]
		record := []string{
			n.ID,
			n.Name,
			string(n.Role),
			strconv.Itoa(n.Level),
			n.ParentID,
			n.Location.Region,
			strconv.Itoa(n.RegisteredCount),
			fmt.Sprintf("%.1f", n.Performance.VerificationRate),
			fmt.Sprintf("%.1f", n.Performance.DataCompleteness),
			strconv.FormatBool(n.IsActive),
			string(n.Performance.Trend),
			fmt.Sprintf("%.2f", n.Score),
			string(n.Band),
			strconv.Itoa(n.Performance.Ranking),
		}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	return buf.String(), writer.Error()
}
