package hierarchy

import (
	"strings"
	"time"

	"brigadas-analytics/internal/models"
)

// DefaultActivityWindow is how long after creation a worker counts as active
const DefaultActivityWindow = 90 * 24 * time.Hour

const (
	trendUpBelowDays   = 7
	trendDownAboveDays = 30
	completenessSize   = 10
)

// Calculator derives per-node metrics from a source record and a fixed clock reading.
// All methods are pure given Now and ActivityWindow.
type Calculator struct {
	Now            time.Time
	ActivityWindow time.Duration
}

// NewCalculator returns a calculator pinned to now with the default activity window
func NewCalculator(now time.Time) Calculator {
	return Calculator{Now: now, ActivityWindow: DefaultActivityWindow}
}

// VerificationRate is 100 for a verified record and 0 otherwise
func (c Calculator) VerificationRate(rec models.PersonRecord) float64 {
	if rec.Verified {
		return 100
	}
	return 0
}

// DataCompleteness is the share of the ten profile fields that are non-blank, 0-100
func (c Calculator) DataCompleteness(rec models.PersonRecord) float64 {
	fields := [completenessSize]string{
		rec.Name,
		rec.ElectoralKey,
		rec.NationalID,
		rec.Address,
		rec.Locality,
		rec.PostalCode,
		rec.Sector,
		rec.Region,
		rec.SubRegion,
		rec.Phone,
	}

	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return 100 * float64(filled) / completenessSize
}

// Trend classifies a record by whole days elapsed since creation: under 7 is up,
// over 30 is down. A record 30.5 days old has 30 whole days and is stable.
func (c Calculator) Trend(rec models.PersonRecord) Trend {
	days := int(c.Now.Sub(rec.CreatedAt) / (24 * time.Hour))
	switch {
	case days < trendUpBelowDays:
		return TrendUp
	case days > trendDownAboveDays:
		return TrendDown
	default:
		return TrendStable
	}
}

// IsActive reports whether createdAt falls within the activity window
func (c Calculator) IsActive(createdAt time.Time) bool {
	window := c.ActivityWindow
	if window <= 0 {
		window = DefaultActivityWindow
	}
	return c.Now.Sub(createdAt) <= window
}
