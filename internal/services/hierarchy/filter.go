package hierarchy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Filter narrows the hierarchy. Regions and DateRange are pushed down to the gateway
// (regions are OR-matched against the leader's region, all of them honored);
// Roles, ActiveOnly, PerformanceRange and SearchTerm are applied to flattened views.
type Filter struct {
	Regions          []string          `json:"regions,omitempty" validate:"omitempty,dive,required"`
	ActiveOnly       bool              `json:"activeOnly,omitempty"`
	DateRange        *DateRange        `json:"dateRange,omitempty"`
	Roles            []Role            `json:"roles,omitempty" validate:"omitempty,dive,oneof=level1 level2 level3"`
	PerformanceRange *PerformanceRange `json:"performanceRange,omitempty"`
	SearchTerm       string            `json:"searchTerm,omitempty" validate:"max=200"`
}

// DateRange bounds the leader creation date, both ends inclusive and optional
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// PerformanceRange bounds the composite score, both ends inclusive
type PerformanceRange struct {
	Min float64 `json:"min" validate:"gte=0,lte=100"`
	Max float64 `json:"max" validate:"gte=0,lte=100,gtefield=Min"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the filter and returns a *ValidationError describing the first problem
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Namespace(), Message: describe(fe)}
		}
		return &ValidationError{Field: "filter", Message: err.Error()}
	}

	if dr := f.DateRange; dr != nil && dr.Start != nil && dr.End != nil && dr.End.Before(*dr.Start) {
		return &ValidationError{Field: "Filter.DateRange", Message: "end must not be before start"}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "required":
		return "must not be empty"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// normalized returns a canonical copy: slices sorted and deduplicated, text trimmed,
// times in UTC. Two filters meaning the same thing normalize to equal values.
func (f *Filter) normalized() Filter {
	if f == nil {
		return Filter{}
	}

	out := Filter{
		ActiveOnly: f.ActiveOnly,
		SearchTerm: strings.TrimSpace(f.SearchTerm),
	}

	out.Regions = uniqueSorted(f.Regions, strings.TrimSpace)

	roles := make([]string, len(f.Roles))
	for i, r := range f.Roles {
		roles[i] = string(r)
	}
	for _, r := range uniqueSorted(roles, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }) {
		out.Roles = append(out.Roles, Role(r))
	}

	if f.DateRange != nil && (f.DateRange.Start != nil || f.DateRange.End != nil) {
		dr := &DateRange{}
		if f.DateRange.Start != nil {
			s := f.DateRange.Start.UTC()
			dr.Start = &s
		}
		if f.DateRange.End != nil {
			e := f.DateRange.End.UTC()
			dr.End = &e
		}
		out.DateRange = dr
	}

	if f.PerformanceRange != nil {
		pr := *f.PerformanceRange
		out.PerformanceRange = &pr
	}
	return out
}

// gatewayFilter keeps only what the gateway applies, so views that differ only in
// core-side options share one fetched tree.
func (f *Filter) gatewayFilter() Filter {
	n := f.normalized()
	return Filter{Regions: n.Regions, DateRange: n.DateRange}
}

// cacheKey serializes op plus the canonical filter. Struct fields marshal in
// declaration order, so the key does not depend on how the filter was built.
func cacheKey(op string, f Filter) string {
	data, err := json.Marshal(f)
	if err != nil {
		// Filter only holds strings, bools, floats and times
		return op + ":" + fmt.Sprintf("%+v", f)
	}
	return op + ":" + string(data)
}

func uniqueSorted(in []string, clean func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = clean(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
