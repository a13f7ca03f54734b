package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"brigadas-analytics/internal/cache"
)

const (
	viewTree  = "tree"
	viewStats = "stats"

	defaultTopPerformers = 10

	// DefaultFetchTimeout bounds a shared gateway fetch once it runs detached from its callers
	DefaultFetchTimeout = time.Minute
)

// Service exposes the derived hierarchy views. Built trees and stats are memoized
// in the cache; concurrent misses for the same key share a single gateway fetch.
// Trees held in the cache are never handed out directly.
type Service struct {
	gateway        Gateway
	cache          *cache.Cache[any]
	flight         singleflight.Group
	now            func() time.Time
	activityWindow time.Duration
	fetchTimeout   time.Duration
	logger         *zap.Logger

	// generation advances on ClearCache and Refresh. Results computed under an older
	// generation are returned to their callers but never written to the cache.
	genMu      sync.Mutex
	generation uint64
}

// Option customizes a Service
type Option func(*Service)

// WithClock overrides the time source used for activity and trend
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithActivityWindow overrides the 90-day activity window
func WithActivityWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.activityWindow = d
		}
	}
}

// WithFetchTimeout bounds each gateway fetch
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a hierarchy service reading from gateway and memoizing into store
func NewService(gateway Gateway, store *cache.Cache[any], opts ...Option) *Service {
	s := &Service{
		gateway:        gateway,
		cache:          store,
		now:            time.Now,
		activityWindow: DefaultActivityWindow,
		fetchTimeout:   DefaultFetchTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetHierarchicalData returns the worker forest. The result is a private copy.
func (s *Service) GetHierarchicalData(ctx context.Context, filter *Filter) ([]*HierarchyNode, error) {
	const op = "GetHierarchicalData"
	if err := filter.Validate(); err != nil {
		return nil, wrap(op, err)
	}

	tree, err := s.tree(ctx, filter)
	if err != nil {
		return nil, wrap(op, err)
	}
	return cloneTree(tree), nil
}

// GetFlattenedHierarchy returns the pre-order, depth-annotated node list
func (s *Service) GetFlattenedHierarchy(ctx context.Context, filter *Filter) ([]HierarchyNode, error) {
	const op = "GetFlattenedHierarchy"
	flat, err := s.flatView(ctx, filter)
	if err != nil {
		return nil, wrap(op, err)
	}
	return flat, nil
}

// GetHierarchyStats returns whole-tree statistics. Only gateway-side filter options
// (regions, date range) affect the result.
func (s *Service) GetHierarchyStats(ctx context.Context, filter *Filter) (*HierarchyStats, error) {
	const op = "GetHierarchyStats"
	if err := filter.Validate(); err != nil {
		return nil, wrap(op, err)
	}

	key := cacheKey(viewStats, filter.gatewayFilter())
	if v, ok := s.cache.Get(key); ok {
		if stats, ok := v.(HierarchyStats); ok {
			cacheRequests.WithLabelValues(viewStats, "hit").Inc()
			return &stats, nil
		}
	}
	cacheRequests.WithLabelValues(viewStats, "miss").Inc()

	gen := s.currentGeneration()
	tree, err := s.tree(ctx, filter)
	if err != nil {
		return nil, wrap(op, err)
	}

	stats := Stats(tree)
	s.storeIfCurrent(gen, key, stats)
	return &stats, nil
}

// SearchWorkers returns flattened nodes whose name or location contains term
func (s *Service) SearchWorkers(ctx context.Context, term string, filter *Filter) ([]HierarchyNode, error) {
	const op = "SearchWorkers"
	flat, err := s.flatView(ctx, filter)
	if err != nil {
		return nil, wrap(op, err)
	}
	return searchFlat(term, flat), nil
}

// GetWorkersByPerformance returns flattened nodes whose composite score falls in band
func (s *Service) GetWorkersByPerformance(ctx context.Context, band Band, filter *Filter) ([]HierarchyNode, error) {
	const op = "GetWorkersByPerformance"
	band, err := ParseBand(string(band))
	if err != nil {
		return nil, wrap(op, err)
	}

	flat, err := s.flatView(ctx, filter)
	if err != nil {
		return nil, wrap(op, err)
	}

	return bandFlat(band, flat), nil
}

// GetRankings returns the flattened nodes ordered by composite score with dense rankings
func (s *Service) GetRankings(ctx context.Context, filter *Filter) ([]RankedNode, error) {
	const op = "GetRankings"
	flat, err := s.flatView(ctx, filter)
	if err != nil {
		return nil, wrap(op, err)
	}
	return AssignRankings(flat), nil
}

// GetDashboardSummary combines node counts, band distribution, the top performers
// and statistics. A statistics failure is reported in the summary instead of failing it.
func (s *Service) GetDashboardSummary(ctx context.Context, filter *Filter, top int) (*DashboardSummary, error) {
	const op = "GetDashboardSummary"
	if top <= 0 {
		top = defaultTopPerformers
	}

	ranked, err := s.GetRankings(ctx, filter)
	if err != nil {
		return nil, wrap(op, err)
	}

	summary := &DashboardSummary{
		TotalNodes:  len(ranked),
		BandCounts:  map[Band]int{BandExcellent: 0, BandGood: 0, BandAverage: 0, BandPoor: 0},
		GeneratedAt: s.now(),
	}
	for i := range ranked {
		summary.BandCounts[ranked[i].Band]++
		if ranked[i].IsActive {
			summary.ActiveNodes++
		}
	}
	if len(ranked) > top {
		ranked = ranked[:top]
	}
	summary.TopPerformers = ranked

	stats, err := s.GetHierarchyStats(ctx, filter)
	if err != nil {
		s.logger.Warn("Hierarchy stats unavailable for dashboard", zap.Error(err))
		summary.StatsError = err.Error()
		return summary, nil
	}
	summary.Stats = stats
	summary.StatsAvailable = true
	return summary, nil
}

// Refresh drops the cached tree and stats for filter and rebuilds the tree
func (s *Service) Refresh(ctx context.Context, filter *Filter) error {
	const op = "Refresh"
	if err := filter.Validate(); err != nil {
		return wrap(op, err)
	}

	gf := filter.gatewayFilter()
	s.genMu.Lock()
	s.generation++
	s.cache.Delete(cacheKey(viewTree, gf))
	s.cache.Delete(cacheKey(viewStats, gf))
	s.genMu.Unlock()

	if _, err := s.tree(ctx, filter); err != nil {
		return wrap(op, err)
	}
	return nil
}

// ClearCache drops every memoized view
func (s *Service) ClearCache() {
	s.genMu.Lock()
	s.generation++
	s.cache.Clear()
	s.genMu.Unlock()
	s.logger.Info("Hierarchy cache cleared")
}

// FilterKey returns the canonical cache key for a filter, for callers that persist results per filter
func FilterKey(filter *Filter) string {
	return cacheKey("filter", filter.normalized())
}

func (s *Service) flatView(ctx context.Context, filter *Filter) ([]HierarchyNode, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	tree, err := s.tree(ctx, filter)
	if err != nil {
		return nil, err
	}
	return applyViewFilter(Flatten(tree), filter), nil
}

// tree returns the shared, cached tree for the filter's gateway options. Callers must not modify it.
func (s *Service) tree(ctx context.Context, filter *Filter) ([]*HierarchyNode, error) {
	gf := filter.gatewayFilter()
	key := cacheKey(viewTree, gf)

	if v, ok := s.cache.Get(key); ok {
		if tree, ok := v.([]*HierarchyNode); ok {
			cacheRequests.WithLabelValues(viewTree, "hit").Inc()
			s.logger.Debug("Hierarchy cache hit", zap.String("key", key))
			return tree, nil
		}
	}
	cacheRequests.WithLabelValues(viewTree, "miss").Inc()

	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Err: err}
	}

	// The fetch is shared, so one caller giving up must not cancel it for the others
	gen := s.currentGeneration()
	flightKey := fmt.Sprintf("%d|%s", gen, key)
	ch := s.flight.DoChan(flightKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetchAndBuild(fetchCtx, key, &gf, gen)
	})

	select {
	case <-ctx.Done():
		return nil, &GatewayError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("Joined in-flight hierarchy fetch", zap.String("key", key))
		}
		return res.Val.([]*HierarchyNode), nil
	}
}

func (s *Service) currentGeneration() uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generation
}

// storeIfCurrent caches v unless ClearCache or Refresh ran since gen was read
func (s *Service) storeIfCurrent(gen uint64, key string, v any) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generation != gen {
		return false
	}
	s.cache.Set(key, v)
	return true
}

func (s *Service) fetchAndBuild(ctx context.Context, key string, gf *Filter, gen uint64) ([]*HierarchyNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Err: err}
	}

	start := time.Now()
	rows, err := s.gateway.FetchHierarchy(ctx, gf)
	gatewayFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		gatewayErrors.Inc()
		s.logger.Warn("Gateway fetch failed", zap.String("key", key), zap.Error(err))
		return nil, &GatewayError{Err: err}
	}

	calc := Calculator{Now: s.now(), ActivityWindow: s.activityWindow}
	tree, err := Build(rows, calc)
	if err != nil {
		buildErrors.Inc()
		s.logger.Error("Rejected malformed hierarchy rows", zap.String("key", key), zap.Error(err))
		var be *BuildError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, fmt.Errorf("build hierarchy: %w", err)
	}

	if !s.storeIfCurrent(gen, key, tree) {
		s.logger.Debug("Discarded hierarchy built before a cache reset", zap.String("key", key))
	}
	s.logger.Debug("Hierarchy built",
		zap.String("key", key),
		zap.Int("roots", len(tree)),
		zap.Duration("elapsed", time.Since(start)))
	return tree, nil
}

func cloneTree(tree []*HierarchyNode) []*HierarchyNode {
	out := make([]*HierarchyNode, len(tree))
	for i, n := range tree {
		c := *n
		c.Children = cloneTree(n.Children)
		out[i] = &c
	}
	return out
}
