package hierarchy

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigadas-analytics/internal/cache"
	"brigadas-analytics/internal/models"
)

type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	filters []Filter
	rows    func() []models.Leader
	err     error
}

func (g *fakeGateway) FetchHierarchy(_ context.Context, filter *Filter) ([]models.Leader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if filter != nil {
		g.filters = append(g.filters, *filter)
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.rows(), nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestService(gw Gateway) *Service {
	store := cache.New[any](5*time.Minute, 100, cache.WithClock(func() time.Time { return testNow }))
	return NewService(gw, store, WithClock(func() time.Time { return testNow }))
}

func TestServiceCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("Should serve repeated reads from the cache", func(t *testing.T) {
		gw := &fakeGateway{rows: wideRows}
		svc := newTestService(gw)

		first, err := svc.GetHierarchicalData(ctx, nil)
		require.NoError(t, err)
		second, err := svc.GetHierarchicalData(ctx, &Filter{})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, gw.Calls())
	})

	t.Run("Should share one fetch across views that differ only in view options", func(t *testing.T) {
		gw := &fakeGateway{rows: wideRows}
		svc := newTestService(gw)
		regions := []string{"Jalisco"}

		_, err := svc.GetHierarchicalData(ctx, &Filter{Regions: regions})
		require.NoError(t, err)
		_, err = svc.GetFlattenedHierarchy(ctx, &Filter{Regions: regions, ActiveOnly: true})
		require.NoError(t, err)
		_, err = svc.SearchWorkers(ctx, "leader", &Filter{Regions: regions, Roles: []Role{RoleLeader}})
		require.NoError(t, err)
		_, err = svc.GetWorkersByPerformance(ctx, BandGood, &Filter{Regions: regions})
		require.NoError(t, err)
		_, err = svc.GetHierarchyStats(ctx, &Filter{Regions: regions, SearchTerm: "x"})
		require.NoError(t, err)

		assert.Equal(t, 1, gw.Calls())
	})

	t.Run("Should fetch separately per region set and push only gateway options down", func(t *testing.T) {
		gw := &fakeGateway{rows: wideRows}
		svc := newTestService(gw)

		_, err := svc.GetFlattenedHierarchy(ctx, &Filter{Regions: []string{"Sonora", "Jalisco"}, ActiveOnly: true})
		require.NoError(t, err)
		_, err = svc.GetFlattenedHierarchy(ctx, &Filter{Regions: []string{"Jalisco"}})
		require.NoError(t, err)

		require.Equal(t, 2, gw.Calls())
		assert.Equal(t, []string{"Jalisco", "Sonora"}, gw.filters[0].Regions)
		assert.False(t, gw.filters[0].ActiveOnly)
		assert.Equal(t, []string{"Jalisco"}, gw.filters[1].Regions)
	})

	t.Run("Should refetch after the TTL", func(t *testing.T) {
		gw := &fakeGateway{rows: scenarioRows}
		now := testNow
		store := cache.New[any](time.Minute, 10, cache.WithClock(func() time.Time { return now }))
		svc := NewService(gw, store, WithClock(func() time.Time { return testNow }))

		_, err := svc.GetHierarchicalData(ctx, nil)
		require.NoError(t, err)
		now = now.Add(time.Minute + time.Millisecond)
		_, err = svc.GetHierarchicalData(ctx, nil)
		require.NoError(t, err)

		assert.Equal(t, 2, gw.Calls())
	})

	t.Run("Should refetch after ClearCache", func(t *testing.T) {
		gw := &fakeGateway{rows: scenarioRows}
		svc := newTestService(gw)

		_, err := svc.GetHierarchyStats(ctx, nil)
		require.NoError(t, err)
		svc.ClearCache()
		_, err = svc.GetHierarchyStats(ctx, nil)
		require.NoError(t, err)

		assert.Equal(t, 2, gw.Calls())
	})

	t.Run("Should rebuild on Refresh", func(t *testing.T) {
		gw := &fakeGateway{rows: scenarioRows}
		svc := newTestService(gw)

		stats, err := svc.GetHierarchyStats(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 10, stats.TotalCitizens)

		gw.rows = wideRows
		require.NoError(t, svc.Refresh(ctx, nil))
		assert.Equal(t, 2, gw.Calls())

		stats, err = svc.GetHierarchyStats(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 22, stats.TotalCitizens)
		assert.Equal(t, 2, gw.Calls())
	})

	t.Run("Should collapse concurrent misses into one fetch", func(t *testing.T) {
		release := make(chan struct{})
		var calls int32
		gw := GatewayFunc(func(ctx context.Context, _ *Filter) ([]models.Leader, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return scenarioRows(), nil
		})
		svc := newTestService(gw)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.GetFlattenedHierarchy(ctx, nil)
				errs <- err
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

// blockingGateway holds its first fetch until release is closed. Later fetches return immediately.
type blockingGateway struct {
	calls     int32
	started   chan struct{}
	release   chan struct{}
	first     func() []models.Leader
	later     func() []models.Leader
	fetchErrs chan error
}

func newBlockingGateway(first, later func() []models.Leader) *blockingGateway {
	return &blockingGateway{
		started:   make(chan struct{}),
		release:   make(chan struct{}),
		first:     first,
		later:     later,
		fetchErrs: make(chan error, 1),
	}
}

func (g *blockingGateway) FetchHierarchy(ctx context.Context, _ *Filter) ([]models.Leader, error) {
	if atomic.AddInt32(&g.calls, 1) > 1 {
		return g.later(), nil
	}
	close(g.started)
	<-g.release
	g.fetchErrs <- ctx.Err()
	return g.first(), nil
}

func (g *blockingGateway) Calls() int {
	return int(atomic.LoadInt32(&g.calls))
}

func waitStarted(t *testing.T, g *blockingGateway) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway fetch never started")
	}
}

func TestServiceSharedFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should keep serving joined callers when the first caller cancels", func(t *testing.T) {
		gw := newBlockingGateway(scenarioRows, scenarioRows)
		svc := newTestService(gw)

		firstCtx, cancelFirst := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := svc.GetHierarchicalData(firstCtx, nil)
			firstErr <- err
		}()
		waitStarted(t, gw)

		secondDone := make(chan error, 1)
		var secondTree []*HierarchyNode
		go func() {
			tree, err := svc.GetHierarchicalData(ctx, nil)
			secondTree = tree
			secondDone <- err
		}()
		time.Sleep(20 * time.Millisecond)

		cancelFirst()
		err := <-firstErr
		var ge *GatewayError
		require.True(t, errors.As(err, &ge))
		assert.True(t, errors.Is(err, context.Canceled))

		close(gw.release)
		require.NoError(t, <-secondDone)
		require.Len(t, secondTree, 1)
		assert.Equal(t, 10, secondTree[0].RegisteredCount)

		assert.NoError(t, <-gw.fetchErrs, "the shared fetch outlives a cancelled caller")
		assert.Equal(t, 1, gw.Calls())
	})

	t.Run("Should bound a hanging gateway with the fetch timeout", func(t *testing.T) {
		gw := GatewayFunc(func(ctx context.Context, _ *Filter) ([]models.Leader, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		store := cache.New[any](5*time.Minute, 100)
		svc := NewService(gw, store, WithFetchTimeout(20*time.Millisecond))

		_, err := svc.GetHierarchicalData(ctx, nil)
		var ge *GatewayError
		require.True(t, errors.As(err, &ge))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Zero(t, store.Len())
	})

	t.Run("Should not cache a fetch that was in flight during ClearCache", func(t *testing.T) {
		gw := newBlockingGateway(scenarioRows, scenarioRows)
		svc := newTestService(gw)

		done := make(chan error, 1)
		go func() {
			_, err := svc.GetHierarchicalData(ctx, nil)
			done <- err
		}()
		waitStarted(t, gw)

		svc.ClearCache()
		close(gw.release)
		require.NoError(t, <-done, "the caller still receives its tree")
		assert.Zero(t, svc.cache.Len())

		_, err := svc.GetHierarchicalData(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, gw.Calls())
		assert.Equal(t, 1, svc.cache.Len())
	})

	t.Run("Should not let an older fetch overwrite a Refresh", func(t *testing.T) {
		gw := newBlockingGateway(scenarioRows, wideRows)
		svc := newTestService(gw)

		stale := make(chan *HierarchyStats, 1)
		go func() {
			stats, err := svc.GetHierarchyStats(ctx, nil)
			assert.NoError(t, err)
			stale <- stats
		}()
		waitStarted(t, gw)

		require.NoError(t, svc.Refresh(ctx, nil))
		close(gw.release)
		assert.Equal(t, 10, (<-stale).TotalCitizens)

		stats, err := svc.GetHierarchyStats(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 22, stats.TotalCitizens)
		assert.Equal(t, 2, gw.Calls())
	})
}

func TestServiceIsolation(t *testing.T) {
	ctx := context.Background()

	t.Run("Should not let callers mutate the cached tree", func(t *testing.T) {
		svc := newTestService(&fakeGateway{rows: scenarioRows})

		tree, err := svc.GetHierarchicalData(ctx, nil)
		require.NoError(t, err)
		tree[0].Name = "changed"
		tree[0].Children = nil

		again, err := svc.GetHierarchicalData(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "Leader One", again[0].Name)
		assert.Len(t, again[0].Children, 2)
	})

	t.Run("Should not write rankings into the cached tree", func(t *testing.T) {
		svc := newTestService(&fakeGateway{rows: scenarioRows})

		ranked, err := svc.GetRankings(ctx, nil)
		require.NoError(t, err)
		require.NotEmpty(t, ranked)
		assert.Equal(t, 1, ranked[0].Performance.Ranking)

		flat, err := svc.GetFlattenedHierarchy(ctx, nil)
		require.NoError(t, err)
		for i := range flat {
			assert.Zero(t, flat[i].Performance.Ranking)
		}
	})
}

func TestServiceErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Should wrap gateway failures and not cache them", func(t *testing.T) {
		cause := errors.New("connection refused")
		gw := &fakeGateway{rows: scenarioRows, err: cause}
		svc := newTestService(gw)

		_, err := svc.GetHierarchicalData(ctx, nil)
		require.Error(t, err)

		var se *ServiceError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "GetHierarchicalData", se.Op)

		var ge *GatewayError
		require.True(t, errors.As(err, &ge))
		assert.True(t, errors.Is(err, cause))

		gw.err = nil
		_, err = svc.GetHierarchicalData(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, gw.Calls())
	})

	t.Run("Should surface malformed rows as a build error", func(t *testing.T) {
		gw := &fakeGateway{rows: func() []models.Leader {
			rows := scenarioRows()
			rows[0].BrigadeMembers[0].Mobilizers[0].Name = ""
			return rows
		}}
		svc := newTestService(gw)

		_, err := svc.GetHierarchyStats(ctx, nil)
		var se *ServiceError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "GetHierarchyStats", se.Op)

		var be *BuildError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, RoleMobilizer, be.Role)
		assert.Equal(t, "leaders[0].brigadistas[0].movilizadores[0]", be.Path)
	})

	t.Run("Should reject invalid filters before fetching", func(t *testing.T) {
		gw := &fakeGateway{rows: scenarioRows}
		svc := newTestService(gw)

		_, err := svc.GetFlattenedHierarchy(ctx, &Filter{Roles: []Role{"boss"}})
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.True(t, errors.Is(err, ErrInvalidFilter))
		assert.Zero(t, gw.Calls())
	})

	t.Run("Should reject unknown bands", func(t *testing.T) {
		svc := newTestService(&fakeGateway{rows: scenarioRows})
		_, err := svc.GetWorkersByPerformance(ctx, "stellar", nil)
		assert.True(t, errors.Is(err, ErrInvalidBand))
	})

	t.Run("Should report a cancelled context as a gateway error", func(t *testing.T) {
		gw := &fakeGateway{rows: scenarioRows}
		svc := newTestService(gw)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.GetHierarchicalData(cancelled, nil)

		var ge *GatewayError
		require.True(t, errors.As(err, &ge))
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Zero(t, gw.Calls())
	})
}

func TestServiceViews(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeGateway{rows: wideRows})

	t.Run("Should apply view options to the flattened list", func(t *testing.T) {
		flat, err := svc.GetFlattenedHierarchy(ctx, &Filter{Roles: []Role{RoleBrigadeMember}, ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"B1", "B2", "B4"}, ids(flat))
	})

	t.Run("Should search within the filtered view", func(t *testing.T) {
		found, err := svc.SearchWorkers(ctx, "brigade", &Filter{ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"B1", "B2", "B4"}, ids(found))
	})

	t.Run("Should return workers by band", func(t *testing.T) {
		good, err := svc.GetWorkersByPerformance(ctx, BandGood, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"L2"}, ids(good))
	})

	t.Run("Should never prune the tree view", func(t *testing.T) {
		tree, err := svc.GetHierarchicalData(ctx, &Filter{Roles: []Role{RoleMobilizer}, ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, tree, 2)
		assert.Len(t, tree[1].Children, 2)
	})

	t.Run("Should rank the filtered view densely", func(t *testing.T) {
		ranked, err := svc.GetRankings(ctx, &Filter{Roles: []Role{RoleMobilizer}})
		require.NoError(t, err)
		require.Len(t, ranked, 4)
		assert.Equal(t, "M4", ranked[0].ID)
		for i := range ranked {
			assert.Equal(t, i+1, ranked[i].Performance.Ranking)
		}
	})
}

func TestDashboardSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("Should combine counts, bands, top performers and stats", func(t *testing.T) {
		svc := newTestService(&fakeGateway{rows: wideRows})

		summary, err := svc.GetDashboardSummary(ctx, nil, 3)
		require.NoError(t, err)
		assert.Equal(t, 10, summary.TotalNodes)
		assert.Equal(t, 9, summary.ActiveNodes)
		assert.Equal(t, 1, summary.BandCounts[BandGood])
		assert.Equal(t, 2, summary.BandCounts[BandAverage])
		assert.Equal(t, 7, summary.BandCounts[BandPoor])
		assert.Equal(t, 0, summary.BandCounts[BandExcellent])
		require.Len(t, summary.TopPerformers, 3)
		assert.Equal(t, "L2", summary.TopPerformers[0].ID)
		assert.True(t, summary.StatsAvailable)
		require.NotNil(t, summary.Stats)
		assert.Equal(t, 22, summary.Stats.TotalCitizens)
		assert.Equal(t, testNow, summary.GeneratedAt)
	})

	t.Run("Should still serve the summary when stats fail", func(t *testing.T) {
		gw := &fakeGateway{rows: scenarioRows}
		// Every read sees a stale entry, so stats force a second fetch.
		clock := testNow
		store := cache.New[any](0, 10, cache.WithClock(func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		}))
		var once sync.Once
		failing := GatewayFunc(func(ctx context.Context, f *Filter) ([]models.Leader, error) {
			rows, err := gw.FetchHierarchy(ctx, f)
			once.Do(func() { gw.err = errors.New("upstream timeout") })
			return rows, err
		})
		svc := NewService(failing, store, WithClock(func() time.Time { return testNow }))

		summary, err := svc.GetDashboardSummary(ctx, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, summary.TotalNodes)
		assert.False(t, summary.StatsAvailable)
		assert.Nil(t, summary.Stats)
		assert.Contains(t, summary.StatsError, "upstream timeout")
	})
}

func TestExportRankings(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeGateway{rows: scenarioRows})

	t.Run("Should export CSV with a header row", func(t *testing.T) {
		out, err := svc.ExportRankings(ctx, nil, "CSV", 0)
		require.NoError(t, err)

		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 6)
		assert.Equal(t, "id", records[0][0])
		assert.Equal(t, "ranking", records[0][len(records[0])-1])
		assert.Equal(t, "L1", records[1][0])
		assert.Equal(t, "52.50", records[1][11])
		assert.Equal(t, "1", records[1][13])
	})

	t.Run("Should export JSON limited to the top entries", func(t *testing.T) {
		out, err := svc.ExportRankings(ctx, nil, "json", 2)
		require.NoError(t, err)

		var ranked []RankedNode
		require.NoError(t, json.Unmarshal([]byte(out), &ranked))
		require.Len(t, ranked, 2)
		assert.Equal(t, "L1", ranked[0].ID)
		assert.Equal(t, BandAverage, ranked[0].Band)
	})

	t.Run("Should reject unsupported formats", func(t *testing.T) {
		_, err := svc.ExportRankings(ctx, nil, "xml", 0)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	})
}
