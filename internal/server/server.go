package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"brigadas-analytics/internal/models"
	"brigadas-analytics/internal/services/hierarchy"
	"brigadas-analytics/internal/services/profiles"
	"brigadas-analytics/internal/services/scheduler"
)

// JobManager is the scheduled job surface exposed over HTTP
type JobManager interface {
	ListJobs() ([]scheduler.JobListResponse, error)
	UpsertJob(req scheduler.UpsertJobRequest) (string, error)
	DeleteJob(jobID string) error
	RunJob(ctx context.Context, jobID string) error
}

// SnapshotLister reads stored stats snapshots
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]models.StatsSnapshot, error)
}

// ProfileManager manages REST gateway connection profiles
type ProfileManager interface {
	ListProfiles(ctx context.Context) ([]models.ConnectionProfile, error)
	CreateProfile(ctx context.Context, req profiles.CreateProfileRequest) (*models.ConnectionProfile, error)
	DeleteProfile(ctx context.Context, id string) error
	TestConnection(ctx context.Context, req profiles.TestConnectionRequest) profiles.TestConnectionResponse
}

// Handlers holds the services behind the HTTP API. Jobs, Snapshots and Profiles are
// optional; their routes are only registered when set.
type Handlers struct {
	Hierarchy *hierarchy.Service
	Jobs      JobManager
	Snapshots SnapshotLister
	Profiles  ProfileManager
	Logger    *zap.Logger
}

// NewRouter builds the gin engine with logging, recovery and all API routes
func NewRouter(h *Handlers) *gin.Engine {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestLogger(h.Logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(r.Group("/api"), h)
	return r
}

// RegisterRoutes registers the /api endpoints on rg.
//
//	GET    /hierarchy                     worker forest
//	GET    /hierarchy/flat                flattened view
//	GET    /hierarchy/stats               aggregate statistics
//	GET    /hierarchy/search?term=        name and location search
//	GET    /hierarchy/performance/:band   workers in a performance band
//	GET    /hierarchy/rankings            ranked workers
//	GET    /hierarchy/export              rankings as json or csv
//	POST   /hierarchy/refresh             rebuild the cached tree
//	DELETE /hierarchy/cache               drop every cached view
//	GET    /dashboard/summary             landing summary
//	GET    /jobs, POST /jobs, DELETE /jobs/:id, POST /jobs/:id/run
//	GET    /snapshots
//	GET    /profiles, POST /profiles, DELETE /profiles/:id, POST /profiles/test
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	hg := rg.Group("/hierarchy")
	{
		hg.GET("", h.getHierarchy)
		hg.GET("/flat", h.getFlat)
		hg.GET("/stats", h.getStats)
		hg.GET("/search", h.searchWorkers)
		hg.GET("/performance/:band", h.getByPerformance)
		hg.GET("/rankings", h.getRankings)
		hg.GET("/export", h.exportRankings)
		hg.POST("/refresh", h.refresh)
		hg.DELETE("/cache", h.clearCache)
	}

	rg.GET("/dashboard/summary", h.getDashboard)

	if h.Jobs != nil {
		jg := rg.Group("/jobs")
		jg.GET("", h.listJobs)
		jg.POST("", h.upsertJob)
		jg.DELETE("/:id", h.deleteJob)
		jg.POST("/:id/run", h.runJob)
	}

	if h.Snapshots != nil {
		rg.GET("/snapshots", h.listSnapshots)
	}

	if h.Profiles != nil {
		pg := rg.Group("/profiles")
		pg.GET("", h.listProfiles)
		pg.POST("", h.createProfile)
		pg.DELETE("/:id", h.deleteProfile)
		pg.POST("/test", h.testConnection)
	}
}
