package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"brigadas-analytics/internal/services/hierarchy"
	"brigadas-analytics/internal/services/profiles"
	"brigadas-analytics/internal/services/scheduler"
)

func (h *Handlers) getHierarchy(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	tree, err := h.Hierarchy.GetHierarchicalData(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	if tree == nil {
		tree = []*hierarchy.HierarchyNode{}
	}
	c.JSON(http.StatusOK, tree)
}

func (h *Handlers) getFlat(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	flat, err := h.Hierarchy.GetFlattenedHierarchy(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(flat))
}

func (h *Handlers) getStats(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	stats, err := h.Hierarchy.GetHierarchyStats(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) searchWorkers(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	nodes, err := h.Hierarchy.SearchWorkers(c.Request.Context(), c.Query("term"), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(nodes))
}

func (h *Handlers) getByPerformance(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	nodes, err := h.Hierarchy.GetWorkersByPerformance(c.Request.Context(), hierarchy.Band(c.Param("band")), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(nodes))
}

func (h *Handlers) getRankings(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	ranked, err := h.Hierarchy.GetRankings(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	if ranked == nil {
		ranked = []hierarchy.RankedNode{}
	}
	c.JSON(http.StatusOK, ranked)
}

func (h *Handlers) exportRankings(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		badRequest(c, "INVALID_LIMIT", err)
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "json"))

	out, err := h.Hierarchy.ExportRankings(c.Request.Context(), filter, format, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	contentType := "application/json; charset=utf-8"
	if format == "csv" {
		contentType = "text/csv; charset=utf-8"
		c.Header("Content-Disposition", `attachment; filename="rankings.csv"`)
	}
	c.Data(http.StatusOK, contentType, []byte(out))
}

func (h *Handlers) refresh(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.Hierarchy.Refresh(c.Request.Context(), filter); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

func (h *Handlers) clearCache(c *gin.Context) {
	h.Hierarchy.ClearCache()
	c.Status(http.StatusNoContent)
}

func (h *Handlers) getDashboard(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	top, err := intQuery(c, "top", 0)
	if err != nil {
		badRequest(c, "INVALID_TOP", err)
		return
	}

	summary, err := h.Hierarchy.GetDashboardSummary(c.Request.Context(), filter, top)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handlers) listJobs(c *gin.Context) {
	jobs, err := h.Jobs.ListJobs()
	if err != nil {
		h.fail(c, err)
		return
	}
	if jobs == nil {
		jobs = []scheduler.JobListResponse{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handlers) upsertJob(c *gin.Context) {
	var req scheduler.UpsertJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err)
		return
	}

	id, err := h.Jobs.UpsertJob(req)
	if err != nil {
		badRequest(c, "INVALID_JOB", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handlers) deleteJob(c *gin.Context) {
	if err := h.Jobs.DeleteJob(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) runJob(c *gin.Context) {
	if err := h.Jobs.RunJob(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

func (h *Handlers) listSnapshots(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		badRequest(c, "INVALID_LIMIT", err)
		return
	}

	snaps, err := h.Snapshots.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}

func (h *Handlers) listProfiles(c *gin.Context) {
	list, err := h.Profiles.ListProfiles(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) createProfile(c *gin.Context) {
	var req profiles.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err)
		return
	}

	profile, err := h.Profiles.CreateProfile(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (h *Handlers) deleteProfile(c *gin.Context) {
	if err := h.Profiles.DeleteProfile(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) testConnection(c *gin.Context) {
	var req profiles.TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err)
		return
	}
	c.JSON(http.StatusOK, h.Profiles.TestConnection(c.Request.Context(), req))
}

func nonNil(nodes []hierarchy.HierarchyNode) []hierarchy.HierarchyNode {
	if nodes == nil {
		return []hierarchy.HierarchyNode{}
	}
	return nodes
}
