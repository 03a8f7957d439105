package rest

import (
	"io"
	"net/http"
	"strconv"

	"github.com/IBigIBruce/MTGA-Backend/audit"
	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	"github.com/IBigIBruce/MTGA-Backend/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxSnapshotBytes = 16 << 20

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	mgr    *profile.Manager
	sched  *scheduler.Scheduler
	cache  cache.Cache
	audit  *audit.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	mgr *profile.Manager,
	sched *scheduler.Scheduler,
	c cache.Cache,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{mgr: mgr, sched: sched, cache: c, audit: auditSvc, logger: logger}
}

func (h *AdminHandler) counter(c *gin.Context, key string) int64 {
	s, err := h.cache.Get(c.Request.Context(), key)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var tasks []string
	if h.sched != nil {
		tasks = h.sched.ListTickers()
	}
	c.JSON(http.StatusOK, gin.H{
		"profiles":        h.mgr.Stats(),
		"action_batches":  h.counter(c, metricBatches),
		"action_warnings": h.counter(c, metricWarnings),
		"scheduler_tasks": tasks,
	})
}

// Flush writes every dirty profile to the database.
// POST /api/admin/flush
func (h *AdminHandler) Flush(c *gin.Context) {
	n, err := h.mgr.FlushDirty(c.Request.Context())
	if err != nil {
		h.logger.Error("admin flush", zap.Int("flushed", n), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flush incomplete", "flushed": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flushed": n})
}

func charParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// ExportSnapshot streams a character's compressed snapshot.
// GET /api/admin/characters/:id/snapshot
func (h *AdminHandler) ExportSnapshot(c *gin.Context) {
	charID, ok := charParam(c)
	if !ok {
		return
	}
	data, err := h.mgr.Export(c.Request.Context(), charID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=profile-"+strconv.FormatInt(charID, 10)+".json.zst")
	c.Data(http.StatusOK, "application/zstd", data)
}

// ImportSnapshot replaces a character from a snapshot in the request body.
// PUT /api/admin/characters/:id/snapshot
func (h *AdminHandler) ImportSnapshot(c *gin.Context) {
	charID, ok := charParam(c)
	if !ok {
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	if len(data) > maxSnapshotBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot too large"})
		return
	}
	if err := h.mgr.Import(c.Request.Context(), charID, data); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("admin snapshot import", zap.Int64("char_id", charID), zap.Int("bytes", len(data)))
	c.JSON(http.StatusOK, gin.H{"message": "imported"})
}

// Audit returns the newest audit records of a character.
// GET /api/admin/characters/:id/audit?limit=N
func (h *AdminHandler) Audit(c *gin.Context) {
	charID, ok := charParam(c)
	if !ok {
		return
	}
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.audit.Recent(c.Request.Context(), charID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": logs})
}
