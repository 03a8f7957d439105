package rest

import (
	"net/http"

	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HideoutHandler serves the read side of the hideout.
type HideoutHandler struct {
	mgr    *profile.Manager
	engine *hideout.Engine
	logger *zap.Logger
}

// NewHideoutHandler creates a new HideoutHandler.
func NewHideoutHandler(mgr *profile.Manager, engine *hideout.Engine, logger *zap.Logger) *HideoutHandler {
	return &HideoutHandler{mgr: mgr, engine: engine, logger: logger}
}

// Get handles GET /api/characters/:id/hideout. Production progress is
// reported as of now.
func (h *HideoutHandler) Get(c *gin.Context) {
	var out *hideout.State
	err := h.mgr.View(c.Request.Context(), mw.GetCharacterID(c), func(p *profile.Profile) error {
		out = h.engine.Overview(p.Hideout())
		return nil
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hideout": out, "server_time": h.engine.Now()})
}
