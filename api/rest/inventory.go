package rest

import (
	"net/http"

	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InventoryHandler handles inventory REST endpoints.
type InventoryHandler struct {
	mgr    *profile.Manager
	logger *zap.Logger
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(mgr *profile.Manager, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{mgr: mgr, logger: logger}
}

// List handles GET /api/characters/:id/inventory.
func (h *InventoryHandler) List(c *gin.Context) {
	var (
		items              []inventory.Item
		stashID, equipment string
	)
	err := h.mgr.View(c.Request.Context(), mw.GetCharacterID(c), func(p *profile.Profile) error {
		items = p.Inventory().Items()
		stashID, equipment = p.StashID, p.EquipmentID
		return nil
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stash":     stashID,
		"equipment": equipment,
		"items":     items,
	})
}
