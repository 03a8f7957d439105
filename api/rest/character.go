package rest

import (
	"net/http"

	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCharacters = 3

var validSides = map[string]bool{"": true, "Usec": true, "Bear": true}

// CharacterHandler handles character REST endpoints.
type CharacterHandler struct {
	mgr    *profile.Manager
	logger *zap.Logger
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(mgr *profile.Manager, logger *zap.Logger) *CharacterHandler {
	return &CharacterHandler{mgr: mgr, logger: logger}
}

// List handles GET /api/characters.
func (h *CharacterHandler) List(c *gin.Context) {
	chars, err := h.mgr.List(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}

type createCharacterRequest struct {
	Name string `json:"name" binding:"required,min=1,max=32"`
	Side string `json:"side"`
}

// Create handles POST /api/characters. The new profile starts with an empty
// stash, an equipment root and every hideout area at level zero.
func (h *CharacterHandler) Create(c *gin.Context) {
	accountID := mw.GetAccountID(c)

	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validSides[req.Side] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid side"})
		return
	}

	existing, err := h.mgr.List(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if len(existing) >= maxCharacters {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max characters reached"})
		return
	}

	char, err := h.mgr.Create(c.Request.Context(), accountID, req.Name, req.Side)
	if err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "character name already taken"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, char)
}
