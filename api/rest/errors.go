package rest

import (
	"errors"
	"net/http"

	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errBadRequest    = errors.New("bad request")
	errUnknownAction = errors.New("unknown action")
)

type errorKind struct {
	err    error
	code   string
	status int
}

// errorKinds maps domain sentinels to stable client codes. The first match
// wins.
var errorKinds = []errorKind{
	{errBadRequest, "BadRequest", http.StatusBadRequest},
	{errUnknownAction, "UnknownAction", http.StatusBadRequest},

	{profile.ErrCharacterNotFound, "NotFound", http.StatusNotFound},
	{profile.ErrCharacterBusy, "CharacterBusy", http.StatusConflict},
	{profile.ErrBadSnapshot, "BadSnapshot", http.StatusBadRequest},

	{hideout.ErrItemsUnavailable, "ItemsUnavailable", http.StatusUnprocessableEntity},
	{hideout.ErrUnknownArea, "UnknownArea", http.StatusNotFound},
	{hideout.ErrUnknownRecipe, "UnknownRecipe", http.StatusNotFound},
	{hideout.ErrNoNextStage, "NoNextStage", http.StatusConflict},
	{hideout.ErrNotConstructing, "NotConstructing", http.StatusConflict},
	{hideout.ErrAlreadyConstructing, "AlreadyConstructing", http.StatusConflict},
	{hideout.ErrNotInProgress, "NotInProgress", http.StatusConflict},
	{hideout.ErrProductionInProgress, "ProductionInProgress", http.StatusConflict},
	{hideout.ErrNotYetDue, "NotYetDue", http.StatusConflict},
	{hideout.ErrInvalidSlot, "InvalidSlot", http.StatusUnprocessableEntity},
	{hideout.ErrSlotEmpty, "SlotEmpty", http.StatusConflict},
	{hideout.ErrNoImprovements, "NoImprovements", http.StatusConflict},
	{hideout.ErrInvalidDuration, "InvalidDuration", http.StatusUnprocessableEntity},

	{inventory.ErrNotFound, "NotFound", http.StatusNotFound},
	{inventory.ErrInvalidContainer, "InvalidContainer", http.StatusUnprocessableEntity},
	{inventory.ErrInvalidTarget, "InvalidTarget", http.StatusUnprocessableEntity},
	{inventory.ErrCollision, "Collision", http.StatusConflict},
	{inventory.ErrNoSpace, "NoSpace", http.StatusConflict},
	{inventory.ErrSlotOccupied, "SlotOccupied", http.StatusConflict},
	{inventory.ErrSlotted, "ItemInAreaSlot", http.StatusConflict},
	{inventory.ErrInsufficientCount, "InsufficientCount", http.StatusUnprocessableEntity},
	{inventory.ErrNotStackable, "NotStackable", http.StatusUnprocessableEntity},
	{inventory.ErrTemplateMismatch, "TemplateMismatch", http.StatusUnprocessableEntity},
	{inventory.ErrCountOutOfRange, "CountOutOfRange", http.StatusUnprocessableEntity},
	{inventory.ErrUnknownTemplate, "UnknownTemplate", http.StatusUnprocessableEntity},
}

// classify returns the client code and HTTP status for err. Unknown errors
// are internal.
func classify(err error) (string, int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.code, k.status
		}
	}
	return "Internal", http.StatusInternalServerError
}

// respondError writes the error body. Internal errors are logged and their
// text is not sent to the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
