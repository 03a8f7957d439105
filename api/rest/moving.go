package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/IBigIBruce/MTGA-Backend/audit"
	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxBatchActions = 50
	historyLen      = 50

	historyPrefix  = "history:"
	metricBatches  = "metrics:action_batches"
	metricWarnings = "metrics:action_warnings"
)

type movingRequest struct {
	Data []json.RawMessage `json:"data"`
}

type actionHeader struct {
	Action string `json:"Action"`
}

type deletedItem struct {
	ID string `json:"_id"`
}

type itemChanges struct {
	New    []inventory.Item `json:"new"`
	Change []inventory.Item `json:"change"`
	Del    []deletedItem    `json:"del"`
}

type warning struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Code   string `json:"code"`
	ErrMsg string `json:"errmsg"`
}

type movingResponse struct {
	Items    itemChanges    `json:"items"`
	Hideout  *hideout.State `json:"hideout,omitempty"`
	Warnings []warning      `json:"warnings"`
}

// historyEntry is one batch as kept in the per-character history list.
type historyEntry struct {
	At       int64    `json:"at"`
	TraceID  string   `json:"trace_id"`
	Actions  []string `json:"actions"`
	Changed  int      `json:"changed"`
	Warnings []string `json:"warnings,omitempty"`
}

// MovingHandler runs item action batches against a character.
type MovingHandler struct {
	mgr    *profile.Manager
	engine *hideout.Engine
	cache  cache.Cache
	pubsub cache.PubSub
	audit  *audit.Service
	logger *zap.Logger
}

// NewMovingHandler creates a MovingHandler. pubsub and auditSvc may be nil.
func NewMovingHandler(
	mgr *profile.Manager,
	engine *hideout.Engine,
	c cache.Cache,
	pubsub cache.PubSub,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *MovingHandler {
	return &MovingHandler{mgr: mgr, engine: engine, cache: c, pubsub: pubsub, audit: auditSvc, logger: logger}
}

func lookupAction(raw json.RawMessage) (string, actionFunc, error) {
	var hdr actionHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if hdr.Action == "" {
		return "", nil, fmt.Errorf("%w: missing Action", errBadRequest)
	}
	fn, ok := actionTable[hdr.Action]
	if !ok {
		return hdr.Action, nil, fmt.Errorf("%w: %s", errUnknownAction, hdr.Action)
	}
	return hdr.Action, fn, nil
}

// Move handles POST /api/characters/:id/items/moving.
// Actions run in order under the character's write lock and share one
// ChangeSet. The first rejected action ends the batch and is reported as a
// warning; actions before it stay applied.
func (h *MovingHandler) Move(c *gin.Context) {
	var req movingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "BadRequest"})
		return
	}
	if len(req.Data) > maxBatchActions {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many actions", "code": "BadRequest"})
		return
	}

	start := time.Now()
	charID := mw.GetCharacterID(c)
	cs := inventory.NewChangeSet()
	var (
		warnings = []warning{}
		names    = make([]string, 0, len(req.Data))
		hs       *hideout.State
	)

	err := h.mgr.Update(c.Request.Context(), charID, func(p *profile.Profile) error {
		h.engine.CompleteDueImprovements(p, cs)
		ac := &actionContext{p: p, engine: h.engine, cs: cs}
		for i, raw := range req.Data {
			name, fn, err := lookupAction(raw)
			if err == nil {
				err = fn(ac, raw)
			}
			names = append(names, name)
			if err == nil {
				continue
			}
			code, status := classify(err)
			if status == http.StatusInternalServerError {
				return err
			}
			h.logger.Debug("action rejected",
				zap.Int64("char_id", charID),
				zap.Int("index", i),
				zap.String("action", name),
				zap.Error(err))
			warnings = append(warnings, warning{Index: i, Action: name, Code: code, ErrMsg: err.Error()})
			break
		}
		if cs.HideoutChanged() {
			hs = h.engine.Overview(p.Hideout())
		}
		return nil
	})
	if err != nil {
		h.record(c, charID, req, nil, names, err, start)
		respondError(c, h.logger, err)
		return
	}

	resp := &movingResponse{Items: collectChanges(cs), Hideout: hs, Warnings: warnings}
	h.record(c, charID, req, resp, names, nil, start)
	c.JSON(http.StatusOK, resp)
}

func collectChanges(cs *inventory.ChangeSet) itemChanges {
	out := itemChanges{
		New:    cs.ItemsAdded(),
		Change: cs.ItemsModified(),
		Del:    []deletedItem{},
	}
	if out.New == nil {
		out.New = []inventory.Item{}
	}
	if out.Change == nil {
		out.Change = []inventory.Item{}
	}
	for _, id := range cs.ItemsRemoved() {
		out.Del = append(out.Del, deletedItem{ID: id})
	}
	return out
}

// record fans a finished batch out to subscribers, history, counters and the
// audit log. Failures here never fail the request.
func (h *MovingHandler) record(c *gin.Context, charID int64, req movingRequest, resp *movingResponse, names []string, batchErr error, start time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
	defer cancel()
	traceID := mw.GetTraceID(c)

	entry := historyEntry{At: start.Unix(), TraceID: traceID, Actions: names}
	if resp != nil {
		entry.Changed = len(resp.Items.New) + len(resp.Items.Change) + len(resp.Items.Del)
		for _, w := range resp.Warnings {
			entry.Warnings = append(entry.Warnings, w.Code)
		}
		if h.pubsub != nil && (entry.Changed > 0 || resp.Hideout != nil) {
			payload, _ := json.Marshal(resp)
			if err := h.pubsub.Publish(ctx, profile.EventChannel(charID), string(payload)); err != nil {
				h.logger.Warn("publish change set failed", zap.Int64("char_id", charID), zap.Error(err))
			}
		}
	}

	if data, err := json.Marshal(entry); err == nil {
		key := historyPrefix + fmt.Sprint(charID)
		if err := h.cache.LPush(ctx, key, string(data)); err != nil {
			h.logger.Warn("history push failed", zap.Int64("char_id", charID), zap.Error(err))
		} else if err := h.cache.LTrim(ctx, key, 0, historyLen-1); err != nil {
			h.logger.Warn("history trim failed", zap.Int64("char_id", charID), zap.Error(err))
		}
	}
	counters := []string{metricBatches}
	if len(entry.Warnings) > 0 {
		counters = append(counters, metricWarnings)
	}
	for _, key := range counters {
		if _, err := h.cache.Incr(ctx, key); err != nil {
			h.logger.Warn("metric increment failed", zap.String("key", key), zap.Error(err))
		}
	}

	if h.audit == nil {
		return
	}
	accountID := mw.GetAccountID(c)
	e := audit.Entry{
		TraceID:   traceID,
		CharID:    &charID,
		AccountID: &accountID,
		Action:    "items.moving",
		Request:   req.Data,
		IP:        c.ClientIP(),
		Duration:  time.Since(start),
	}
	switch {
	case batchErr != nil:
		e.Error = batchErr.Error()
	case resp != nil:
		e.Response = resp
		if len(resp.Warnings) > 0 {
			e.Error = resp.Warnings[0].ErrMsg
		}
	}
	h.audit.Log(e)
}

// History handles GET /api/characters/:id/history: the most recent batches,
// newest first.
func (h *MovingHandler) History(c *gin.Context) {
	charID := mw.GetCharacterID(c)
	raw, err := h.cache.LRange(c.Request.Context(), historyPrefix+fmt.Sprint(charID), 0, historyLen-1)
	if err != nil && !cache.IsNotFound(err) {
		respondError(c, h.logger, err)
		return
	}
	out := make([]historyEntry, 0, len(raw))
	for _, s := range raw {
		var e historyEntry
		if json.Unmarshal([]byte(s), &e) == nil {
			out = append(out, e)
		}
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}
