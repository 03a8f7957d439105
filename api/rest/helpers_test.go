package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/IBigIBruce/MTGA-Backend/api/rest"
	"github.com/IBigIBruce/MTGA-Backend/audit"
	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/config"
	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/IBigIBruce/MTGA-Backend/scheduler"
	"github.com/IBigIBruce/MTGA-Backend/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAdminKey = "admin-secret"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testEnv is a full router over an in-memory database and local cache.
type testEnv struct {
	r      *gin.Engine
	db     *gorm.DB
	mgr    *profile.Manager
	cache  cache.Cache
	pubsub cache.PubSub
	audit  *audit.Service
	clock  *fakeClock
}

// envOptions adjusts newEnvWith. The zero value matches newEnv.
type envOptions struct {
	logger *zap.Logger
	// movingCache wraps the cache handed to the item-moving handler.
	movingCache func(cache.Cache) cache.Cache
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWith(t, envOptions{})
}

func newEnvWith(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}
	cat := testutil.Catalog(t)
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	movingCache := c
	if o.movingCache != nil {
		movingCache = o.movingCache(c)
	}

	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	engine := hideout.NewEngine(cat, hideout.WithClock(clk.Now))
	mgr := profile.NewManager(profile.NewStore(db, cat), c, logger, profile.Options{
		LockTTL:           5 * time.Second,
		StashTemplate:     testutil.StashTpl,
		EquipmentTemplate: testutil.EquipmentTpl,
	})
	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	authH := rest.NewAuthHandler(db, c, sec)
	charH := rest.NewCharacterHandler(mgr, logger)
	invH := rest.NewInventoryHandler(mgr, logger)
	hideoutH := rest.NewHideoutHandler(mgr, engine, logger)
	movingH := rest.NewMovingHandler(mgr, engine, movingCache, ps, auditSvc, logger)
	adminH := rest.NewAdminHandler(mgr, sched, c, auditSvc, logger)

	r := gin.New()
	r.Use(mw.TraceID())
	api := r.Group("/api")
	api.POST("/auth/login", authH.Login)
	api.POST("/auth/logout", mw.Auth(sec, c), authH.Logout)
	api.POST("/auth/refresh", mw.Auth(sec, c), authH.Refresh)

	chars := api.Group("/characters", mw.Auth(sec, c))
	chars.GET("", charH.List)
	chars.POST("", charH.Create)
	one := chars.Group("/:id", mw.CharacterAccess(mgr))
	one.GET("/inventory", invH.List)
	one.GET("/hideout", hideoutH.Get)
	one.GET("/history", movingH.History)
	one.POST("/items/moving", movingH.Move)

	admin := api.Group("/admin", mw.AdminAuth(testAdminKey))
	admin.GET("/metrics", adminH.Metrics)
	admin.POST("/flush", adminH.Flush)
	admin.GET("/characters/:id/snapshot", adminH.ExportSnapshot)
	admin.PUT("/characters/:id/snapshot", adminH.ImportSnapshot)
	admin.GET("/characters/:id/audit", adminH.Audit)

	return &testEnv{r: r, db: db, mgr: mgr, cache: c, pubsub: ps, audit: auditSvc, clock: clk}
}

// loginAndGetToken registers/logs in and returns the JWT.
func loginAndGetToken(t *testing.T, r *gin.Engine, user, pass string) string {
	t.Helper()
	w := postJSON(r, "/api/auth/login", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"].(string)
}

func doRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type createdChar struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Side        string `json:"side"`
	StashID     string `json:"stash_id"`
	EquipmentID string `json:"equipment_id"`
}

func (e *testEnv) createChar(t *testing.T, token, name string) createdChar {
	t.Helper()
	w := doRequest(e.r, http.MethodPost, "/api/characters", map[string]string{"name": name}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ch createdChar
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ch))
	return ch
}

// give puts a stack of tpl into the character's stash.
func (e *testEnv) give(t *testing.T, charID int64, tpl string, count int) inventory.Item {
	t.Helper()
	var added inventory.Item
	err := e.mgr.Update(context.Background(), charID, func(p *profile.Profile) error {
		var err error
		added, err = p.Inventory().AddItem(p.Inventory().StashRef(),
			inventory.Item{TemplateID: tpl, StackCount: count}, inventory.NewChangeSet())
		return err
	})
	require.NoError(t, err)
	return added
}

type movingResult struct {
	Items struct {
		New    []inventory.Item `json:"new"`
		Change []inventory.Item `json:"change"`
		Del    []struct {
			ID string `json:"_id"`
		} `json:"del"`
	} `json:"items"`
	Hideout  *hideout.State `json:"hideout"`
	Warnings []struct {
		Index  int    `json:"index"`
		Action string `json:"action"`
		Code   string `json:"code"`
		ErrMsg string `json:"errmsg"`
	} `json:"warnings"`
}

func (e *testEnv) moving(t *testing.T, token string, charID int64, actions ...map[string]any) movingResult {
	t.Helper()
	w := doRequest(e.r, http.MethodPost, fmt.Sprintf("/api/characters/%d/items/moving", charID),
		map[string]any{"data": actions}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res movingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func (e *testEnv) stackCount(t *testing.T, charID int64, itemID string) int {
	t.Helper()
	var n int
	err := e.mgr.View(context.Background(), charID, func(p *profile.Profile) error {
		it, err := p.Inventory().Get(itemID)
		if err != nil {
			return err
		}
		n = it.Count()
		return nil
	})
	require.NoError(t, err)
	return n
}
