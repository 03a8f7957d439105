package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	apirest "github.com/IBigIBruce/MTGA-Backend/api/rest"
	"github.com/IBigIBruce/MTGA-Backend/api/sse"
	"github.com/IBigIBruce/MTGA-Backend/audit"
	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/catalog"
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
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const adminKey = "integration-admin"

// TestServer wraps a real HTTP server with every subsystem wired together
// over the shipped catalog.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Catalog *catalog.Catalog
	Manager *profile.Manager
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	Sec     config.SecurityConfig

	cancel context.CancelFunc
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	game := config.GameConfig{
		StashTemplate:     "566abbc34bdc2d92178b4576",
		EquipmentTemplate: "55d7217a4bdc2d86028b456d",
		LockTTL:           10 * time.Second,
	}

	cat, err := catalog.Load(filepath.Join("..", "data", "catalog"))
	require.NoError(t, err, "load shipped catalog")

	// ---- Game Systems ----
	engine := hideout.NewEngine(cat)
	mgr := profile.NewManager(profile.NewStore(db, cat), c, logger, profile.Options{
		LockTTL:           game.LockTTL,
		StashTemplate:     game.StashTemplate,
		EquipmentTemplate: game.EquipmentTemplate,
	})
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec)
	charH := apirest.NewCharacterHandler(mgr, logger)
	invH := apirest.NewInventoryHandler(mgr, logger)
	hideoutH := apirest.NewHideoutHandler(mgr, engine, logger)
	movingH := apirest.NewMovingHandler(mgr, engine, c, pubsub, auditSvc, logger)
	adminH := apirest.NewAdminHandler(mgr, sched, c, auditSvc, logger)

	limit := mw.RateLimit(ctx, rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst)
	auth := mw.Auth(sec, c)

	api := r.Group("/api")
	{
		authG := api.Group("/auth", limit)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		charsG := api.Group("/characters", auth, limit)
		charsG.GET("", charH.List)
		charsG.POST("", charH.Create)

		charG := charsG.Group("/:id", mw.CharacterAccess(mgr))
		charG.GET("/inventory", invH.List)
		charG.GET("/hideout", hideoutH.Get)
		charG.GET("/history", movingH.History)
		charG.POST("/items/moving", movingH.Move)

		adminG := api.Group("/admin", mw.IPWhitelist([]string{"127.0.0.1", "::1"}), mw.AdminAuth(adminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/flush", adminH.Flush)
		adminG.GET("/characters/:id/snapshot", adminH.ExportSnapshot)
		adminG.PUT("/characters/:id/snapshot", adminH.ImportSnapshot)
	}

	sseH := sse.NewHandler(pubsub, c, sec, mgr, logger)
	r.GET("/sse", sseH.ServeSSE)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Catalog: cat,
		Manager: mgr,
		Server:  server,
		URL:     server.URL,
		Sec:     sec,
		cancel:  cancel,
	}
	t.Cleanup(func() {
		ts.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// Close shuts down the HTTP server. It is safe to call more than once.
func (ts *TestServer) Close() {
	ts.cancel()
	ts.Server.Close()
}

var idCounter atomic.Int64

// UniqueID returns a short unique name with the given prefix.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, idCounter.Add(1))
}

func (ts *TestServer) do(t *testing.T, method, path string, body any, token string, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends an authenticated GET.
func (ts *TestServer) Get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, token)
}

// PostJSON sends an authenticated POST with a JSON body.
func (ts *TestServer) PostJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, token)
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string) *http.Response {
	t.Helper()
	return ts.do(t, method, path, nil, "", "X-Admin-Key", adminKey)
}

// ReadJSON decodes and closes the response body.
func ReadJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// Login logs in (auto-registering) and returns the token and account id.
func (ts *TestServer) Login(t *testing.T, username, password string) (string, int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token     string `json:"token"`
		AccountID int64  `json:"account_id"`
	}
	ReadJSON(t, resp, &out)
	return out.Token, out.AccountID
}

// Character is the creation response.
type Character struct {
	ID          int64  `json:"id"`
	StashID     string `json:"stash_id"`
	EquipmentID string `json:"equipment_id"`
}

// CreateCharacter creates a character and returns it.
func (ts *TestServer) CreateCharacter(t *testing.T, token, name string) Character {
	t.Helper()
	resp := ts.PostJSON(t, "/api/characters", map[string]string{"name": name}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ch Character
	ReadJSON(t, resp, &ch)
	return ch
}

// Moving posts an action batch and returns the decoded response.
func (ts *TestServer) Moving(t *testing.T, token string, charID int64, actions ...map[string]any) map[string]any {
	t.Helper()
	resp := ts.PostJSON(t, fmt.Sprintf("/api/characters/%d/items/moving", charID), map[string]any{"data": actions}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	ReadJSON(t, resp, &out)
	return out
}

// Give puts count units of tpl into the character's stash and returns the
// new item id.
func (ts *TestServer) Give(t *testing.T, charID int64, tpl string, count int) string {
	t.Helper()
	var id string
	err := ts.Manager.Update(context.Background(), charID, func(p *profile.Profile) error {
		it, err := p.Inventory().AddItem(p.Inventory().StashRef(),
			inventory.Item{TemplateID: tpl, StackCount: count}, inventory.NewChangeSet())
		id = it.ID
		return err
	})
	require.NoError(t, err)
	return id
}
