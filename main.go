package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apirest "github.com/IBigIBruce/MTGA-Backend/api/rest"
	"github.com/IBigIBruce/MTGA-Backend/api/sse"
	"github.com/IBigIBruce/MTGA-Backend/audit"
	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/catalog"
	"github.com/IBigIBruce/MTGA-Backend/config"
	dbadapter "github.com/IBigIBruce/MTGA-Backend/db"
	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
	mw "github.com/IBigIBruce/MTGA-Backend/middleware"
	"github.com/IBigIBruce/MTGA-Backend/model"
	"github.com/IBigIBruce/MTGA-Backend/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger. With server.log_file set, entries are
// also written as JSON to a size-rotated file.
func newLogger(cfg config.ServerConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	logger, err := zcfg.Build()
	if err != nil || cfg.LogFile == "" {
		return logger, err
	}
	rotate := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxMB,
		MaxBackups: 5,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), rotate, zcfg.Level)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	logger, err := newLogger(cfg.Server)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = uuid.NewString()
		logger.Warn("security.jwt_secret is not set; using a random secret, sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Catalog ----
	cat, err := catalog.Load(cfg.Catalog.DataPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	items, areas, recipes := cat.Counts()
	logger.Info("Catalog loaded",
		zap.String("path", cfg.Catalog.DataPath),
		zap.Int("items", items), zap.Int("areas", areas), zap.Int("recipes", recipes))

	// ---- Game Systems ----
	engine := hideout.NewEngine(cat)
	mgr := profile.NewManager(profile.NewStore(db, cat), c, logger, profile.Options{
		LockTTL:           cfg.Game.LockTTL,
		StashTemplate:     cfg.Game.StashTemplate,
		EquipmentTemplate: cfg.Game.EquipmentTemplate,
	})

	// ---- Periodic Scheduler Tasks ----
	sched := scheduler.New(logger)
	if cfg.Game.SaveIntervalS > 0 {
		sched.AddTicker("profile_flush", time.Duration(cfg.Game.SaveIntervalS)*time.Second, func(ctx context.Context) error {
			n, err := mgr.FlushDirty(ctx)
			if n > 0 {
				logger.Debug("profiles flushed", zap.Int("count", n))
			}
			return err
		})
	}
	if cfg.Game.IdleEvictS > 0 {
		idle := time.Duration(cfg.Game.IdleEvictS) * time.Second
		sched.AddTicker("profile_evict", time.Minute, func(context.Context) error {
			if n := mgr.EvictIdle(idle); n > 0 {
				logger.Debug("idle profiles evicted", zap.Int("count", n))
			}
			return nil
		})
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	charH := apirest.NewCharacterHandler(mgr, logger)
	invH := apirest.NewInventoryHandler(mgr, logger)
	hideoutH := apirest.NewHideoutHandler(mgr, engine, logger)
	movingH := apirest.NewMovingHandler(mgr, engine, c, pubsub, auditSvc, logger)
	adminH := apirest.NewAdminHandler(mgr, sched, c, auditSvc, logger)

	limit := mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	auth := mw.Auth(cfg.Security, c)

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

		adminG := api.Group("/admin", mw.IPWhitelist(cfg.Server.AdminIPs), mw.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/flush", adminH.Flush)
		adminG.GET("/characters/:id/snapshot", adminH.ExportSnapshot)
		adminG.PUT("/characters/:id/snapshot", adminH.ImportSnapshot)
		adminG.GET("/characters/:id/audit", adminH.Audit)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, mgr, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := mgr.Close(shutdownCtx); err != nil {
		logger.Error("final profile flush", zap.Error(err))
	}
	auditSvc.Stop(shutdownCtx)
}
