package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/uplink-console/internal/config"
	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/materials/handler"
	"github.com/bitfantasy/uplink-console/internal/materials/repository"
	"github.com/bitfantasy/uplink-console/internal/materials/service"
	"github.com/bitfantasy/uplink-console/internal/middleware"
	"github.com/bitfantasy/uplink-console/internal/shared/erpapi"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting uplink-console service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	// 初始化数据库（仅操作日志落库）
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&entity.ActivityLog{}); err != nil {
		zapLogger.Warn("AutoMigrate activity log table warning", zap.Error(err))
	}

	// 初始化Redis（置顶集合与身份缓存）
	rdb := initRedis(cfg.Redis)

	// 上游ERP客户端与会话仓库
	api := erpapi.NewClient(cfg.Upstream.BaseURL)
	sessions := erpapi.NewSessionStore(api, rdb, zapLogger)
	sessions.OnExpired(func() {
		zapLogger.Warn("Upstream session expired")
	})

	// 初始化依赖
	repos := repository.NewRepositories(db, rdb)
	services := service.NewServices(api, sessions, repos, zapLogger)
	handlers := handler.NewHandlers(services, repos, zapLogger)
	handlers.Catalog.SetDebounceWindow(cfg.Catalog.DebounceWindow)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1（全部需要认证）
	v1 := r.Group("/api/v1/materials")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		requests := v1.Group("/requests")
		{
			requests.GET("", h.Request.List)
			requests.POST("", h.Request.Create)
			requests.GET("/:id", h.Request.Get)
			requests.PATCH("/:id", h.Request.UpdateHeader)
			requests.DELETE("/:id", h.Request.Delete)
			requests.PUT("/:id/pin", h.Request.Pin)
			requests.GET("/:id/export", h.Request.Export)
			requests.GET("/:id/activity", h.Activity.ListByRequest)

			requests.POST("/:id/items", h.Item.Add)
			requests.PATCH("/:id/items/:itemId", h.Item.Patch)
			requests.DELETE("/:id/items/:itemId", h.Item.Remove)
			requests.POST("/:id/mark-all-ready", h.Item.MarkAllReady)
		}

		catalog := v1.Group("/catalog")
		{
			catalog.GET("/search", h.Catalog.Search)
		}

		estimates := v1.Group("/estimates")
		{
			estimates.GET("", h.Estimate.ListOngoing)
			estimates.GET("/:id/lines", h.Estimate.ExtractLines)
		}
	}
}
