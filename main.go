package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"LECS-backend/internal/analytics"
	"LECS-backend/internal/audit"
	"LECS-backend/internal/clearance/certificates"
	"LECS-backend/internal/clearance/eligibility"
	requestspkg "LECS-backend/internal/clearance/requests"
	"LECS-backend/internal/equipment/borrows"
	"LECS-backend/internal/equipment/issues"
	"LECS-backend/internal/platform/auth"
	"LECS-backend/internal/platform/db"
	"LECS-backend/internal/platform/logging"
	"LECS-backend/internal/platform/rbac"
	"LECS-backend/internal/platform/session"
	"LECS-backend/internal/profiles"
)

func main() {
	// .env は無ければ無いで良い（本番は環境変数で渡す）
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: go run main.go [dev|release]")
		return
	}

	logger, err := logging.Init(cfg.Mode)
	if err != nil {
		panic(err)
	}
	logging.Set(logger)
	defer logger.Sync()

	logger.Info("starting", zap.String("mode", cfg.Mode))

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	logger.Info("connected to DB", zap.String("dbname", cfg.DB.DBName))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		panic(err)
	}
	defer rdb.Close()

	sessionTTL := time.Duration(cfg.Session.TTLHours) * time.Hour
	sessions := session.NewStore(rdb, sessionTTL)
	secret := []byte(cfg.Auth.JWTSecret)

	// サービス群
	profileSvc := profiles.NewService(conn, cfg.Labs)
	authSvc := auth.NewService(conn, sessions, secret, sessionTTL)
	borrowSvc := borrows.NewService(conn, cfg.Labs)
	issueSvc := issues.NewService(conn, cfg.Labs, cfg.Clearance.AutoResolveAfterDays)
	eligSvc := eligibility.NewService(conn, cfg.Labs, cfg.Clearance.UnpaidCostThreshold)
	auditStore := audit.NewStore(conn)
	reqSvc := requestspkg.NewService(conn, auditStore, eligSvc, profileSvc)
	certSvc := certificates.NewService(conn, auditStore, requestspkg.NewStore(conn, auditStore))
	analyticsSvc := analytics.NewService(conn, cfg.Labs)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		// Swagger UI も開発時のみ
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterPublicRoutes(api, authSvc, cfg.Session.CookieName, int(sessionTTL.Seconds()))

	authed := api.Group("")
	authed.Use(auth.Identity(secret, sessions, cfg.Session.CookieName, profileSvc))
	{
		profiles.RegisterRoutes(authed, profileSvc)
		borrows.RegisterRoutes(authed, borrowSvc)
		issues.RegisterRoutes(authed, issueSvc)
		eligibility.RegisterRoutes(authed, eligSvc, profileSvc)
		requestspkg.RegisterRoutes(authed, reqSvc)
		certificates.RegisterRoutes(authed, certSvc)

		stats := authed.Group("")
		stats.Use(auth.RequirePermission(rbac.PermViewAnalytics))
		analytics.RegisterRoutes(stats, analyticsSvc)

		auditGroup := authed.Group("")
		auditGroup.Use(auth.RequirePermission(rbac.PermViewAudit))
		audit.RegisterRoutes(auditGroup, auditStore)

		admin := authed.Group("")
		admin.Use(auth.RequirePermission(rbac.PermManageAccounts))
		auth.RegisterAdminRoutes(admin, authSvc, cfg.Session.CookieName, int(sessionTTL.Seconds()))
	}

	// TLS起動（:8443）
	srv := &http.Server{
		Addr:    ":8443",
		Handler: r,
	}

	var certFile, keyFile string
	if cfg.Mode == "dev" {
		certFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Key)
	} else {
		certFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
	}

	go func() {
		logger.Info("listening", zap.String("addr", "https://0.0.0.0:8443"))
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("shutdown error", zap.Error(err))
	}
}
