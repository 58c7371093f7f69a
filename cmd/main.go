package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/subkeyhq/gateway/internal/accounts"
	"github.com/subkeyhq/gateway/internal/auditlog"
	"github.com/subkeyhq/gateway/internal/config"
	"github.com/subkeyhq/gateway/internal/db"
	"github.com/subkeyhq/gateway/internal/gateway"
	"github.com/subkeyhq/gateway/internal/logger"
	"github.com/subkeyhq/gateway/internal/subkeys"
	"github.com/subkeyhq/gateway/internal/vault"
)

func main() {
	cfg := config.Load()
	flag.Parse()

	appLogger := logger.New(cfg.DebugMode)
	defer func() {
		_ = appLogger.Sync() // Ignore sync errors on close, as per zap documentation
	}()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", "error", err)
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.Default()
	if cfg.DebugMode {
		router.Use(cors.New(cors.Config{
			AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Type"},
			AllowOriginFunc: func(origin string) bool {
				return true
			},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := openDatabase(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open database", "error", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database", "error", err)
		}
	}()

	if err := registerHandlers(ctx, router, cfg, database, appLogger); err != nil {
		appLogger.Fatal("Failed to register handlers", "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLogger.Info("Server starting",
			"port", cfg.Port,
			"debug_mode", cfg.DebugMode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutdown signal received, shutting down server...")

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited gracefully")
}

// openDatabase opens the shared handle based on the configured storage mode.
//
// Storage modes:
//   - in-memory (default): Ephemeral storage, data lost on restart
//   - disk: Persistent local storage using a file (single replica only)
//   - external: External database (PostgreSQL), supports multiple replicas
func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*db.DB, error) {
	switch cfg.StorageMode {
	case config.StorageModeInMemory, "":
		log.Info("Using in-memory storage (data will be lost on restart). " +
			"For persistent storage, use --storage=disk or --storage=external")
		return db.OpenSQLite(ctx, log, db.Memory)

	case config.StorageModeDisk:
		dataPath := strings.TrimSpace(cfg.DataPath)
		if dataPath == "" {
			dataPath = config.DefaultDataPath
		}
		return db.OpenSQLite(ctx, log, dataPath)

	case config.StorageModeExternal:
		dbURL := strings.TrimSpace(cfg.DBConnectionURL)
		if dbURL == "" {
			return nil, errors.New("--db-connection-url is required when using --storage=external")
		}
		return db.OpenPostgres(ctx, log, dbURL)

	default:
		return nil, fmt.Errorf("unknown storage mode: %q (valid modes: in-memory, disk, external)", cfg.StorageMode)
	}
}

func registerHandlers(ctx context.Context, router *gin.Engine, cfg *config.Config, database *db.DB, appLogger *logger.Logger) error {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	accountStore, err := accounts.NewStore(ctx, database)
	if err != nil {
		return err
	}
	subkeyStore, err := subkeys.NewStore(ctx, database)
	if err != nil {
		return err
	}
	auditStore, err := auditlog.NewStore(ctx, database)
	if err != nil {
		return err
	}

	cipher, err := vault.NewCipher(cfg.EncryptionSecret)
	if err != nil {
		return err
	}
	vaultStore, err := vault.NewStore(ctx, database, cipher)
	if err != nil {
		return err
	}

	sessions := accounts.NewSessionManager(cfg.JWTSecret, cfg.SessionTTL)
	accountHandler := accounts.NewHandler(appLogger, accountStore, sessions)

	authRoutes := router.Group("/auth")
	authRoutes.POST("/signup", accountHandler.Signup)
	authRoutes.POST("/login", accountHandler.Login)
	authRoutes.GET("/me", accounts.RequireAuth(sessions), accountHandler.Me)

	subkeyService := subkeys.NewService(appLogger, subkeyStore, auditStore)
	subkeyHandler := subkeys.NewHandler(appLogger, subkeyService)
	vaultHandler := vault.NewHandler(appLogger, vaultStore)
	auditHandler := auditlog.NewHandler(appLogger, auditStore)

	provider := gateway.NewOpenAIProvider(cfg.UpstreamBaseURL, cfg.UpstreamModel)
	proxyService := gateway.NewService(appLogger, subkeys.NewMatcher(subkeyStore), subkeyStore, vaultStore, provider, auditStore)
	proxyHandler := gateway.NewHandler(appLogger, proxyService)

	v1Routes := router.Group("/v1")

	// Proxy path: authenticated by the presented subkey itself.
	v1Routes.POST("/generate", proxyHandler.Generate)

	// Management paths: authenticated owner sessions.
	ownerRoutes := v1Routes.Group("", accounts.RequireAuth(sessions))
	ownerRoutes.POST("/subkeys", subkeyHandler.Issue)
	ownerRoutes.GET("/subkeys", subkeyHandler.List)
	ownerRoutes.PATCH("/subkeys/:id", subkeyHandler.Update)
	ownerRoutes.PATCH("/subkeys/:id/revoke", subkeyHandler.Revoke)
	ownerRoutes.PUT("/credential", vaultHandler.Set)
	ownerRoutes.GET("/credential", vaultHandler.Get)
	ownerRoutes.DELETE("/credential", vaultHandler.Delete)
	ownerRoutes.GET("/logs", auditHandler.List)

	return nil
}
