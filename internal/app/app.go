// Package app boots the credits API server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/careerpilot-app/credits-api/internal/auth"
	"github.com/careerpilot-app/credits-api/internal/config"
	"github.com/careerpilot-app/credits-api/internal/db"
	adminapi "github.com/careerpilot-app/credits-api/internal/http/api/admin"
	"github.com/careerpilot-app/credits-api/internal/http/api/front"
	"github.com/careerpilot-app/credits-api/internal/ledger"
	"github.com/careerpilot-app/credits-api/internal/ratelimit"
	internalsettings "github.com/careerpilot-app/credits-api/internal/settings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the HTTP API with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	internalsettings.Bind(conn)

	bootstrap := config.LoadBootstrapAdmin(configPath)
	if errSeed := EnsureBootstrapAdmin(conn, bootstrap.Username, bootstrap.Password); errSeed != nil {
		return errSeed
	}

	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	verifier, errVerifier := auth.NewVerifier(jwtConfig)
	if errVerifier != nil {
		return errVerifier
	}

	creditsConfig, errCredits := config.LoadCreditsConfig(configPath)
	if errCredits != nil {
		return errCredits
	}
	allowlist := ledger.NewAllowlist(creditsConfig.AdminEmails)
	ledgerSvc := ledger.New(conn, ledger.Config{
		SignupCredits: creditsConfig.SignupCredits,
		DailyGrant:    creditsConfig.DailyGrant,
		MaxCredits:    creditsConfig.MaxCredits,
	}, allowlist, nil)

	limiter := ratelimit.NewManager(nil, nil, nil)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	front.RegisterFrontRoutes(engine, ledgerSvc, verifier, limiter)
	adminapi.RegisterAdminRoutes(engine, conn, jwtConfig, ledgerSvc)

	if defaultPort <= 0 {
		defaultPort = 8318
	}
	addr := fmt.Sprintf(":%d", defaultPort)

	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting credits api on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}
	return nil
}
