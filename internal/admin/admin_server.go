package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	watchdog "smart-watchdog/internal/core"
)

// Watchdog 는 관리자 API 가 읽고 조작하는 코어 인터페이스다.
type Watchdog interface {
	Snapshot() watchdog.Status
	SnapshotEvents(limit int) []watchdog.Event
	SetTimeout(value int) error
	Ping() error
}

// RunServer 는 ctx 가 끝날 때까지 관리자 API 를 제공한다.
func RunServer(ctx context.Context, adminCfg Config, w Watchdog, logger *slog.Logger) error {
	if err := adminCfg.ValidateForEnable(); err != nil {
		return err
	}

	allowlist, err := newIPAllowlist(adminCfg.AllowedIPs)
	if err != nil {
		return fmt.Errorf("admin allowed ips invalid: %w", err)
	}
	if allowlist == nil {
		return fmt.Errorf("WATCHDOG_ADMIN_ALLOWED_IPS is required")
	}

	router := setupRouter(adminCfg, w, logger, allowlist)

	handler := http.Handler(router)
	if adminCfg.UseH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := buildHTTPServer(adminCfg, handler)
	return runServerLifecycle(ctx, server, adminCfg, logger)
}

func setupRouter(adminCfg Config, w Watchdog, logger *slog.Logger, allowlist *ipAllowlist) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// allowlist 는 소켓 상대 주소만 본다.
	_ = router.SetTrustedProxies(nil)

	router.GET("/health", func(c *gin.Context) {
		noCacheHeaders(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.Use(allowlist.middleware())

	var apiMiddlewares []gin.HandlerFunc
	if strings.TrimSpace(adminCfg.JWTSecret) != "" {
		apiMiddlewares = append(apiMiddlewares, newBearerVerifier(adminCfg.JWTSecret, adminCfg.JWTIssuer).middleware())
		logger.Info("admin_jwt_enabled")
	} else {
		logger.Debug("admin_jwt_disabled")
	}

	registerAdminAPIRoutes(router, w, logger, apiMiddlewares...)

	router.NoRoute(func(c *gin.Context) {
		writeAPIError(c, http.StatusNotFound, "not_found", "no such route")
	})
	return router
}

func buildHTTPServer(adminCfg Config, handler http.Handler) *http.Server {
	server := &http.Server{
		Addr:              adminCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: adminCfg.ReadHeaderTimeout,
		IdleTimeout:       adminCfg.IdleTimeout,
	}
	if !adminCfg.UseH2C {
		server.ReadTimeout = adminCfg.ReadTimeout
		server.WriteTimeout = adminCfg.WriteTimeout
	}
	return server
}

func runServerLifecycle(ctx context.Context, server *http.Server, adminCfg Config, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin_server_start", "addr", adminCfg.Addr, "h2c", adminCfg.UseH2C)
		err := server.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownTimeout := adminCfg.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin_server_shutdown_failed", "err", err)
		} else {
			logger.Info("admin_server_shutdown_ok")
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin server failed: %w", err)
		}
		return nil
	}
}
