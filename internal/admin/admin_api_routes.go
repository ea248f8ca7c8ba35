package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	watchdog "smart-watchdog/internal/core"
)

type setTimeoutRequest struct {
	TimeoutSec *int   `json:"timeoutSec" binding:"required"`
	Reason     string `json:"reason"`
}

func registerAdminAPIRoutes(router *gin.Engine, w Watchdog, logger *slog.Logger, middlewares ...gin.HandlerFunc) {
	api := router.Group("/admin/api/v1", middlewares...)
	api.Use(noCacheHeaders)

	api.GET("/watchdog", handleGetStatus(w))
	api.GET("/watchdog/events", handleGetEvents(w))
	api.PUT("/watchdog/timeout", handleSetTimeout(w, logger))
	api.POST("/watchdog/keepalive", handleKeepAlive(w, logger))
}

func handleGetStatus(w Watchdog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"generatedAt": time.Now(),
			"watchdog":    w.Snapshot(),
		})
	}
}

func handleGetEvents(w Watchdog) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeAPIError(c, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}
		events := w.SnapshotEvents(limit)
		if events == nil {
			events = []watchdog.Event{}
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

func handleSetTimeout(w Watchdog, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setTimeoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, http.StatusBadRequest, "invalid_json", "timeoutSec is required")
			return
		}

		logger.Info("admin_action",
			"action", "set_timeout",
			"timeout_sec", *req.TimeoutSec,
			"admin", getAdminIdentity(c),
			"reason", strings.TrimSpace(req.Reason),
		)

		if err := w.SetTimeout(*req.TimeoutSec); err != nil {
			writeWatchdogError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"timeoutSec": *req.TimeoutSec,
		})
	}
}

func handleKeepAlive(w Watchdog, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := w.Ping(); err != nil {
			writeWatchdogError(c, err)
			return
		}
		snapshot := w.Snapshot()
		logger.Info("admin_action", "action", "keepalive", "admin", getAdminIdentity(c), "state", snapshot.State)
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"state":      snapshot.State,
			"timeLeftMs": snapshot.TimeLeftMs,
		})
	}
}

func writeWatchdogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, watchdog.ErrInvalidTimeout):
		writeAPIError(c, http.StatusBadRequest, "invalid_timeout", err.Error())
	case errors.Is(err, watchdog.ErrTripped):
		writeAPIError(c, http.StatusConflict, "tripped", err.Error())
	case errors.Is(err, watchdog.ErrDetached):
		writeAPIError(c, http.StatusServiceUnavailable, "detached", err.Error())
	default:
		writeAPIError(c, http.StatusInternalServerError, "internal", err.Error())
	}
}
