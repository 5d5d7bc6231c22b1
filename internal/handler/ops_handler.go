package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/flightwx-scheduler/internal/dto"
	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/internal/service"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
	"github.com/noah-isme/flightwx-scheduler/pkg/response"
)

type weatherChecker interface {
	CheckFlightWeather(ctx context.Context, bookingID string) (*dto.FlightWeatherCheck, error)
	CheckUpcomingFlights(ctx context.Context) (*dto.SweepSummary, error)
	CheckAllFlights(ctx context.Context) (*dto.SweepSummary, error)
}

type weatherCheckHistory interface {
	ListByBooking(ctx context.Context, bookingID string, limit int) ([]models.WeatherCheckLog, error)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// OpsHandler exposes the sweeper's operational endpoints.
type OpsHandler struct {
	checks  weatherChecker
	history weatherCheckHistory
	db      pinger
	metrics *service.MetricsService
}

// NewOpsHandler constructs an ops handler.
func NewOpsHandler(checks weatherChecker, history weatherCheckHistory, db pinger, metrics *service.MetricsService) *OpsHandler {
	return &OpsHandler{checks: checks, history: history, db: db, metrics: metrics}
}

// Register mounts the ops routes on r.
func (h *OpsHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/summary", h.Summary)
	r.POST("/sweeps", h.TriggerSweep)
	r.POST("/bookings/:id/weather-check", h.CheckBooking)
	r.GET("/bookings/:id/weather-checks", h.History)
}

// Health responds with a generic OK payload for liveness probes.
func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database is reachable.
func (h *OpsHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *OpsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary returns aggregated counters as JSON.
func (h *OpsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}

// TriggerSweep runs a sweep now. scope=all uses the interactive horizon.
func (h *OpsHandler) TriggerSweep(c *gin.Context) {
	var (
		summary *dto.SweepSummary
		err     error
	)
	switch c.DefaultQuery("scope", service.SweepModeUpcoming) {
	case service.SweepModeUpcoming:
		summary, err = h.checks.CheckUpcomingFlights(c.Request.Context())
	case service.SweepModeAll:
		summary, err = h.checks.CheckAllFlights(c.Request.Context())
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "scope must be upcoming or all"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// CheckBooking evaluates a single booking.
func (h *OpsHandler) CheckBooking(c *gin.Context) {
	result, err := h.checks.CheckFlightWeather(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// History lists recent weather checks for a booking.
func (h *OpsHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	entries, err := h.history.ListByBooking(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to list weather checks"))
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}
