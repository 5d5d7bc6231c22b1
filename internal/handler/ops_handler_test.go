package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flightwx-scheduler/internal/dto"
	"github.com/noah-isme/flightwx-scheduler/internal/middleware"
	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/internal/service"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
)

type weatherCheckerStub struct {
	upcoming int
	all      int
	checkErr error
}

func (s *weatherCheckerStub) CheckFlightWeather(ctx context.Context, bookingID string) (*dto.FlightWeatherCheck, error) {
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return &dto.FlightWeatherCheck{BookingID: bookingID, Status: models.BookingStatusAtRisk}, nil
}

func (s *weatherCheckerStub) CheckUpcomingFlights(ctx context.Context) (*dto.SweepSummary, error) {
	s.upcoming++
	return &dto.SweepSummary{RunID: "run-1", Checked: 2}, nil
}

func (s *weatherCheckerStub) CheckAllFlights(ctx context.Context) (*dto.SweepSummary, error) {
	s.all++
	return &dto.SweepSummary{RunID: "run-2", Checked: 5}, nil
}

type historyStub struct {
	limit int
}

func (s *historyStub) ListByBooking(ctx context.Context, bookingID string, limit int) ([]models.WeatherCheckLog, error) {
	s.limit = limit
	return []models.WeatherCheckLog{{ID: "log-1", BookingID: bookingID}}, nil
}

type pingerStub struct {
	err error
}

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func newOpsRouter(checks *weatherCheckerStub, history *historyStub, db pinger, metrics *service.MetricsService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Metrics(metrics))
	NewOpsHandler(checks, history, db, metrics).Register(r)
	return r
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestOpsHandlerReady(t *testing.T) {
	r := newOpsRouter(&weatherCheckerStub{}, &historyStub{}, pingerStub{}, nil)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ready").Code)

	r = newOpsRouter(&weatherCheckerStub{}, &historyStub{}, pingerStub{err: errors.New("connection refused")}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/ready").Code)
}

func TestOpsHandlerTriggerSweep(t *testing.T) {
	checks := &weatherCheckerStub{}
	r := newOpsRouter(checks, &historyStub{}, nil, nil)

	w := serve(r, http.MethodPost, "/sweeps")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, checks.upcoming)

	w = serve(r, http.MethodPost, "/sweeps?scope=all")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, checks.all)

	var body struct {
		Data dto.SweepSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-2", body.Data.RunID)
	assert.Equal(t, 5, body.Data.Checked)

	w = serve(r, http.MethodPost, "/sweeps?scope=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpsHandlerCheckBookingMapsErrors(t *testing.T) {
	checks := &weatherCheckerStub{checkErr: appErrors.Upstream(errors.New("timeout"), "weather provider unavailable")}
	r := newOpsRouter(checks, &historyStub{}, nil, nil)

	w := serve(r, http.MethodPost, "/bookings/b1/weather-check")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrUpstream.Code)
}

func TestOpsHandlerHistory(t *testing.T) {
	history := &historyStub{}
	r := newOpsRouter(&weatherCheckerStub{}, history, nil, nil)

	w := serve(r, http.MethodGet, "/bookings/b1/weather-checks?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, history.limit)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = serve(r, http.MethodGet, "/bookings/b1/weather-checks?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpsHandlerMetrics(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newOpsRouter(&weatherCheckerStub{}, &historyStub{}, nil, metrics)

	serve(r, http.MethodGet, "/health")
	w := serve(r, http.MethodGet, "/metrics/summary")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requests_total":1`)

	w = serve(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
