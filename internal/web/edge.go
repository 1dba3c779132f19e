package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sweeney/hazard-sentinel/internal/actuator"
	"github.com/sweeney/hazard-sentinel/internal/adc"
	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/metrics"
	"github.com/sweeney/hazard-sentinel/internal/pulse"
	"github.com/sweeney/hazard-sentinel/internal/status"
)

// Actuators is the subset of the actuator controller the edge exposes.
type Actuators interface {
	Pulse(ctx context.Context, out actuator.Output, d time.Duration) error
	SetLevel(ctx context.Context, out actuator.Output, level actuator.Level) error
}

// Ranger measures distance in centimetres.
type Ranger interface {
	Measure(ctx context.Context) (float64, error)
}

// EdgeConfig wires the edge's HTTP surface. Ranger, Level, Gatherer and
// Metrics may be nil.
type EdgeConfig struct {
	Tracker     *status.Tracker
	Actuators   Actuators
	Ranger      Ranger
	BuzzerPulse time.Duration
	// Level is read on every /get_data for hazard_value. Without it the
	// latest analog sensor reading is reported.
	Level        adc.Reader
	LevelChannel int
	// Limiter throttles /control_buzzer.
	Limiter  *rate.Limiter
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

type edgeHandler struct {
	cfg EdgeConfig
	log *zap.Logger
}

type ledRequest struct {
	State string `json:"state" binding:"required"`
}

// NewEdge creates the edge node's HTTP server.
func NewEdge(addr string, cfg EdgeConfig) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	h := &edgeHandler{cfg: cfg, log: log}

	router := newRouter(log)
	router.GET("/", h.statusPage)
	router.GET("/status", h.statusPage)
	router.GET("/status.json", h.statusJSON)
	router.GET("/get_data", h.getData)
	router.POST("/control_buzzer", h.controlBuzzer)
	router.POST("/control_led", h.controlLED)
	router.GET("/metrics", metricsHandler(cfg.Gatherer))

	return newServer(addr, router)
}

func (h *edgeHandler) statusPage(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := renderHTML(c.Writer, h.cfg.Tracker.Snapshot()); err != nil {
		h.log.Error("render status page", zap.Error(err))
	}
}

func (h *edgeHandler) statusJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(h.cfg.Tracker.Snapshot()))
}

// getData measures distance now and reports the latest hazard verdicts.
// A failed measurement is reported as a null distance.
func (h *edgeHandler) getData(c *gin.Context) {
	var r dispatch.Readings

	if h.cfg.Ranger != nil {
		d, err := h.cfg.Ranger.Measure(c.Request.Context())
		switch {
		case err == nil:
			r.DistanceCM = &d
			h.cfg.Metrics.Distance(d, true)
			h.cfg.Tracker.SetDistance(d, time.Now())
		case errors.Is(err, pulse.ErrMeasurementTimeout):
			h.cfg.Metrics.Distance(0, false)
		default:
			h.log.Warn("distance measurement failed", zap.Error(err))
		}
	}

	snap := h.cfg.Tracker.Snapshot()
	r.HazardDetected = snap.HazardDetected()
	r.Hazards = snap.Hazards()
	if h.cfg.Level != nil {
		if raw, err := h.cfg.Level.Read(h.cfg.LevelChannel); err == nil {
			v := float64(raw)
			r.HazardValue = &v
		} else {
			h.log.Warn("gas level read failed", zap.Error(err))
		}
	} else if v, ok := snap.AnalogValue(); ok {
		r.HazardValue = &v
	}
	c.JSON(http.StatusOK, r)
}

// controlBuzzer sounds the buzzer for the configured pulse and responds once
// it has gone quiet again.
func (h *edgeHandler) controlBuzzer(c *gin.Context) {
	if !h.cfg.Limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "buzzer recently activated"})
		return
	}
	if err := h.cfg.Actuators.Pulse(c.Request.Context(), actuator.Buzzer, h.cfg.BuzzerPulse); err != nil {
		h.log.Error("remote buzzer pulse failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "buzzer failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "buzzer activated"})
}

func (h *edgeHandler) controlLED(c *gin.Context) {
	var req ledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: state must be on or off"})
		return
	}
	level, err := actuator.ParseLevel(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: state must be on or off"})
		return
	}
	if err := h.cfg.Actuators.SetLevel(c.Request.Context(), actuator.LED, level); err != nil {
		h.log.Error("remote LED change failed", zap.String("state", string(level)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "led failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "LED turned " + string(level)})
}
