package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/notify"
	"github.com/sweeney/hazard-sentinel/internal/status"
)

// Notifier is the observer's episode-aware notifier.
type Notifier interface {
	Detected(ctx context.Context, a notify.Alert) (bool, error)
	Status(ctx context.Context) (notify.Status, error)
}

// ObserverConfig wires the observer's HTTP surface. Gatherer may be nil.
type ObserverConfig struct {
	Node     string
	Notifier Notifier
	Tracker  *status.Tracker
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// ObserverStatusJSON is the observer's /status.json body.
type ObserverStatusJSON struct {
	Node          string          `json:"node"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	Episodes      map[string]bool `json:"episodes"`
	Notifications int             `json:"notifications"`
	LastAlert     *AlertJSON      `json:"last_alert,omitempty"`
	Distance      *DistanceJSON   `json:"distance,omitempty"`
}

// AlertJSON describes the alert that last triggered a notification.
type AlertJSON struct {
	Hazard     string   `json:"hazard"`
	SensorID   string   `json:"sensor_id,omitempty"`
	EventID    string   `json:"event_id,omitempty"`
	Source     string   `json:"source"`
	DistanceCM *float64 `json:"distance_cm,omitempty"`
	DetectedAt string   `json:"detected_at"`
}

// DistanceJSON is the last distance reported by the edge.
type DistanceJSON struct {
	CM         float64 `json:"cm"`
	MeasuredAt string  `json:"measured_at"`
}

type observerHandler struct {
	cfg ObserverConfig
	log *zap.Logger
	now func() time.Time
}

// NewObserver creates the observer node's HTTP server.
func NewObserver(addr string, cfg ObserverConfig) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &observerHandler{cfg: cfg, log: log, now: time.Now}

	router := newRouter(log)
	router.POST(dispatch.AlertPath(dispatch.HazardGas), h.alert(dispatch.HazardGas))
	router.POST(dispatch.AlertPath(dispatch.HazardIR), h.alert(dispatch.HazardIR))
	router.POST(dispatch.TelemetryPath, h.updateDistance)
	router.GET("/status.json", h.statusJSON)
	router.GET("/metrics", metricsHandler(cfg.Gatherer))

	return newServer(addr, router)
}

// alert accepts an edge's alert for hazard. Storage failures answer 503 so
// the edge retries.
func (h *observerHandler) alert(hazard string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev dispatch.AlertEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert body"})
			return
		}
		if ev.Hazard == "" {
			ev.Hazard = hazard
		}
		if ev.Hazard != hazard {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hazard does not match endpoint"})
			return
		}
		if ev.SensorID == "" {
			ev.SensorID = hazard
		}
		if ev.DetectedAt.IsZero() {
			ev.DetectedAt = h.now().UTC()
		}
		if ev.DistanceCM != nil {
			h.cfg.Tracker.SetDistance(*ev.DistanceCM, ev.DetectedAt)
		}

		notified, err := h.cfg.Notifier.Detected(c.Request.Context(), notify.FromEvent(ev))
		if err != nil {
			h.log.Error("alert not processed", zap.String("event_id", ev.ID), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert not processed"})
			return
		}
		h.log.Info("alert received",
			zap.String("hazard", ev.Hazard),
			zap.String("sensor", ev.SensorID),
			zap.String("event_id", ev.ID),
			zap.Bool("notified", notified),
		)
		c.JSON(http.StatusOK, gin.H{"status": "received", "notified": notified})
	}
}

func (h *observerHandler) updateDistance(c *gin.Context) {
	var t dispatch.Telemetry
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telemetry body"})
		return
	}
	if t.MeasuredAt.IsZero() {
		t.MeasuredAt = h.now().UTC()
	}
	h.cfg.Tracker.SetDistance(t.DistanceCM, t.MeasuredAt)
	h.log.Debug("distance updated", zap.Float64("distance_cm", t.DistanceCM))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *observerHandler) statusJSON(c *gin.Context) {
	st, err := h.cfg.Notifier.Status(c.Request.Context())
	if err != nil {
		h.log.Error("read notifier status", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "episode store unavailable"})
		return
	}
	snap := h.cfg.Tracker.Snapshot()

	out := ObserverStatusJSON{
		Node:          h.cfg.Node,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Episodes:      st.Active,
		Notifications: st.Notifications,
	}
	if a := st.LastAlert; a != nil {
		out.LastAlert = &AlertJSON{
			Hazard:     a.Hazard,
			SensorID:   a.SensorID,
			EventID:    a.EventID,
			Source:     a.Source,
			DistanceCM: a.DistanceCM,
			DetectedAt: a.DetectedAt.UTC().Format(time.RFC3339),
		}
	}
	if snap.DistanceCM != nil {
		out.Distance = &DistanceJSON{CM: *snap.DistanceCM, MeasuredAt: snap.DistanceAt.UTC().Format(time.RFC3339)}
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	c.Data(http.StatusOK, "application/json", data)
}
