package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sweeney/hazard-sentinel/internal/metrics"
)

// TelemetryPath is the observer endpoint for distance reports.
const TelemetryPath = "/update_distance"

// Config bounds delivery. Attempts counts the first try.
type Config struct {
	BaseURL        string
	Attempts       int
	RetryWait      time.Duration
	RetryMaxWait   time.Duration
	AttemptTimeout time.Duration
}

// Dispatcher posts alerts to the observer.
type Dispatcher struct {
	alerts    *resty.Client
	telemetry *resty.Client
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a dispatcher. m may be nil.
func New(cfg Config, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}

	alerts := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.AttemptTimeout).
		SetRetryCount(cfg.Attempts-1).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(retryable)

	// Telemetry is periodic, so a lost report is simply superseded by the next.
	telemetry := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.AttemptTimeout).
		SetHeader("Content-Type", "application/json")

	return &Dispatcher{
		alerts:    alerts,
		telemetry: telemetry,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// retryable retries transport errors, server errors and throttling.
func retryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
}

// Send delivers ev, retrying within the configured budget. It never returns
// an error; the caller decides what to do with a failed Result.
func (d *Dispatcher) Send(ctx context.Context, ev AlertEvent) Result {
	start := d.now()

	resp, err := d.alerts.R().
		SetContext(ctx).
		SetBody(ev).
		Post(ev.Path())

	attempts := 1
	if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
		attempts = resp.Request.Attempt
	}

	var res Result
	switch {
	case err != nil:
		res = Failed(attempts, reason(err))
	case resp.IsError():
		res = Failed(attempts, fmt.Sprintf("observer returned %s", resp.Status()))
	default:
		res = Delivered(attempts)
	}

	d.metrics.DispatchAttempts(ev.Hazard, res.Attempts)
	d.metrics.DispatchResult(ev.Hazard, res.Delivered, d.now().Sub(start).Seconds())

	if res.Delivered {
		d.log.Info("alert delivered",
			zap.String("event_id", ev.ID),
			zap.String("sensor", ev.SensorID),
			zap.Int("attempts", res.Attempts),
		)
	} else {
		d.log.Warn("alert delivery failed",
			zap.String("event_id", ev.ID),
			zap.String("sensor", ev.SensorID),
			zap.Int("attempts", res.Attempts),
			zap.String("reason", res.Reason),
		)
	}
	return res
}

func reason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline exceeded"
	}
	return err.Error()
}

// SendTelemetry posts one distance report with a single attempt.
func (d *Dispatcher) SendTelemetry(ctx context.Context, t Telemetry) error {
	resp, err := d.telemetry.R().
		SetContext(ctx).
		SetBody(t).
		Post(TelemetryPath)
	if err != nil {
		return fmt.Errorf("post telemetry: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post telemetry: observer returned %s", resp.Status())
	}
	return nil
}
