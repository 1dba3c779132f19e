package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
)

// Edge endpoints.
const (
	PathReadings = "/get_data"
	PathBuzzer   = "/control_buzzer"
	PathLED      = "/control_led"
)

// EdgeClient talks to an edge node's HTTP control surface.
type EdgeClient struct {
	client *resty.Client
}

// NewEdgeClient creates a client for the edge at baseURL.
func NewEdgeClient(baseURL string, timeout time.Duration) *EdgeClient {
	return &EdgeClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Readings fetches the edge's current sensor view.
func (e *EdgeClient) Readings(ctx context.Context) (dispatch.Readings, error) {
	var r dispatch.Readings
	resp, err := e.client.R().
		SetContext(ctx).
		SetResult(&r).
		Get(PathReadings)
	if err != nil {
		return dispatch.Readings{}, fmt.Errorf("get readings: %w", err)
	}
	if resp.IsError() {
		return dispatch.Readings{}, fmt.Errorf("get readings: edge returned %s", resp.Status())
	}
	return r, nil
}

// PulseBuzzer asks the edge to sound its buzzer for its configured pulse.
func (e *EdgeClient) PulseBuzzer(ctx context.Context) error {
	return e.post(ctx, PathBuzzer, nil)
}

// SetLED switches the edge's LED.
func (e *EdgeClient) SetLED(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	return e.post(ctx, PathLED, map[string]string{"state": state})
}

func (e *EdgeClient) post(ctx context.Context, path string, body any) error {
	req := e.client.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post %s: edge returned %s", path, resp.Status())
	}
	return nil
}

// EdgeControl drives the edge's buzzer and LED as a notification channel:
// LED and buzzer on when an episode starts, LED off when it ends. The LED
// goes first since /control_buzzer only answers once the pulse is over.
type EdgeControl struct {
	Edge interface {
		PulseBuzzer(ctx context.Context) error
		SetLED(ctx context.Context, on bool) error
	}
}

func (c *EdgeControl) Name() string { return "edge" }

func (c *EdgeControl) Notify(ctx context.Context, _ Alert) error {
	led := c.Edge.SetLED(ctx, true)
	return errors.Join(led, c.Edge.PulseBuzzer(ctx))
}

func (c *EdgeControl) Clear(ctx context.Context, _ string) error {
	return c.Edge.SetLED(ctx, false)
}
