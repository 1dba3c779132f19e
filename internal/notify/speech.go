package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// runFunc runs an external command to completion.
type runFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := bytes.TrimSpace(out); len(msg) > 0 {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Speech announces the hazard through a local text-to-speech command such
// as espeak. The message is passed as the last argument.
type Speech struct {
	command  string
	args     []string
	timeout  time.Duration
	messages map[string]string
	run      runFunc
}

// NewSpeech creates the speech channel.
func NewSpeech(command string, args []string, timeout time.Duration, messages map[string]string) *Speech {
	return &Speech{
		command:  command,
		args:     args,
		timeout:  timeout,
		messages: messages,
		run:      execRun,
	}
}

func (s *Speech) Name() string { return "speech" }

func (s *Speech) Notify(ctx context.Context, a Alert) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text := messageFor(s.messages, a.Hazard, "%s detected! Alert sent.")
	args := append(append([]string(nil), s.args...), text)
	if err := s.run(ctx, s.command, args...); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}
