package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentarena.ai/internal/bridge"
)

type moveTo struct {
	timeout   time.Duration
	tolerance float64
}

func (h moveTo) Execute(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	err := sess.MoveTowards(ctx, *req.Position, h.tolerance, h.timeout)
	if errors.Is(err, bridge.ErrMoveTimeout) {
		return "", fmt.Errorf("Movement timed out after %d seconds", int(h.timeout/time.Second))
	}
	if err != nil {
		return "", err
	}
	return "Reached position " + formatPos(*req.Position), nil
}

type jump struct {
	hold time.Duration
}

func (h jump) Execute(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	if err := sess.SetControlState(ctx, "jump", true); err != nil {
		return "", err
	}
	t := time.NewTimer(h.hold)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	// Release even if ctx ended so the agent does not keep hopping.
	if err := sess.SetControlState(context.WithoutCancel(ctx), "jump", false); err != nil {
		return "", err
	}
	return "Jumped", nil
}

// controlToggle serves sprint and sneak.
type controlToggle struct {
	flag  string
	label string
}

func (h controlToggle) Execute(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	on := *req.Enabled
	if err := sess.SetControlState(ctx, h.flag, on); err != nil {
		return "", err
	}
	if on {
		return h.label + " enabled", nil
	}
	return h.label + " disabled", nil
}

func lookAt(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	if err := sess.LookAt(ctx, *req.Position); err != nil {
		return "", err
	}
	return "Looking at " + formatPos(*req.Position), nil
}
