package actions

import (
	"context"
	"fmt"

	"agentarena.ai/internal/bridge"
)

func useItem(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	if err := sess.ActivateItem(ctx); err != nil {
		return "", err
	}
	return "Used held item", nil
}

// openContainer opens and immediately closes the container; only the
// interaction itself is observed.
func openContainer(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	pos := *req.Position
	b, ok := sess.BlockAt(pos)
	if !ok {
		return "", fmt.Errorf("No block at %s", formatPos(pos))
	}
	name, err := sess.OpenContainer(ctx, b)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = b.Name
	}
	return fmt.Sprintf("Opened container (%s) at %s", name, formatPos(pos)), nil
}

func interactEntity(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	e, ok := sess.FindNearbyEntity(entityRef(req.Target))
	if !ok {
		return "", fmt.Errorf("Entity %q not found nearby", req.Target)
	}
	if err := sess.Interact(ctx, e); err != nil {
		return "", err
	}
	return "Interacted with " + req.Target, nil
}
