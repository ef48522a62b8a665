package actions

import (
	"context"
	"fmt"

	"agentarena.ai/internal/bridge"
)

// entityRef matches an entity by username or by id.
func entityRef(target string) func(bridge.Entity) bool {
	return func(e bridge.Entity) bool {
		return e.Username == target || e.ID == target
	}
}

func attack(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	e, ok := sess.FindNearbyEntity(entityRef(req.Target))
	if !ok {
		return "", fmt.Errorf("Target %q not found nearby", req.Target)
	}
	if err := sess.Attack(ctx, e); err != nil {
		return "", err
	}
	return "Attacked " + req.Target, nil
}

func equip(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	for _, it := range sess.Inventory() {
		if it.Name != req.ItemName {
			continue
		}
		if err := sess.Equip(ctx, it, string(req.Destination)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Equipped %s to %s", req.ItemName, req.Destination), nil
	}
	return "", fmt.Errorf("Item %q not found in inventory", req.ItemName)
}
