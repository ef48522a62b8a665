package actions

import (
	"context"
	"fmt"

	"agentarena.ai/internal/bridge"
)

func dig(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	pos := *req.Position
	b, ok := sess.BlockAt(pos)
	if !ok {
		return "", fmt.Errorf("No block at %s", formatPos(pos))
	}
	if b.Name == "air" {
		return "", fmt.Errorf("Cannot dig air")
	}
	if err := sess.Dig(ctx, b); err != nil {
		return "", err
	}
	return fmt.Sprintf("Dug %s at %s", b.Name, formatPos(pos)), nil
}

func placeBlock(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	pos := *req.Position
	ref, ok := sess.BlockAt(pos)
	if !ok {
		return "", fmt.Errorf("No reference block at %s", formatPos(pos))
	}
	face, _ := req.Face.Vector()
	if err := sess.Place(ctx, ref, face); err != nil {
		return "", err
	}
	return fmt.Sprintf("Placed block against %s face at %s", req.Face, formatPos(pos)), nil
}
