package actions

import (
	"context"

	"agentarena.ai/internal/bridge"
)

func sendChat(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	if err := sess.Chat(ctx, req.Message); err != nil {
		return "", err
	}
	return `Sent chat: "` + req.Message + `"`, nil
}
