package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syncroom/server/internal/protocol"
	"github.com/syncroom/server/internal/repository/connection"
)

func (c controller) generateTimeBasedId() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), c.generator.GenerateRandomString(6))
}

// broadcast fans the message out to every recipient. Sends are
// fire-and-forget; a connection that vanished mid-fan-out is skipped.
func (c controller) broadcast(ctx context.Context, recipients []string, out *protocol.Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	for _, connectionId := range recipients {
		if err := c.connRepo.Send(connectionId, data); err != nil {
			if !errors.Is(err, connection.ErrNotFound) {
				c.logger.WarnContext(ctx, "failed to send to conn", "connection_id", connectionId, "error", err)
			}
		}
	}

	return nil
}

// send writes one message to one connection through the same ordered
// per-connection queue the broadcasts use.
func (c controller) send(ctx context.Context, connectionId string, out *protocol.Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if err := c.connRepo.Send(connectionId, data); err != nil {
		return fmt.Errorf("failed to send to conn: %w", err)
	}

	return nil
}
