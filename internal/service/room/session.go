package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncroom/server/internal/repository/session"
)

var ErrSessionNotFound = errors.New("session not found")

type GetSessionResponse struct {
	RoomId string
	IsHost bool
}

// GetSession resolves a durable session token to the room it last joined
// and whether it held host status there, letting a reconnecting client find
// its way back before re-joining.
func (s *service) GetSession(ctx context.Context, token string) (GetSessionResponse, error) {
	sess, err := s.sessionRepo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return GetSessionResponse{}, ErrSessionNotFound
		}
		return GetSessionResponse{}, fmt.Errorf("failed to get session: %w", err)
	}

	return GetSessionResponse{
		RoomId: sess.RoomId,
		IsHost: sess.IsHost,
	}, nil
}
