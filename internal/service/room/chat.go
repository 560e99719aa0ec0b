package room

import (
	"context"

	"github.com/google/uuid"

	"github.com/syncroom/server/internal/protocol"
)

type SendMessageParams struct {
	SenderId string
	RoomId   string
	Message  string
}

type SendMessageResponse struct {
	Recipients []string
	Event      protocol.NewMessageEvent
}

// SendMessage fans a chat message out to everyone in the room, sender
// included. Any member may send; only membership is checked.
func (s *service) SendMessage(ctx context.Context, params *SendMessageParams) (SendMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return SendMessageResponse{}, err
	}

	sender, ok := rm.Users[params.SenderId]
	if !ok {
		return SendMessageResponse{}, ErrUserNotFound
	}

	return SendMessageResponse{
		Recipients: s.recipients(rm, ""),
		Event: protocol.NewMessageEvent{
			Id:        uuid.NewString(),
			UserId:    params.SenderId,
			Username:  sender.Username,
			Message:   params.Message,
			Timestamp: s.clock.Now().UnixMilli(),
		},
	}, nil
}
