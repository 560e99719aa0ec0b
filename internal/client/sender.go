package client

import (
	"time"

	"github.com/syncroom/server/internal/protocol"
)

// RoomSender adapts a connection to the upstream command surface the host's
// seek detector drives. All commands target one room.
type RoomSender struct {
	client *Client
	roomId string
}

func NewRoomSender(c *Client, roomId string) *RoomSender {
	return &RoomSender{client: c, roomId: roomId}
}

func (s *RoomSender) SendPlay(position float64, timestamp time.Time) error {
	return s.client.Send(protocol.TypePlay, protocol.PlayInput{
		RoomId:    s.roomId,
		Position:  position,
		Timestamp: timestamp.UnixMilli(),
	})
}

func (s *RoomSender) SendPause(position float64) error {
	return s.client.Send(protocol.TypePause, protocol.PauseInput{
		RoomId:   s.roomId,
		Position: position,
	})
}

func (s *RoomSender) SendSeek(position float64) error {
	return s.client.Send(protocol.TypeSeek, protocol.SeekInput{
		RoomId:   s.roomId,
		Position: position,
	})
}

func (s *RoomSender) SendStateChange(position float64, isPlaying bool) error {
	return s.client.Send(protocol.TypeStateChange, protocol.StateChangeInput{
		RoomId:    s.roomId,
		Position:  position,
		IsPlaying: isPlaying,
	})
}
