package room

import (
	"context"

	"github.com/google/uuid"

	"github.com/syncroom/server/internal/protocol"
	"github.com/syncroom/server/internal/repository/room"
)

func (s *service) queueSnapshot(rm *room.Room) []protocol.QueueItem {
	queue := make([]protocol.QueueItem, 0, len(rm.Queue))
	for _, item := range rm.Queue {
		queue = append(queue, protocol.QueueItem{
			Id:        item.Id,
			VideoId:   item.VideoId,
			Title:     item.Title,
			AddedById: item.AddedById,
		})
	}

	return queue
}

type AddToQueueParams struct {
	SenderId string
	RoomId   string
	VideoId  string
	Title    string
}

type AddToQueueResponse struct {
	Recipients []string
	Event      protocol.QueueUpdatedEvent
}

// AddToQueue appends a pending video. Any member may queue; only the host
// may remove.
func (s *service) AddToQueue(ctx context.Context, params *AddToQueueParams) (AddToQueueResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return AddToQueueResponse{}, err
	}
	if _, ok := rm.Users[params.SenderId]; !ok {
		return AddToQueueResponse{}, ErrUserNotFound
	}

	item := room.QueueItem{
		Id:        uuid.NewString(),
		VideoId:   params.VideoId,
		Title:     params.Title,
		AddedById: params.SenderId,
	}
	rm.Queue = append(rm.Queue, item)

	added := protocol.QueueItem{
		Id:        item.Id,
		VideoId:   item.VideoId,
		Title:     item.Title,
		AddedById: item.AddedById,
	}

	return AddToQueueResponse{
		Recipients: s.recipients(rm, ""),
		Event: protocol.QueueUpdatedEvent{
			AddedItem: &added,
			Queue:     s.queueSnapshot(rm),
		},
	}, nil
}

type RemoveFromQueueParams struct {
	SenderId string
	RoomId   string
	ItemId   string
}

type RemoveFromQueueResponse struct {
	Recipients []string
	Event      protocol.QueueUpdatedEvent
}

func (s *service) RemoveFromQueue(ctx context.Context, params *RemoveFromQueueParams) (RemoveFromQueueResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return RemoveFromQueueResponse{}, err
	}
	if err := s.checkIfHost(rm, params.SenderId); err != nil {
		return RemoveFromQueueResponse{}, err
	}

	found := false
	for i, item := range rm.Queue {
		if item.Id == params.ItemId {
			rm.Queue = append(rm.Queue[:i], rm.Queue[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return RemoveFromQueueResponse{}, ErrQueueItemNotFound
	}

	return RemoveFromQueueResponse{
		Recipients: s.recipients(rm, ""),
		Event: protocol.QueueUpdatedEvent{
			Queue: s.queueSnapshot(rm),
		},
	}, nil
}
