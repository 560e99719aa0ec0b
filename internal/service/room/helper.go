package room

import (
	"golang.org/x/time/rate"

	"github.com/syncroom/server/internal/protocol"
	"github.com/syncroom/server/internal/repository/room"
)

func (s *service) checkIfHost(rm *room.Room, senderId string) error {
	if rm.HostConnectionId != senderId {
		return ErrPermissionDenied
	}

	return nil
}

// recipients returns the connection ids of all room members except the
// excluded one. Pass "" to address everyone.
func (s *service) recipients(rm *room.Room, exclude string) []string {
	ids := make([]string, 0, len(rm.Users))
	for connectionId := range rm.Users {
		if connectionId == exclude {
			continue
		}
		ids = append(ids, connectionId)
	}

	return ids
}

// snapshot renders the room for the wire. While playing, the checkpoint is
// extrapolated so the reader gets a live position, not a stale one.
func (s *service) snapshot(rm *room.Room) protocol.RoomState {
	users := make([]protocol.User, 0, len(rm.Users))
	for _, u := range rm.Users {
		users = append(users, protocol.User{
			Id:       u.ConnectionId,
			Username: u.Username,
			IsHost:   u.IsHost,
		})
	}

	queue := make([]protocol.QueueItem, 0, len(rm.Queue))
	for _, item := range rm.Queue {
		queue = append(queue, protocol.QueueItem{
			Id:        item.Id,
			VideoId:   item.VideoId,
			Title:     item.Title,
			AddedById: item.AddedById,
		})
	}

	currentTime := rm.VideoState.CurrentTime
	if rm.VideoState.IsPlaying {
		currentTime += s.clock.Since(rm.VideoState.LastUpdate).Seconds()
	}

	return protocol.RoomState{
		Id:     rm.Id,
		HostId: rm.HostConnectionId,
		Users:  users,
		VideoState: protocol.VideoState{
			VideoId:     rm.VideoState.VideoId,
			IsPlaying:   rm.VideoState.IsPlaying,
			CurrentTime: currentTime,
			LastUpdate:  rm.VideoState.LastUpdate.UnixMilli(),
		},
		Queue: queue,
	}
}

func (s *service) allowBroadcast(roomId string) bool {
	if s.broadcastInterval <= 0 {
		return true
	}

	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	limiter, ok := s.limiters[roomId]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.broadcastInterval), 1)
		s.limiters[roomId] = limiter
	}

	return limiter.AllowN(s.clock.Now(), 1)
}

func (s *service) dropLimiter(roomId string) {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	delete(s.limiters, roomId)
}
