package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syncroom/server/internal/protocol"
	"github.com/syncroom/server/internal/repository/room"
)

func (s *service) getRoom(ctx context.Context, roomId string) (*room.Room, error) {
	rm, err := s.roomRepo.Get(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return rm, nil
}

type UpdateStateParams struct {
	SenderId  string
	RoomId    string
	Position  float64
	IsPlaying bool
}

type UpdateStateResponse struct {
	Recipients []string
	State      protocol.VideoState
	// Broadcast is false when the per-room interval coalesced this update.
	// The checkpoint is refreshed either way.
	Broadcast bool
}

func (s *service) UpdateState(ctx context.Context, params *UpdateStateParams) (UpdateStateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return UpdateStateResponse{}, err
	}
	if err := s.checkIfHost(rm, params.SenderId); err != nil {
		return UpdateStateResponse{}, err
	}

	rm.VideoState.CurrentTime = params.Position
	rm.VideoState.IsPlaying = params.IsPlaying
	rm.VideoState.LastUpdate = s.clock.Now()

	return UpdateStateResponse{
		Recipients: s.recipients(rm, params.SenderId),
		State: protocol.VideoState{
			VideoId:     rm.VideoState.VideoId,
			IsPlaying:   rm.VideoState.IsPlaying,
			CurrentTime: rm.VideoState.CurrentTime,
			LastUpdate:  rm.VideoState.LastUpdate.UnixMilli(),
		},
		Broadcast: s.allowBroadcast(params.RoomId),
	}, nil
}

type PlayParams struct {
	SenderId string
	RoomId   string
	Position float64
	// Timestamp is the instant the host captured Position, not the arrival
	// time; viewers need it to compute drift. Zero falls back to now.
	Timestamp time.Time
}

type PlayResponse struct {
	Recipients []string
	Event      protocol.PlayEvent
}

func (s *service) Play(ctx context.Context, params *PlayParams) (PlayResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return PlayResponse{}, err
	}
	if err := s.checkIfHost(rm, params.SenderId); err != nil {
		return PlayResponse{}, err
	}

	capturedAt := params.Timestamp
	if capturedAt.IsZero() {
		capturedAt = s.clock.Now()
	}

	rm.VideoState.IsPlaying = true
	rm.VideoState.CurrentTime = params.Position
	rm.VideoState.LastUpdate = capturedAt

	return PlayResponse{
		Recipients: s.recipients(rm, params.SenderId),
		Event: protocol.PlayEvent{
			Position:  params.Position,
			Timestamp: capturedAt.UnixMilli(),
		},
	}, nil
}

type PauseParams struct {
	SenderId string
	RoomId   string
	Position float64
}

type PauseResponse struct {
	Recipients []string
	Event      protocol.PauseEvent
}

func (s *service) Pause(ctx context.Context, params *PauseParams) (PauseResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return PauseResponse{}, err
	}
	if err := s.checkIfHost(rm, params.SenderId); err != nil {
		return PauseResponse{}, err
	}

	rm.VideoState.IsPlaying = false
	rm.VideoState.CurrentTime = params.Position
	rm.VideoState.LastUpdate = s.clock.Now()

	return PauseResponse{
		Recipients: s.recipients(rm, params.SenderId),
		Event:      protocol.PauseEvent{Position: params.Position},
	}, nil
}

type SeekParams struct {
	SenderId string
	RoomId   string
	Position float64
}

type SeekResponse struct {
	Recipients []string
	Event      protocol.SeekEvent
}

func (s *service) Seek(ctx context.Context, params *SeekParams) (SeekResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return SeekResponse{}, err
	}
	if err := s.checkIfHost(rm, params.SenderId); err != nil {
		return SeekResponse{}, err
	}

	rm.VideoState.CurrentTime = params.Position
	rm.VideoState.LastUpdate = s.clock.Now()

	return SeekResponse{
		Recipients: s.recipients(rm, params.SenderId),
		Event:      protocol.SeekEvent{Position: params.Position},
	}, nil
}

type ChangeVideoParams struct {
	SenderId string
	RoomId   string
	VideoId  string
}

type ChangeVideoResponse struct {
	// Recipients includes the sender: every session of every member loads
	// the new video.
	Recipients []string
	Event      protocol.VideoChangedEvent
}

func (s *service) ChangeVideo(ctx context.Context, params *ChangeVideoParams) (ChangeVideoResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, err := s.getRoom(ctx, params.RoomId)
	if err != nil {
		return ChangeVideoResponse{}, err
	}
	if err := s.checkIfHost(rm, params.SenderId); err != nil {
		return ChangeVideoResponse{}, err
	}

	videoId := params.VideoId
	rm.VideoState.VideoId = &videoId
	rm.VideoState.CurrentTime = 0
	rm.VideoState.IsPlaying = false
	rm.VideoState.LastUpdate = s.clock.Now()

	return ChangeVideoResponse{
		Recipients: s.recipients(rm, ""),
		Event:      protocol.VideoChangedEvent{VideoId: params.VideoId},
	}, nil
}
