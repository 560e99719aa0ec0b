package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncroom/server/internal/protocol"
	"github.com/syncroom/server/internal/repository/room"
	"github.com/syncroom/server/internal/repository/session"
)

type JoinRoomParams struct {
	ConnectionId string
	RoomId       string
	Username     string
	SessionToken string
}

type JoinRoomResponse struct {
	RoomState  protocol.RoomState
	JoinedUser protocol.User
	// Others lists every member except the joiner; All includes the joiner.
	Others      []string
	All         []string
	HostChanged bool
	NewHostId   string
	// CourtesyPlay is set when the room is mid-playback, so the joiner's
	// drift corrector can anchor immediately instead of waiting for the
	// next host update.
	CourtesyPlay *protocol.PlayEvent
}

// JoinRoom applies the join precedence rules: unknown room creates one with
// the joiner as host; a matching host session token reclaims host status; an
// empty room makes the joiner a fresh host; otherwise the joiner is a viewer.
func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	resp, record, err := s.joinRoomLocked(ctx, params)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	s.recordSessions(ctx, record)

	return resp, nil
}

func (s *service) joinRoomLocked(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, *session.SetSessionParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionToken := params.SessionToken
	if sessionToken == "" {
		sessionToken = params.ConnectionId
	}

	isHost := false
	rm, err := s.roomRepo.Get(ctx, params.RoomId)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		isHost = true
		rm = &room.Room{
			Id:               params.RoomId,
			HostConnectionId: params.ConnectionId,
			HostSessionToken: sessionToken,
			Users:            make(map[string]room.User),
			VideoState: room.VideoState{
				LastUpdate: s.clock.Now(),
			},
		}
		if err := s.roomRepo.Set(ctx, rm); err != nil {
			return JoinRoomResponse{}, nil, fmt.Errorf("failed to create room: %w", err)
		}
	case err != nil:
		return JoinRoomResponse{}, nil, fmt.Errorf("failed to get room: %w", err)
	case params.SessionToken != "" && params.SessionToken == rm.HostSessionToken:
		// returning original host reclaims authority from the interim host
		isHost = true
		if prev := rm.HostConnectionId; prev != params.ConnectionId {
			if u, ok := rm.Users[prev]; ok {
				u.IsHost = false
				rm.Users[prev] = u
			}
		}
		rm.HostConnectionId = params.ConnectionId
	case len(rm.Users) == 0:
		// everyone left but the room survived a race with teardown; the
		// fresh joiner takes over and the reclaim token moves with them
		isHost = true
		rm.HostConnectionId = params.ConnectionId
		rm.HostSessionToken = sessionToken
	}

	rm.Users[params.ConnectionId] = room.User{
		ConnectionId: params.ConnectionId,
		Username:     params.Username,
		SessionToken: sessionToken,
		IsHost:       isHost,
	}

	var record *session.SetSessionParams
	if params.SessionToken != "" {
		record = &session.SetSessionParams{
			Token:  params.SessionToken,
			RoomId: params.RoomId,
			IsHost: isHost,
		}
	}

	resp := JoinRoomResponse{
		RoomState: s.snapshot(rm),
		JoinedUser: protocol.User{
			Id:       params.ConnectionId,
			Username: params.Username,
			IsHost:   isHost,
		},
		Others:      s.recipients(rm, params.ConnectionId),
		All:         s.recipients(rm, ""),
		HostChanged: isHost,
		NewHostId:   params.ConnectionId,
	}

	if rm.VideoState.IsPlaying && rm.VideoState.VideoId != nil {
		resp.CourtesyPlay = &protocol.PlayEvent{
			Position:  rm.VideoState.CurrentTime,
			Timestamp: rm.VideoState.LastUpdate.UnixMilli(),
		}
	}

	return resp, record, nil
}

// recordSessions writes session directory records outside the room lock. The
// directory is a reconnect hint: a slow or failed write must never stall
// message processing for other rooms, so failures are logged and dropped.
func (s *service) recordSessions(ctx context.Context, records ...*session.SetSessionParams) {
	for _, record := range records {
		if record == nil {
			continue
		}
		if err := s.sessionRepo.SetSession(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "failed to record session", "error", err)
		}
	}
}

type DisconnectParams struct {
	ConnectionId string
}

type DisconnectEvent struct {
	RoomId           string
	LeftConnectionId string
	RoomDeleted      bool
	Recipients       []string
	HostChanged      bool
	NewHostId        string
}

type DisconnectResponse struct {
	Events []DisconnectEvent
}

// Disconnect removes the connection from every room containing it. A
// departing host hands authority to an arbitrary remaining member without
// touching HostSessionToken, so the original host can reclaim later.
func (s *service) Disconnect(ctx context.Context, params *DisconnectParams) (DisconnectResponse, error) {
	resp, records, err := s.disconnectLocked(ctx, params)
	if err != nil {
		return DisconnectResponse{}, err
	}

	s.recordSessions(ctx, records...)

	return resp, nil
}

func (s *service) disconnectLocked(ctx context.Context, params *DisconnectParams) (DisconnectResponse, []*session.SetSessionParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []*room.Room
	if err := s.roomRepo.ForEach(ctx, func(rm *room.Room) error {
		if _, ok := rm.Users[params.ConnectionId]; ok {
			affected = append(affected, rm)
		}
		return nil
	}); err != nil {
		return DisconnectResponse{}, nil, fmt.Errorf("failed to scan rooms: %w", err)
	}

	var records []*session.SetSessionParams
	events := make([]DisconnectEvent, 0, len(affected))
	for _, rm := range affected {
		delete(rm.Users, params.ConnectionId)

		event := DisconnectEvent{
			RoomId:           rm.Id,
			LeftConnectionId: params.ConnectionId,
		}

		if rm.HostConnectionId == params.ConnectionId && len(rm.Users) > 0 {
			for connectionId, u := range rm.Users {
				u.IsHost = true
				rm.Users[connectionId] = u
				rm.HostConnectionId = connectionId

				records = append(records, &session.SetSessionParams{
					Token:  u.SessionToken,
					RoomId: rm.Id,
					IsHost: true,
				})
				break
			}
			event.HostChanged = true
			event.NewHostId = rm.HostConnectionId
		}

		if len(rm.Users) == 0 {
			if err := s.roomRepo.Delete(ctx, rm.Id); err != nil {
				s.logger.WarnContext(ctx, "failed to delete room", "error", err)
			}
			s.dropLimiter(rm.Id)
			event.RoomDeleted = true
		} else {
			event.Recipients = s.recipients(rm, "")
		}

		events = append(events, event)
	}

	return DisconnectResponse{Events: events}, records, nil
}
