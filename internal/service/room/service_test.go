package room

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	roomInmemory "github.com/syncroom/server/internal/repository/room/inmemory"
	"github.com/syncroom/server/internal/repository/session"
	sessionInmemory "github.com/syncroom/server/internal/repository/session/inmemory"
)

func newTestService(t *testing.T) (*service, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	return NewService(
		roomInmemory.NewRepo(),
		sessionInmemory.NewRepo(),
		clock,
		slog.Default(),
		&Config{BroadcastInterval: 200 * time.Millisecond},
	), clock
}

func TestFirstJoinerBecomesHost(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	joinResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	assert.True(t, joinResp.JoinedUser.IsHost, "first joiner must be host")
	assert.Equal(t, "conn-1", joinResp.RoomState.HostId)
	assert.Len(t, joinResp.RoomState.Users, 1)
	assert.Empty(t, joinResp.Others, "nobody to notify in a fresh room")

	join2Resp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)
	assert.False(t, join2Resp.JoinedUser.IsHost, "second joiner must be viewer")
	assert.Equal(t, "conn-1", join2Resp.RoomState.HostId, "host must not change")
	assert.Equal(t, []string{"conn-1"}, join2Resp.Others)
	assert.Len(t, join2Resp.RoomState.Users, 2)
}

func TestHostHandoffKeepsSessionToken(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)

	disconnectResp, err := s.Disconnect(ctx, &DisconnectParams{ConnectionId: "conn-1"})
	require.NoError(t, err)
	require.Len(t, disconnectResp.Events, 1)
	event := disconnectResp.Events[0]
	assert.True(t, event.HostChanged)
	assert.Equal(t, "conn-2", event.NewHostId)
	assert.False(t, event.RoomDeleted)

	rm, err := s.roomRepo.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "conn-2", rm.HostConnectionId)
	assert.Equal(t, "token-alice", rm.HostSessionToken, "reclaim token must survive handoff")
	assert.True(t, rm.Users["conn-2"].IsHost)
}

func TestOriginalHostReclaimsAfterHandoffs(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-3",
		RoomId:       "room-1",
		Username:     "carol",
		SessionToken: "token-carol",
	})
	require.NoError(t, err)

	// host leaves twice, authority bouncing among the remaining members
	_, err = s.Disconnect(ctx, &DisconnectParams{ConnectionId: "conn-1"})
	require.NoError(t, err)
	rm, err := s.roomRepo.Get(ctx, "room-1")
	require.NoError(t, err)
	_, err = s.Disconnect(ctx, &DisconnectParams{ConnectionId: rm.HostConnectionId})
	require.NoError(t, err)

	joinResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1b",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	assert.True(t, joinResp.JoinedUser.IsHost, "original token must reclaim host")
	assert.True(t, joinResp.HostChanged)
	assert.Equal(t, "conn-1b", joinResp.NewHostId)

	rm, err = s.roomRepo.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "conn-1b", rm.HostConnectionId)
	for connectionId, u := range rm.Users {
		if connectionId == "conn-1b" {
			continue
		}
		assert.False(t, u.IsHost, "interim host must be demoted")
	}
}

func TestEmptyRoomDeletedAndRecreatedFresh(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)

	disconnectResp, err := s.Disconnect(ctx, &DisconnectParams{ConnectionId: "conn-1"})
	require.NoError(t, err)
	require.Len(t, disconnectResp.Events, 1)
	assert.True(t, disconnectResp.Events[0].RoomDeleted)

	// a viewer-grade token recreates the room and becomes host of a
	// fresh one, with a new reclaim token
	joinResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)
	assert.True(t, joinResp.JoinedUser.IsHost)

	rm, err := s.roomRepo.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "token-bob", rm.HostSessionToken)
}

func TestNonHostMutationsAreDenied(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)

	_, err = s.ChangeVideo(ctx, &ChangeVideoParams{
		SenderId: "conn-2",
		RoomId:   "room-1",
		VideoId:  "vid-1",
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.Play(ctx, &PlayParams{SenderId: "conn-2", RoomId: "room-1", Position: 10})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = s.Pause(ctx, &PauseParams{SenderId: "conn-2", RoomId: "room-1", Position: 10})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = s.Seek(ctx, &SeekParams{SenderId: "conn-2", RoomId: "room-1", Position: 10})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = s.UpdateState(ctx, &UpdateStateParams{SenderId: "conn-2", RoomId: "room-1", Position: 10, IsPlaying: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	rm, err := s.roomRepo.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, rm.VideoState.VideoId, "denied change-video must not mutate state")
	assert.False(t, rm.VideoState.IsPlaying)
	assert.Equal(t, float64(0), rm.VideoState.CurrentTime)

	// the host succeeds with the identical request
	clock.Advance(time.Second)
	_, err = s.ChangeVideo(ctx, &ChangeVideoParams{SenderId: "conn-1", RoomId: "room-1", VideoId: "vid-1"})
	require.NoError(t, err)
}

func TestSnapshotExtrapolatesWhilePlaying(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()

	joinResp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	assert.False(t, joinResp.RoomState.VideoState.IsPlaying)

	_, err = s.ChangeVideo(ctx, &ChangeVideoParams{SenderId: "conn-1", RoomId: "room-1", VideoId: "vid-1"})
	require.NoError(t, err)
	_, err = s.Play(ctx, &PlayParams{SenderId: "conn-1", RoomId: "room-1", Position: 10})
	require.NoError(t, err)

	clock.Advance(5 * time.Second)

	join2Resp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)
	assert.True(t, join2Resp.RoomState.VideoState.IsPlaying)
	assert.InDelta(t, 15.0, join2Resp.RoomState.VideoState.CurrentTime, 0.01, "position must extrapolate to checkpoint plus elapsed")

	require.NotNil(t, join2Resp.CourtesyPlay, "mid-playback join must prime the drift corrector")
	assert.Equal(t, 10.0, join2Resp.CourtesyPlay.Position)
	assert.Equal(t, clock.Now().Add(-5*time.Second).UnixMilli(), join2Resp.CourtesyPlay.Timestamp)

	// paused rooms report the checkpoint as-is
	_, err = s.Pause(ctx, &PauseParams{SenderId: "conn-1", RoomId: "room-1", Position: 15})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	join3Resp, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-3",
		RoomId:       "room-1",
		Username:     "carol",
		SessionToken: "token-carol",
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, join3Resp.RoomState.VideoState.CurrentTime)
	assert.Nil(t, join3Resp.CourtesyPlay)
}

func TestPlayCarriesCaptureTimestamp(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)

	capturedAt := clock.Now().Add(-300 * time.Millisecond)
	playResp, err := s.Play(ctx, &PlayParams{
		SenderId:  "conn-1",
		RoomId:    "room-1",
		Position:  42,
		Timestamp: capturedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, playResp.Event.Position)
	assert.Equal(t, capturedAt.UnixMilli(), playResp.Event.Timestamp, "event must carry the capture instant, not arrival time")

	// zero timestamp falls back to the arrival instant
	play2Resp, err := s.Play(ctx, &PlayParams{SenderId: "conn-1", RoomId: "room-1", Position: 50})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UnixMilli(), play2Resp.Event.Timestamp)
}

func TestStateChangeBroadcastsAreCoalesced(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)

	firstResp, err := s.UpdateState(ctx, &UpdateStateParams{SenderId: "conn-1", RoomId: "room-1", Position: 1, IsPlaying: true})
	require.NoError(t, err)
	assert.True(t, firstResp.Broadcast)
	assert.Equal(t, []string{"conn-2"}, firstResp.Recipients)

	// a burst inside the interval refreshes the checkpoint silently
	secondResp, err := s.UpdateState(ctx, &UpdateStateParams{SenderId: "conn-1", RoomId: "room-1", Position: 1.1, IsPlaying: true})
	require.NoError(t, err)
	assert.False(t, secondResp.Broadcast)

	rm, err := s.roomRepo.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1.1, rm.VideoState.CurrentTime, "coalesced update must still refresh the checkpoint")

	clock.Advance(250 * time.Millisecond)
	thirdResp, err := s.UpdateState(ctx, &UpdateStateParams{SenderId: "conn-1", RoomId: "room-1", Position: 1.35, IsPlaying: true})
	require.NoError(t, err)
	assert.True(t, thirdResp.Broadcast, "broadcasts resume once the interval has passed")
}

func TestChangeVideoResetsStateForEveryone(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)

	_, err = s.Play(ctx, &PlayParams{SenderId: "conn-1", RoomId: "room-1", Position: 100})
	require.NoError(t, err)

	changeVideoResp, err := s.ChangeVideo(ctx, &ChangeVideoParams{SenderId: "conn-1", RoomId: "room-1", VideoId: "vid-2"})
	require.NoError(t, err)
	assert.Equal(t, "vid-2", changeVideoResp.Event.VideoId)
	assert.Len(t, changeVideoResp.Recipients, 2, "sender reloads the video too")

	rm, err := s.roomRepo.Get(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, rm.VideoState.VideoId)
	assert.Equal(t, "vid-2", *rm.VideoState.VideoId)
	assert.False(t, rm.VideoState.IsPlaying)
	assert.Equal(t, float64(0), rm.VideoState.CurrentTime)
}

func TestChatAndQueue(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-2",
		RoomId:       "room-1",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)

	// chat is open to every member
	sendMessageResp, err := s.SendMessage(ctx, &SendMessageParams{SenderId: "conn-2", RoomId: "room-1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "bob", sendMessageResp.Event.Username)
	assert.Equal(t, "hi", sendMessageResp.Event.Message)
	assert.NotEmpty(t, sendMessageResp.Event.Id)
	assert.Len(t, sendMessageResp.Recipients, 2)

	_, err = s.SendMessage(ctx, &SendMessageParams{SenderId: "conn-9", RoomId: "room-1", Message: "hi"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	// any member queues, only the host removes
	addResp, err := s.AddToQueue(ctx, &AddToQueueParams{SenderId: "conn-2", RoomId: "room-1", VideoId: "vid-9", Title: "next up"})
	require.NoError(t, err)
	require.NotNil(t, addResp.Event.AddedItem)
	assert.Equal(t, "vid-9", addResp.Event.AddedItem.VideoId)
	assert.Equal(t, "conn-2", addResp.Event.AddedItem.AddedById)
	assert.Len(t, addResp.Event.Queue, 1)

	_, err = s.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderId: "conn-2", RoomId: "room-1", ItemId: addResp.Event.AddedItem.Id})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderId: "conn-1", RoomId: "room-1", ItemId: "nope"})
	assert.ErrorIs(t, err, ErrQueueItemNotFound)

	removeResp, err := s.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderId: "conn-1", RoomId: "room-1", ItemId: addResp.Event.AddedItem.Id})
	require.NoError(t, err)
	assert.Empty(t, removeResp.Event.Queue)
}

// blockingSessionRepo simulates a slow session backend: once armed, every
// SetSession signals entry and parks until released.
type blockingSessionRepo struct {
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newBlockingSessionRepo() *blockingSessionRepo {
	return &blockingSessionRepo{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (r *blockingSessionRepo) SetSession(context.Context, *session.SetSessionParams) error {
	if r.armed.Load() {
		r.entered <- struct{}{}
		<-r.release
	}
	return nil
}

func (r *blockingSessionRepo) GetSession(context.Context, string) (session.Session, error) {
	return session.Session{}, session.ErrSessionNotFound
}

func TestSlowSessionWriteDoesNotStallOtherRooms(t *testing.T) {
	sessionRepo := newBlockingSessionRepo()
	clock := clockwork.NewFakeClock()
	s := NewService(
		roomInmemory.NewRepo(),
		sessionRepo,
		clock,
		slog.Default(),
		&Config{BroadcastInterval: 200 * time.Millisecond},
	)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-b",
		RoomId:       "room-b",
		Username:     "bob",
		SessionToken: "token-bob",
	})
	require.NoError(t, err)

	// room-a's join parks inside its session write
	sessionRepo.armed.Store(true)
	joinDone := make(chan error, 1)
	go func() {
		_, err := s.JoinRoom(ctx, &JoinRoomParams{
			ConnectionId: "conn-a",
			RoomId:       "room-a",
			Username:     "alice",
			SessionToken: "token-alice",
		})
		joinDone <- err
	}()

	select {
	case <-sessionRepo.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the session write to start")
	}

	// room-b keeps processing while room-a's session write is stuck
	playDone := make(chan error, 1)
	go func() {
		_, err := s.Play(ctx, &PlayParams{SenderId: "conn-b", RoomId: "room-b", Position: 10})
		playDone <- err
	}()
	select {
	case err := <-playDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("play on an unrelated room stalled behind a session write")
	}

	sessionRepo.armed.Store(false)
	close(sessionRepo.release)
	require.NoError(t, <-joinDone)
}

func TestGetSessionResolvesToken(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.JoinRoom(ctx, &JoinRoomParams{
		ConnectionId: "conn-1",
		RoomId:       "room-1",
		Username:     "alice",
		SessionToken: "token-alice",
	})
	require.NoError(t, err)

	sessionResp, err := s.GetSession(ctx, "token-alice")
	require.NoError(t, err)
	assert.Equal(t, "room-1", sessionResp.RoomId)
	assert.True(t, sessionResp.IsHost)

	_, err = s.GetSession(ctx, "token-unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
