package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syncroom/server/internal/protocol"
	"github.com/syncroom/server/internal/service/room"
	"github.com/syncroom/server/pkg/ctxlogger"
)

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	connectionId := uuid.NewString()
	if err := c.connRepo.Add(conn, connectionId); err != nil {
		c.logger.WarnContext(r.Context(), "failed to register conn", "error", err)
		conn.Close()
		return
	}

	ctx := context.WithValue(r.Context(), connectionIdCtxKey, connectionId)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("connection_id", connectionId))

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "conn closed", "error", err)
	}

	c.disconnect(ctx, connectionId)
}

func (c controller) disconnect(ctx context.Context, connectionId string) {
	resp, err := c.roomService.Disconnect(ctx, &room.DisconnectParams{ConnectionId: connectionId})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to disconnect", "error", err)
	}

	for _, event := range resp.Events {
		if event.RoomDeleted {
			continue
		}

		if event.HostChanged {
			c.broadcast(ctx, event.Recipients, &protocol.Output{
				Type:    protocol.TypeHostChanged,
				Payload: protocol.HostChangedEvent{NewHostId: event.NewHostId},
			})
		}

		c.broadcast(ctx, event.Recipients, &protocol.Output{
			Type:    protocol.TypeUserLeft,
			Payload: protocol.UserLeftEvent{ConnectionId: event.LeftConnectionId},
		})
	}

	if err := c.connRepo.Remove(connectionId); err != nil {
		c.logger.DebugContext(ctx, "failed to remove conn", "error", err)
	}
}

// dropSilently swallows authority violations and races with room teardown:
// the sender gets nothing back, by design.
func (c controller) dropSilently(ctx context.Context, err error) error {
	if errors.Is(err, room.ErrPermissionDenied) ||
		errors.Is(err, room.ErrRoomNotFound) ||
		errors.Is(err, room.ErrUserNotFound) {
		c.logger.DebugContext(ctx, "message dropped", "reason", err)
		return nil
	}

	return err
}

func (c controller) rejectInvalid(ctx context.Context, input any) (bool, error) {
	validationErrors, ok := c.validate.Validate(input)
	if ok {
		return false, nil
	}

	connectionId := c.getConnectionIdFromCtx(ctx)
	return true, c.send(ctx, connectionId, &protocol.Output{
		Type:    protocol.TypeError,
		Payload: validationErrors,
	})
}

func (c controller) handleJoinRoom(ctx context.Context, _ *websocket.Conn, input protocol.JoinRoomInput) error {
	if rejected, err := c.rejectInvalid(ctx, input); rejected {
		return err
	}

	connectionId := c.getConnectionIdFromCtx(ctx)
	joinRoomResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		ConnectionId: connectionId,
		RoomId:       input.RoomId,
		Username:     input.Username,
		SessionToken: input.SessionToken,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	if err := c.send(ctx, connectionId, &protocol.Output{
		Type:    protocol.TypeRoomState,
		Payload: joinRoomResp.RoomState,
	}); err != nil {
		return fmt.Errorf("failed to send room state: %w", err)
	}

	if err := c.broadcast(ctx, joinRoomResp.Others, &protocol.Output{
		Type:    protocol.TypeUserJoined,
		Payload: protocol.UserJoinedEvent{User: joinRoomResp.JoinedUser},
	}); err != nil {
		return fmt.Errorf("failed to broadcast user joined: %w", err)
	}

	if joinRoomResp.HostChanged {
		if err := c.broadcast(ctx, joinRoomResp.All, &protocol.Output{
			Type:    protocol.TypeHostChanged,
			Payload: protocol.HostChangedEvent{NewHostId: joinRoomResp.NewHostId},
		}); err != nil {
			return fmt.Errorf("failed to broadcast host changed: %w", err)
		}
	}

	if joinRoomResp.CourtesyPlay != nil {
		if err := c.send(ctx, connectionId, &protocol.Output{
			Type:    protocol.TypePlay,
			Payload: *joinRoomResp.CourtesyPlay,
		}); err != nil {
			return fmt.Errorf("failed to send courtesy play: %w", err)
		}
	}

	return nil
}

func (c controller) handleStateChange(ctx context.Context, _ *websocket.Conn, input protocol.StateChangeInput) error {
	updateStateResp, err := c.roomService.UpdateState(ctx, &room.UpdateStateParams{
		SenderId:  c.getConnectionIdFromCtx(ctx),
		RoomId:    input.RoomId,
		Position:  input.Position,
		IsPlaying: input.IsPlaying,
	})
	if err != nil {
		return c.dropSilently(ctx, err)
	}

	if !updateStateResp.Broadcast {
		return nil
	}

	if err := c.broadcast(ctx, updateStateResp.Recipients, &protocol.Output{
		Type:    protocol.TypeSyncVideo,
		Payload: updateStateResp.State,
	}); err != nil {
		return fmt.Errorf("failed to broadcast sync video: %w", err)
	}

	return nil
}

func (c controller) handlePlay(ctx context.Context, _ *websocket.Conn, input protocol.PlayInput) error {
	var capturedAt time.Time
	if input.Timestamp != 0 {
		capturedAt = time.UnixMilli(input.Timestamp)
	}

	playResp, err := c.roomService.Play(ctx, &room.PlayParams{
		SenderId:  c.getConnectionIdFromCtx(ctx),
		RoomId:    input.RoomId,
		Position:  input.Position,
		Timestamp: capturedAt,
	})
	if err != nil {
		return c.dropSilently(ctx, err)
	}

	if err := c.broadcast(ctx, playResp.Recipients, &protocol.Output{
		Type:    protocol.TypePlay,
		Payload: playResp.Event,
	}); err != nil {
		return fmt.Errorf("failed to broadcast play: %w", err)
	}

	return nil
}

func (c controller) handlePause(ctx context.Context, _ *websocket.Conn, input protocol.PauseInput) error {
	pauseResp, err := c.roomService.Pause(ctx, &room.PauseParams{
		SenderId: c.getConnectionIdFromCtx(ctx),
		RoomId:   input.RoomId,
		Position: input.Position,
	})
	if err != nil {
		return c.dropSilently(ctx, err)
	}

	if err := c.broadcast(ctx, pauseResp.Recipients, &protocol.Output{
		Type:    protocol.TypePause,
		Payload: pauseResp.Event,
	}); err != nil {
		return fmt.Errorf("failed to broadcast pause: %w", err)
	}

	return nil
}

func (c controller) handleSeek(ctx context.Context, _ *websocket.Conn, input protocol.SeekInput) error {
	seekResp, err := c.roomService.Seek(ctx, &room.SeekParams{
		SenderId: c.getConnectionIdFromCtx(ctx),
		RoomId:   input.RoomId,
		Position: input.Position,
	})
	if err != nil {
		return c.dropSilently(ctx, err)
	}

	if err := c.broadcast(ctx, seekResp.Recipients, &protocol.Output{
		Type:    protocol.TypeSeek,
		Payload: seekResp.Event,
	}); err != nil {
		return fmt.Errorf("failed to broadcast seek: %w", err)
	}

	return nil
}

func (c controller) handleChangeVideo(ctx context.Context, _ *websocket.Conn, input protocol.ChangeVideoInput) error {
	if rejected, err := c.rejectInvalid(ctx, input); rejected {
		return err
	}

	changeVideoResp, err := c.roomService.ChangeVideo(ctx, &room.ChangeVideoParams{
		SenderId: c.getConnectionIdFromCtx(ctx),
		RoomId:   input.RoomId,
		VideoId:  input.VideoId,
	})
	if err != nil {
		return c.dropSilently(ctx, err)
	}

	if err := c.broadcast(ctx, changeVideoResp.Recipients, &protocol.Output{
		Type:    protocol.TypeVideoChanged,
		Payload: changeVideoResp.Event,
	}); err != nil {
		return fmt.Errorf("failed to broadcast video changed: %w", err)
	}

	return nil
}

func (c controller) handleSendMessage(ctx context.Context, _ *websocket.Conn, input protocol.SendMessageInput) error {
	if rejected, err := c.rejectInvalid(ctx, input); rejected {
		return err
	}

	sendMessageResp, err := c.roomService.SendMessage(ctx, &room.SendMessageParams{
		SenderId: c.getConnectionIdFromCtx(ctx),
		RoomId:   input.RoomId,
		Message:  input.Message,
	})
	if err != nil {
		return c.dropSilently(ctx, err)
	}

	if err := c.broadcast(ctx, sendMessageResp.Recipients, &protocol.Output{
		Type:    protocol.TypeNewMessage,
		Payload: sendMessageResp.Event,
	}); err != nil {
		return fmt.Errorf("failed to broadcast new message: %w", err)
	}

	return nil
}

func (c controller) handleAddToQueue(ctx context.Context, _ *websocket.Conn, input protocol.AddToQueueInput) error {
	if rejected, err := c.rejectInvalid(ctx, input); rejected {
		return err
	}

	addToQueueResp, err := c.roomService.AddToQueue(ctx, &room.AddToQueueParams{
		SenderId: c.getConnectionIdFromCtx(ctx),
		RoomId:   input.RoomId,
		VideoId:  input.VideoId,
		Title:    input.Title,
	})
	if err != nil {
		return c.dropSilently(ctx, err)
	}

	if err := c.broadcast(ctx, addToQueueResp.Recipients, &protocol.Output{
		Type:    protocol.TypeQueueUpdated,
		Payload: addToQueueResp.Event,
	}); err != nil {
		return fmt.Errorf("failed to broadcast queue updated: %w", err)
	}

	return nil
}

func (c controller) handleRemoveFromQueue(ctx context.Context, _ *websocket.Conn, input protocol.RemoveFromQueueInput) error {
	removeFromQueueResp, err := c.roomService.RemoveFromQueue(ctx, &room.RemoveFromQueueParams{
		SenderId: c.getConnectionIdFromCtx(ctx),
		RoomId:   input.RoomId,
		ItemId:   input.ItemId,
	})
	if err != nil {
		if errors.Is(err, room.ErrQueueItemNotFound) {
			c.logger.DebugContext(ctx, "message dropped", "reason", err)
			return nil
		}
		return c.dropSilently(ctx, err)
	}

	if err := c.broadcast(ctx, removeFromQueueResp.Recipients, &protocol.Output{
		Type:    protocol.TypeQueueUpdated,
		Payload: removeFromQueueResp.Event,
	}); err != nil {
		return fmt.Errorf("failed to broadcast queue updated: %w", err)
	}

	return nil
}
