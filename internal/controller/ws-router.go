package controller

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/syncroom/server/internal/protocol"
	"github.com/syncroom/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.loggerWSMw())
	mux.OnError(c.handleWSError)

	wsrouter.Handle(mux, protocol.TypeJoinRoom, c.handleJoinRoom)
	wsrouter.Handle(mux, protocol.TypeStateChange, c.handleStateChange)
	wsrouter.Handle(mux, protocol.TypePlay, c.handlePlay)
	wsrouter.Handle(mux, protocol.TypePause, c.handlePause)
	wsrouter.Handle(mux, protocol.TypeSeek, c.handleSeek)
	wsrouter.Handle(mux, protocol.TypeChangeVideo, c.handleChangeVideo)
	wsrouter.Handle(mux, protocol.TypeSendMessage, c.handleSendMessage)
	wsrouter.Handle(mux, protocol.TypeAddToQueue, c.handleAddToQueue)
	wsrouter.Handle(mux, protocol.TypeRemoveFromQueue, c.handleRemoveFromQueue)

	return mux
}

func (c controller) handleWSError(ctx context.Context, _ *websocket.Conn, err error) {
	c.logger.WarnContext(ctx, "failed to handle websocket message", "error", err)

	connectionId := c.getConnectionIdFromCtx(ctx)
	if connectionId == "" {
		return
	}

	sendErr := c.send(ctx, connectionId, &protocol.Output{
		Type:    protocol.TypeError,
		Payload: protocol.ErrorEvent{Message: "failed to process message"},
	})
	if sendErr != nil {
		c.logger.DebugContext(ctx, "failed to send error frame", "error", sendErr)
	}
}
