package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/syncroom/server/internal/service/room"
)

const roomCodeLength = 8

func (c controller) createRoomCode(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, r, http.StatusOK, map[string]string{
		"room_id": c.generator.GenerateRandomString(roomCodeLength),
	})
}

func (c controller) getSession(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	sessionResp, err := c.roomService.GetSession(r.Context(), token)
	if err != nil {
		if errors.Is(err, room.ErrSessionNotFound) {
			c.writeJSON(w, r, http.StatusNotFound, map[string]string{
				"error": "session not found",
			})
			return
		}

		c.logger.WarnContext(r.Context(), "failed to get session", "error", err)
		c.writeJSON(w, r, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
		return
	}

	c.writeJSON(w, r, http.StatusOK, map[string]any{
		"room_id": sessionResp.RoomId,
		"is_host": sessionResp.IsHost,
	})
}

func (c controller) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.DebugContext(r.Context(), "failed to write response", "error", err)
	}
}
