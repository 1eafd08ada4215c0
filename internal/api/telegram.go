package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/metrics"
	"github.com/yanbot/internal/telegram"
)

// handleTelegramUpdate authenticates a Bot API webhook delivery and queues it.
// The update is handled asynchronously so Telegram gets a fast 200.
func (s *Server) handleTelegramUpdate(c echo.Context) error {
	req := c.Request()

	if !secretMatches(req.Header.Get(telegramSecretHeader), s.deps.TransportSecret) {
		metrics.IncUpdate("forbidden")
		log.Warn().Str("remote_ip", c.RealIP()).Msg("Rejected Telegram update with bad secret")
		return c.JSON(http.StatusForbidden, errorBody("Forbidden"))
	}

	var u telegram.Update
	if err := json.NewDecoder(io.LimitReader(req.Body, maxCallbackBytes)).Decode(&u); err != nil {
		metrics.IncUpdate("invalid")
		log.Warn().Err(err).Msg("Rejected undecodable Telegram update")
		return c.JSON(http.StatusBadRequest, errorBody("Invalid update"))
	}

	if err := s.deps.Queue.Enqueue(req.Context(), u); err != nil {
		metrics.IncUpdate("enqueue_failed")
		log.Error().Err(err).Int64("update_id", u.UpdateID).Msg("Failed to queue Telegram update")
		return c.JSON(http.StatusServiceUnavailable, errorBody("Queue unavailable"))
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
