package api

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/capture"
	"github.com/yanbot/internal/ledger"
	"github.com/yanbot/internal/metrics"
	"github.com/yanbot/internal/rewrite"
)

// maxCallbackBytes caps the callback body read into memory.
const maxCallbackBytes = 1 << 20

// handleCallback correlates an agent result with its job and delivers the
// rendered message to the job's owner. A job is delivered at most once: the
// ledger's compare-and-set decides which of several duplicate callbacks wins.
func (s *Server) handleCallback(c echo.Context) error {
	req := c.Request()

	if !secretMatches(req.Header.Get(s.deps.CallbackHeader), s.deps.CallbackSecret) {
		metrics.IncCallback("forbidden")
		log.Warn().Str("remote_ip", c.RealIP()).Msg("Rejected callback with bad secret")
		return c.JSON(http.StatusForbidden, errorBody("Forbidden"))
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxCallbackBytes))
	if err != nil {
		metrics.IncCallback("invalid")
		return c.JSON(http.StatusBadRequest, errorBody("Unreadable body"))
	}

	capture.WriteBlob("callback", "json", body)

	payload, stats, err := decodeCallback(body, s.schema)
	if err != nil {
		metrics.IncCallback("invalid")
		log.Warn().Err(err).Int("bytes", len(body)).Msg("Rejected malformed callback")
		return c.JSON(http.StatusBadRequest, errorBody("Missing data"))
	}
	if stats.WasRepaired {
		log.Info().
			Strs("strategies", stats.Strategies).
			Int("original_bytes", stats.OriginalBytes).
			Int("repaired_bytes", stats.RepairedBytes).
			Msg("Repaired malformed callback body")
	}

	meta := payload.CallbackMetadata
	// The agent may have hung up by now; the result must still reach the user.
	ctx := context.WithoutCancel(req.Context())

	job, err := s.deps.Ledger.CompleteJob(ctx, meta.JobID, ledger.Result{ResultMarkdown: payload.ResultMarkdown})
	switch {
	case ledger.IsCorrelationMiss(err):
		metrics.IncCallback("not_found")
		log.Info().Err(err).Str("job_id", meta.JobID).Msg("Callback for unknown or completed job")
		return c.JSON(http.StatusNotFound, errorBody("Job not found"))
	case err != nil:
		metrics.IncCallback("error")
		log.Error().Err(err).Str("job_id", meta.JobID).Msg("Failed to complete job")
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	logger := log.With().Str("job_id", job.ID).Int64("user_id", job.UserID).Str("task_kind", job.Kind.String()).Logger()
	if meta.UserID != job.UserID {
		logger.Warn().Int64("payload_user_id", meta.UserID).Msg("Callback user_id differs from job owner; using owner")
	}
	if kind, _ := payload.Kind(); kind != job.Kind {
		logger.Warn().Str("payload_task_kind", kind.String()).Msg("Callback task kind differs from job; using job")
	}

	user, err := s.deps.Users.GetOrCreateUser(ctx, job.UserID)
	if err != nil {
		metrics.IncCallback("error")
		logger.Error().Err(err).Msg("Failed to load job owner")
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	content, err := s.deps.Renderer.Render(rewrite.WithJobID(ctx, job.ID), job.Kind, payload.ResultMarkdown, user)
	if err != nil {
		metrics.IncCallback("render_failed")
		logger.Error().Err(err).Msg("Failed to render result; user will not be notified")
		return c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}

	s.deps.Delivery.Send(ctx, job.UserID, content)

	metrics.IncCallback("ok")
	logger.Info().Msg("Callback processed")
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}
