package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gamecatalog/backend/internal/digest"
	"gamecatalog/backend/internal/models"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 25 * time.Second

// UpcomingResponse lists the games the next digest would contain.
type UpcomingResponse struct {
	HorizonDays int                `json:"horizonDays" example:"7"`
	State       string             `json:"state" example:"idle"`
	Running     bool               `json:"running"`
	Games       []models.VideoGame `json:"games"`
}

// PreviewDigest godoc
// @Summary      Preview the next digest
// @Description  Lists the games releasing within the digest horizon, without sending anything.
// @Tags         digest
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} UpcomingResponse
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Router       /digest/upcoming [get]
func (h *Handler) PreviewDigest(c *gin.Context) {
	games, err := h.job.Preview(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if games == nil {
		games = []models.VideoGame{}
	}
	c.JSON(http.StatusOK, UpcomingResponse{
		HorizonDays: h.job.Config().HorizonDays,
		State:       h.job.State().String(),
		Running:     h.job.Running(),
		Games:       games,
	})
}

// RunDigest godoc
// @Summary      Send the digest now
// @Description  Runs the digest synchronously and returns its report. Per-recipient failures are listed in the report.
// @Tags         digest
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} digest.Report
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Failure      409 {object} ErrorResponse "A run is already in progress"
// @Failure      500 {object} digest.Report "The run failed or was aborted"
// @Router       /digest/run [post]
func (h *Handler) RunDigest(c *gin.Context) {
	// The run outlives a dropped connection; MaxDuration still bounds it.
	report, err := h.job.Run(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, digest.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case err != nil && report == nil:
		h.respondError(c, err)
	case err != nil:
		h.log.Error().Err(err).Str("outcome", string(report.Outcome)).Msg("on-demand digest run did not complete")
		c.JSON(http.StatusInternalServerError, report)
	default:
		c.JSON(http.StatusOK, report)
	}
}

// StreamDigestEvents godoc
// @Summary      Follow digest runs
// @Description  Server-sent events: one "digest" event per run event, JSON encoded.
// @Tags         digest
// @Produce      text/event-stream
// @Security     BearerAuth
// @Success      200 {object} digest.Event
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Router       /digest/events [get]
func (h *Handler) StreamDigestEvents(c *gin.Context) {
	client := h.hub.Subscribe()
	defer h.hub.Unsubscribe(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-client:
			if !ok {
				return
			}
			c.SSEvent("digest", string(message))
			c.Writer.Flush()
		case <-heartbeat.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
