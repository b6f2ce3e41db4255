// Package handler implements the REST endpoints of the catalog API.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/internal/digest"
	"gamecatalog/backend/internal/hub"
	"gamecatalog/backend/internal/storage"
	"gamecatalog/backend/pkg/apperror"
)

// Handler holds the services the endpoints delegate to.
type Handler struct {
	store     *catalog.Store
	covers    *storage.Covers
	job       *digest.Job
	hub       *hub.Hub
	jwtSecret string
	location  *time.Location
	log       zerolog.Logger
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Store     *catalog.Store
	Covers    *storage.Covers
	Job       *digest.Job
	Hub       *hub.Hub
	JWTSecret string
	// Location interprets date-only release dates.
	Location *time.Location
	Logger   zerolog.Logger
}

func New(deps Deps) *Handler {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:     deps.Store,
		covers:    deps.Covers,
		job:       deps.Job,
		hub:       deps.Hub,
		jwtSecret: deps.JWTSecret,
		location:  loc,
		log:       deps.Logger.With().Str("component", "http").Logger(),
	}
}

// region --- Responses ---

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error  string            `json:"error" example:"An error message"`
	Fields map[string]string `json:"fields,omitempty"`
}

// MessageResponse is returned by endpoints that have nothing else to say.
type MessageResponse struct {
	Message string `json:"message" example:"Video game deleted"`
}

// respondError maps an error onto its HTTP status and body.
func (h *Handler) respondError(c *gin.Context, err error) {
	appErr := apperror.As(err)
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, ErrorResponse{Error: "Internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: appErr.Message, Fields: appErr.Fields})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// endregion

// region --- Params ---

// paramID parses the :id path parameter, answering 400 when it is invalid.
func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// endregion
