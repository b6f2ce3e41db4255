package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
)

// region --- DTOs ---

// VideoGameInput is the body of a create request. Multipart requests use
// the same field names, with categories[] repeated and an optional
// coverImage file.
type VideoGameInput struct {
	Title       string `json:"title" example:"The Legend of Zelda"`
	ReleaseDate string `json:"releaseDate" example:"2026-10-23"`
	Editor      uint   `json:"editor" example:"1"`
	Categories  []uint `json:"categories" example:"1,2"`
}

// VideoGameUpdateInput is a partial update; absent fields are unchanged.
type VideoGameUpdateInput struct {
	Title       *string `json:"title" example:"The Legend of Zelda"`
	ReleaseDate *string `json:"releaseDate" example:"2026-10-23"`
	Editor      *uint   `json:"editor" example:"1"`
	Categories  []uint  `json:"categories" example:"1,2"`
}

// endregion

// region --- Input parsing ---

const coverField = "coverImage"

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// parseReleaseDate accepts RFC 3339 timestamps and plain dates, the latter
// at midnight in loc.
func parseReleaseDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, apperror.Validation("invalid input", map[string]string{
		"releaseDate": fmt.Sprintf("%q is not a date (YYYY-MM-DD or RFC 3339)", value),
	})
}

func parseIDs(field string, values []string) ([]uint, error) {
	ids := make([]uint, 0, len(values))
	for _, v := range values {
		for _, part := range splitCommaSeparated(v) {
			id, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return nil, apperror.Validation("invalid input", map[string]string{field: fmt.Sprintf("%q is not an id", part)})
			}
			ids = append(ids, uint(id))
		}
	}
	return ids, nil
}

func formCategories(c *gin.Context) ([]string, bool) {
	values, ok := c.GetPostFormArray("categories[]")
	more, okMore := c.GetPostFormArray("categories")
	return append(values, more...), ok || okMore
}

// coverFile returns the uploaded cover, or nil when none was sent.
func coverFile(c *gin.Context) (*multipart.FileHeader, error) {
	file, err := c.FormFile(coverField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	return file, err
}

func (h *Handler) bindVideoGameInput(c *gin.Context) (VideoGameInput, *multipart.FileHeader, error) {
	var input VideoGameInput
	if !isMultipart(c) {
		err := c.ShouldBindJSON(&input)
		return input, nil, err
	}

	input.Title = c.PostForm("title")
	input.ReleaseDate = c.PostForm("releaseDate")
	if editor := c.PostForm("editor"); editor != "" {
		ids, err := parseIDs("editor", []string{editor})
		if err != nil {
			return input, nil, err
		}
		if len(ids) > 0 {
			input.Editor = ids[0]
		}
	}
	values, _ := formCategories(c)
	ids, err := parseIDs("categories", values)
	if err != nil {
		return input, nil, err
	}
	input.Categories = ids

	file, err := coverFile(c)
	return input, file, err
}

func (h *Handler) bindVideoGameUpdate(c *gin.Context) (VideoGameUpdateInput, *multipart.FileHeader, error) {
	var input VideoGameUpdateInput
	if !isMultipart(c) {
		err := c.ShouldBindJSON(&input)
		return input, nil, err
	}

	if title, ok := c.GetPostForm("title"); ok {
		input.Title = &title
	}
	if date, ok := c.GetPostForm("releaseDate"); ok {
		input.ReleaseDate = &date
	}
	if editor, ok := c.GetPostForm("editor"); ok {
		ids, err := parseIDs("editor", []string{editor})
		if err != nil {
			return input, nil, err
		}
		id := uint(0)
		if len(ids) > 0 {
			id = ids[0]
		}
		input.Editor = &id
	}
	if values, ok := formCategories(c); ok {
		ids, err := parseIDs("categories", values)
		if err != nil {
			return input, nil, err
		}
		input.Categories = ids
	}

	file, err := coverFile(c)
	return input, file, err
}

func (h *Handler) saveCover(ctx context.Context, header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()
	return h.covers.Save(ctx, file)
}

func (h *Handler) discardCover(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := h.covers.Delete(ctx, name); err != nil {
		h.log.Warn().Err(err).Str("cover", name).Msg("failed to delete cover")
	}
}

// endregion

// region --- Handlers ---

// ListVideoGames godoc
// @Summary      List video games
// @Description  Retrieves a paginated list of games with their editor and categories.
// @Tags         video-games
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(5)
// @Success      200 {object} PaginatedResponse[models.VideoGame]
// @Failure      401 {object} ErrorResponse
// @Router       /video_games [get]
func (h *Handler) ListVideoGames(c *gin.Context) {
	page, limit := pageParams(c)
	response, err := Paginate(c.Request.Context(), page, limit, h.store.ListVideoGames, func(ctx context.Context) (int64, error) {
		return catalog.Count[models.VideoGame](ctx, h.store.DB())
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetVideoGame godoc
// @Summary      Get a single video game by ID
// @Tags         video-games
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Video game ID"
// @Success      200 {object} models.VideoGame
// @Failure      404 {object} ErrorResponse "Video game not found"
// @Router       /video_games/{id} [get]
func (h *Handler) GetVideoGame(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	game, err := h.store.GetVideoGame(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

// CreateVideoGame godoc
// @Summary      Create a new video game
// @Description  Accepts JSON, or multipart/form-data with an optional coverImage file.
// @Tags         video-games
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        input body VideoGameInput true "Video game"
// @Success      201 {object} models.VideoGame
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Failure      404 {object} ErrorResponse "Editor or category not found"
// @Router       /video_games [post]
func (h *Handler) CreateVideoGame(c *gin.Context) {
	input, cover, err := h.bindVideoGameInput(c)
	if err != nil {
		if apperror.Is(err, apperror.KindValidation) {
			h.respondError(c, err)
			return
		}
		badRequest(c, err)
		return
	}
	releaseDate, err := parseReleaseDate(input.ReleaseDate, h.location)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	draft := catalog.VideoGameDraft{
		Title:       input.Title,
		ReleaseDate: releaseDate,
		EditorID:    input.Editor,
		CategoryIDs: input.Categories,
	}
	if cover != nil {
		name, err := h.saveCover(ctx, cover)
		if err != nil {
			h.respondError(c, err)
			return
		}
		draft.CoverImage = name
	}

	game, err := h.store.CreateVideoGame(ctx, draft)
	if err != nil {
		h.discardCover(ctx, draft.CoverImage)
		h.respondError(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/api/v1/video_games/%d", game.ID))
	c.JSON(http.StatusCreated, game)
}

// UpdateVideoGame godoc
// @Summary      Update a video game
// @Description  Partial update. A categories list replaces the current set. Multipart requests may carry a new coverImage.
// @Tags         video-games
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int                  true "Video game ID"
// @Param        input body VideoGameUpdateInput true "Fields to change"
// @Success      200 {object} models.VideoGame
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Failure      404 {object} ErrorResponse "Video game, editor or category not found"
// @Router       /video_games/{id} [put]
func (h *Handler) UpdateVideoGame(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	input, cover, err := h.bindVideoGameUpdate(c)
	if err != nil {
		if apperror.Is(err, apperror.KindValidation) {
			h.respondError(c, err)
			return
		}
		badRequest(c, err)
		return
	}

	patch := catalog.VideoGamePatch{
		Title:       input.Title,
		EditorID:    input.Editor,
		CategoryIDs: input.Categories,
	}
	if input.ReleaseDate != nil {
		releaseDate, err := parseReleaseDate(*input.ReleaseDate, h.location)
		if err != nil {
			h.respondError(c, err)
			return
		}
		patch.ReleaseDate = &releaseDate
	}

	ctx := c.Request.Context()
	game, err := h.store.UpdateVideoGame(ctx, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if cover != nil {
		name, err := h.saveCover(ctx, cover)
		if err != nil {
			h.respondError(c, err)
			return
		}
		previous, err := h.store.SetCoverImage(ctx, id, name)
		if err != nil {
			h.discardCover(ctx, name)
			h.respondError(c, err)
			return
		}
		h.discardCover(ctx, previous)
		game.CoverImage = name
	}

	c.JSON(http.StatusOK, game)
}

// DeleteVideoGame godoc
// @Summary      Delete a video game
// @Description  Removes the game, its category links and its cover image.
// @Tags         video-games
// @Security     BearerAuth
// @Param        id path int true "Video game ID"
// @Success      204
// @Failure      403 {object} ErrorResponse "Admin access required"
// @Failure      404 {object} ErrorResponse "Video game not found"
// @Router       /video_games/{id} [delete]
func (h *Handler) DeleteVideoGame(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	game, err := h.store.DeleteVideoGame(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.discardCover(ctx, game.CoverImage)
	c.Status(http.StatusNoContent)
}

// GetVideoGameCover godoc
// @Summary      Download a video game's cover image
// @Tags         video-games
// @Produce      image/png,image/jpeg,image/gif,image/webp
// @Security     BearerAuth
// @Param        id path int true "Video game ID"
// @Success      200 {file} file
// @Failure      404 {object} ErrorResponse "Video game or cover not found"
// @Router       /video_games/{id}/cover [get]
func (h *Handler) GetVideoGameCover(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	game, err := h.store.GetVideoGame(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if game.CoverImage == "" {
		h.respondError(c, apperror.NotFound("cover of video game", id))
		return
	}

	r, contentType, err := h.covers.Open(ctx, game.CoverImage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer r.Close()
	c.DataFromReader(http.StatusOK, -1, contentType, r, nil)
}

// splitCommaSeparated accepts "1,2" as well as repeated fields.
func splitCommaSeparated(s string) []string {
	var result []string
	parts := strings.Split(s, ",")
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// endregion
