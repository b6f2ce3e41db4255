package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/internal/models"
)

// region --- DTOs ---

type EditorInput struct {
	Name    string `json:"name" example:"Nintendo"`
	Country string `json:"country" example:"Japan"`
}

type EditorUpdateInput struct {
	Name    *string `json:"name" example:"Nintendo"`
	Country *string `json:"country" example:"Japan"`
}

// endregion

// ListEditors godoc
// @Summary      List editors
// @Tags         editors
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(5)
// @Success      200 {object} PaginatedResponse[models.Editor]
// @Failure      401 {object} ErrorResponse
// @Router       /editors [get]
func (h *Handler) ListEditors(c *gin.Context) {
	page, limit := pageParams(c)
	response, err := Paginate(c.Request.Context(), page, limit, h.store.ListEditors, func(ctx context.Context) (int64, error) {
		return catalog.Count[models.Editor](ctx, h.store.DB())
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetEditor godoc
// @Summary      Get an editor
// @Tags         editors
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Editor ID"
// @Success      200 {object} models.Editor
// @Failure      404 {object} ErrorResponse "Editor not found"
// @Router       /editors/{id} [get]
func (h *Handler) GetEditor(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	editor, err := h.store.GetEditor(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, editor)
}

// ListEditorGames godoc
// @Summary      List the games of an editor
// @Tags         editors
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Editor ID"
// @Success      200 {array}  models.VideoGame
// @Failure      404 {object} ErrorResponse "Editor not found"
// @Router       /editors/{id}/video_games [get]
func (h *Handler) ListEditorGames(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	games, err := h.store.GamesByEditor(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

// CreateEditor godoc
// @Summary      Create an editor
// @Tags         editors
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body EditorInput true "Editor Info"
// @Success      201 {object} models.Editor
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Router       /editors [post]
func (h *Handler) CreateEditor(c *gin.Context) {
	var input EditorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	editor, err := h.store.CreateEditor(c.Request.Context(), input.Name, input.Country)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/editors/%d", editor.ID))
	c.JSON(http.StatusCreated, editor)
}

// UpdateEditor godoc
// @Summary      Update an editor
// @Description  Only the fields present in the body are changed.
// @Tags         editors
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int               true "Editor ID"
// @Param        input body EditorUpdateInput true "Fields to change"
// @Success      200 {object} models.Editor
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Editor not found"
// @Router       /editors/{id} [put]
func (h *Handler) UpdateEditor(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var input EditorUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	editor, err := h.store.UpdateEditor(c.Request.Context(), id, catalog.EditorPatch{Name: input.Name, Country: input.Country})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, editor)
}

// DeleteEditor godoc
// @Summary      Delete an editor
// @Description  Fails with 409 while video games still reference the editor.
// @Tags         editors
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Editor ID"
// @Success      204
// @Failure      404 {object} ErrorResponse "Editor not found"
// @Failure      409 {object} ErrorResponse "Editor still referenced"
// @Router       /editors/{id} [delete]
func (h *Handler) DeleteEditor(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteEditor(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
