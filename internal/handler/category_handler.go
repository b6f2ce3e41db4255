package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/internal/models"
)

type CategoryInput struct {
	Name string `json:"name" example:"Action"`
}

// ListCategories godoc
// @Summary      List categories
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(5)
// @Success      200 {object} PaginatedResponse[models.Category]
// @Router       /categories [get]
func (h *Handler) ListCategories(c *gin.Context) {
	page, limit := pageParams(c)
	response, err := Paginate(c.Request.Context(), page, limit, h.store.ListCategories, func(ctx context.Context) (int64, error) {
		return catalog.Count[models.Category](ctx, h.store.DB())
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetCategory godoc
// @Summary      Get a category
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Category ID"
// @Success      200 {object} models.Category
// @Failure      404 {object} ErrorResponse "Category not found"
// @Router       /categories/{id} [get]
func (h *Handler) GetCategory(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	category, err := h.store.GetCategory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// ListCategoryGames godoc
// @Summary      List the games in a category
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Category ID"
// @Success      200 {array}  models.VideoGame
// @Failure      404 {object} ErrorResponse "Category not found"
// @Router       /categories/{id}/video_games [get]
func (h *Handler) ListCategoryGames(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	games, err := h.store.GamesByCategory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

// CreateCategory godoc
// @Summary      Create a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body CategoryInput true "Category Info"
// @Success      201 {object} models.Category
// @Failure      400 {object} ErrorResponse
// @Router       /categories [post]
func (h *Handler) CreateCategory(c *gin.Context) {
	var input CategoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	category, err := h.store.CreateCategory(c.Request.Context(), input.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/categories/%d", category.ID))
	c.JSON(http.StatusCreated, category)
}

// UpdateCategory godoc
// @Summary      Rename a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int           true "Category ID"
// @Param        input body CategoryInput true "New name"
// @Success      200 {object} models.Category
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Category not found"
// @Router       /categories/{id} [put]
func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var input CategoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	category, err := h.store.RenameCategory(c.Request.Context(), id, input.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// DeleteCategory godoc
// @Summary      Delete a category
// @Description  The category is unlinked from its games; the games are kept.
// @Tags         categories
// @Security     BearerAuth
// @Param        id path int true "Category ID"
// @Success      204
// @Failure      404 {object} ErrorResponse "Category not found"
// @Router       /categories/{id} [delete]
func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteCategory(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
