package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"gamecatalog/backend/internal/auth"
	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
	"gamecatalog/backend/pkg/jwt"
)

// region --- DTOs ---

// RegisterInput defines the structure for user registration.
type RegisterInput struct {
	Email      string `json:"email" binding:"required" example:"test@example.com"`
	Password   string `json:"password" binding:"required" example:"Password123!"`
	Newsletter *bool  `json:"newsletter" example:"true"`
}

// LoginInput defines the structure for user login.
type LoginInput struct {
	Email    string `json:"email" binding:"required" example:"test@example.com"`
	Password string `json:"password" binding:"required" example:"Password123!"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// UserInput is the admin create body; unlike registration it may set roles.
type UserInput struct {
	Email      string   `json:"email" example:"test@example.com"`
	Password   string   `json:"password" example:"Password123!"`
	Roles      []string `json:"roles" example:"ROLE_ADMIN"`
	Newsletter *bool    `json:"newsletter" example:"true"`
}

// UserUpdateInput is a partial update; absent fields are unchanged.
type UserUpdateInput struct {
	Email      *string  `json:"email" example:"test@example.com"`
	Password   *string  `json:"password" example:"Password123!"`
	Roles      []string `json:"roles" example:"ROLE_ADMIN"`
	Newsletter *bool    `json:"newsletter" example:"false"`
}

// MeUpdateInput is what users may change on their own account.
type MeUpdateInput struct {
	Password   *string `json:"password" example:"Password123!"`
	Newsletter *bool   `json:"newsletter" example:"false"`
}

// endregion

// region --- Auth Handlers ---

func (h *Handler) issueToken(c *gin.Context, status int, userID uint) {
	token, err := jwt.GenerateToken(h.jwtSecret, userID)
	if err != nil {
		h.respondError(c, apperror.Internal("failed to generate token", err))
		return
	}
	c.JSON(status, TokenResponse{Token: token})
}

// RegisterUser godoc
// @Summary      Register a new user
// @Description  Creates a ROLE_USER account subscribed to the newsletter unless told otherwise, and returns an authentication token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body RegisterInput true "Registration Info"
// @Success      201  {object}  TokenResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Email already registered"
// @Router       /auth/register [post]
func (h *Handler) RegisterUser(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), catalog.UserDraft{
		Email:      input.Email,
		Password:   input.Password,
		Newsletter: input.Newsletter,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.issueToken(c, http.StatusCreated, user.ID)
}

// LoginUser godoc
// @Summary      Log in a user
// @Description  Authenticates a user with email and password, and returns a new token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body LoginInput true "Login Info"
// @Success      200  {object}  TokenResponse
// @Failure      400  {object}  ErrorResponse "Invalid input"
// @Failure      401  {object}  ErrorResponse "Invalid credentials"
// @Router       /auth/login [post]
func (h *Handler) LoginUser(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.store.Authenticate(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.issueToken(c, http.StatusOK, user.ID)
}

// endregion

// region --- User Handlers ---

// GetMe godoc
// @Summary      Get current user's profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.User
// @Failure      401  {object}  ErrorResponse "Unauthorized"
// @Router       /users/me [get]
func (h *Handler) GetMe(c *gin.Context) {
	if user := auth.CurrentUser(c); user != nil {
		c.JSON(http.StatusOK, user)
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), auth.CurrentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe godoc
// @Summary      Update current user's account
// @Description  Changes the password or the newsletter subscription. Email and roles are not editable here.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body MeUpdateInput true "Fields to change"
// @Success      200  {object}  models.User
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse "Unauthorized"
// @Router       /users/me [put]
func (h *Handler) UpdateMe(c *gin.Context) {
	var input MeUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.store.UpdateUser(c.Request.Context(), auth.CurrentUserID(c), catalog.UserPatch{
		Password:   input.Password,
		Newsletter: input.Newsletter,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers godoc
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(5)
// @Success      200 {object} PaginatedResponse[models.User]
// @Router       /users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	page, limit := pageParams(c)
	response, err := Paginate(c.Request.Context(), page, limit, h.store.ListUsers, func(ctx context.Context) (int64, error) {
		return catalog.Count[models.User](ctx, h.store.DB())
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetUser godoc
// @Summary      Get a user by ID
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      404  {object}  ErrorResponse "User not found"
// @Router       /users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateUser godoc
// @Summary      Create a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body UserInput true "User Info"
// @Success      201  {object}  models.User
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Admin access required"
// @Failure      409  {object}  ErrorResponse "Email already registered"
// @Router       /users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var input UserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.store.CreateUser(c.Request.Context(), catalog.UserDraft{
		Email:      input.Email,
		Password:   input.Password,
		Roles:      input.Roles,
		Newsletter: input.Newsletter,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/users/%d", user.ID))
	c.JSON(http.StatusCreated, user)
}

// UpdateUser godoc
// @Summary      Update a user
// @Description  Only the fields present in the body are changed. A roles list replaces the stored roles.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path int             true "User ID"
// @Param        input body UserUpdateInput true "Fields to change"
// @Success      200  {object}  models.User
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "User not found"
// @Failure      409  {object}  ErrorResponse "Email already registered"
// @Router       /users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var input UserUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.store.UpdateUser(c.Request.Context(), id, catalog.UserPatch{
		Email:      input.Email,
		Password:   input.Password,
		Roles:      input.Roles,
		Newsletter: input.Newsletter,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser godoc
// @Summary      Delete a user
// @Tags         users
// @Security     BearerAuth
// @Param        id path int true "User ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse "User not found"
// @Router       /users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// endregion
