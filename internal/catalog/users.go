package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
)

// UserDraft is the input for creating a user. Newsletter defaults to true.
type UserDraft struct {
	Email      string   `json:"email" validate:"required,email,max=180"`
	Password   string   `json:"password" validate:"required,min=8,max=64,password_strength"`
	Roles      []string `json:"roles" validate:"omitempty,dive,oneof=ROLE_USER ROLE_ADMIN"`
	Newsletter *bool    `json:"newsletter"`
}

// UserPatch is a partial user update; a non-nil Roles replaces the stored set.
type UserPatch struct {
	Email      *string
	Password   *string
	Roles      []string
	Newsletter *bool
}

func (s *Store) ListUsers(ctx context.Context, page, limit int) ([]models.User, error) {
	return ListPage[models.User](ctx, s.db, page, limit)
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.withContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "user", id)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.withContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user", email)
	}
	return &user, nil
}

// FindSubscribedUsers returns the digest recipients: every user who has not
// opted out of the newsletter.
func (s *Store) FindSubscribedUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := s.withContext(ctx).Where("newsletter = ?", true).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser validates the draft, hashes the password and stores the user.
// A taken email is a conflict both here and at the unique index.
func (s *Store) CreateUser(ctx context.Context, draft UserDraft) (*models.User, error) {
	draft.Email = normalizeEmail(draft.Email)
	if err := s.check(draft); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, draft.Email, 0); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(draft.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal("failed to hash password", err)
	}

	newsletter := true
	if draft.Newsletter != nil {
		newsletter = *draft.Newsletter
	}
	roles := draft.Roles
	if roles == nil {
		roles = []string{}
	}

	user := models.User{
		Email:        draft.Email,
		PasswordHash: string(hash),
		Roles:        datatypes.NewJSONSlice(roles),
		Newsletter:   newsletter,
	}
	if err := s.withContext(ctx).Create(&user).Error; err != nil {
		return nil, translate(err, "user "+draft.Email)
	}
	return &user, nil
}

// UpdateUser validates only the fields present in patch.
func (s *Store) UpdateUser(ctx context.Context, id uint, patch UserPatch) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	draft := UserDraft{}
	var fields []string
	if patch.Email != nil {
		draft.Email = normalizeEmail(*patch.Email)
		fields = append(fields, "Email")
	}
	if patch.Password != nil {
		draft.Password = *patch.Password
		fields = append(fields, "Password")
	}
	if patch.Roles != nil {
		draft.Roles = patch.Roles
		fields = append(fields, "Roles")
	}
	if err := s.checkPartial(draft, fields...); err != nil {
		return nil, err
	}

	if patch.Email != nil && draft.Email != user.Email {
		if err := s.ensureEmailFree(ctx, draft.Email, user.ID); err != nil {
			return nil, err
		}
		user.Email = draft.Email
	}
	if patch.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(draft.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperror.Internal("failed to hash password", err)
		}
		user.PasswordHash = string(hash)
	}
	if patch.Roles != nil {
		user.Roles = datatypes.NewJSONSlice(patch.Roles)
	}
	if patch.Newsletter != nil {
		user.Newsletter = *patch.Newsletter
	}

	if err := s.withContext(ctx).Save(user).Error; err != nil {
		return nil, translate(err, "user "+user.Email)
	}
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	result := s.withContext(ctx).Delete(&models.User{}, id)
	if result.Error != nil {
		return translate(result.Error, "user")
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// Authenticate checks an email/password pair.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	return user, nil
}

func (s *Store) ensureEmailFree(ctx context.Context, email string, exceptID uint) error {
	var existing models.User
	err := s.withContext(ctx).Where("email = ? AND id <> ?", email, exceptID).First(&existing).Error
	switch {
	case err == nil:
		return apperror.Conflict(fmt.Sprintf("email %s is already registered", email), nil)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return fmt.Errorf("check email %s: %w", email, err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
