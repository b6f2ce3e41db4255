// Package catalog is the persistence layer for video games, editors,
// categories and users.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
)

// Store exposes catalog queries and mutations. All validation and reference
// resolution happens before the first write of an operation.
type Store struct {
	db       *gorm.DB
	validate *validator.Validate
}

// New creates a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, validate: newValidator()}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AutoMigrate creates or updates the catalog tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Editor{},
		&models.Category{},
		&models.VideoGame{},
		&models.User{},
		&models.ScheduleState{},
	)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("password_strength", func(fl validator.FieldLevel) bool {
		var upper, lower, digit, special bool
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			default:
				special = true
			}
		}
		return upper && lower && digit && special
	})
	return v
}

func (s *Store) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *Store) checkPartial(v any, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.validate.StructPartial(v, fields...); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Internal("validation failed", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return apperror.Validation("invalid input", fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "email":
		return fmt.Sprintf("%q is not a valid email address", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "password_strength":
		return "must contain an uppercase letter, a lowercase letter, a digit and a special character"
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

// translate maps driver-level errors onto the application taxonomy.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperror.Conflict(what+" already exists", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperror.Constraint(what+" is still referenced", err)
	default:
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("%s: %w", what, err)
	}
}

func notFoundOr(err error, resource string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("load %s %v: %w", resource, id, err)
}

func (s *Store) withContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
