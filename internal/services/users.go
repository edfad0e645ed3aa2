package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/models"
)

type Users struct {
	db    *gorm.DB
	audit *audit.Recorder
	lg    *zap.SugaredLogger
}

func NewUsers(db *gorm.DB, rec *audit.Recorder, lg *zap.SugaredLogger) *Users {
	return &Users{db: db, audit: rec, lg: lg}
}

func (s *Users) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&users).Error
	return users, err
}

// SetRole changes a user's role and records the change.
func (s *Users) SetRole(ctx context.Context, actor Actor, email, role string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.User{}, validationf("email is required")
	}
	if role != models.RoleAdmin && role != models.RoleNormal {
		return models.User{}, validationf("role must be %q or %q", models.RoleAdmin, models.RoleNormal)
	}
	var u models.User
	err := s.tx(ctx, "promote_user", func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", email).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %s", ErrNotFound, email)
			}
			return err
		}
		old := u.Role
		if err := tx.Model(&u).Update("role", role).Error; err != nil {
			return err
		}
		u.Role = role
		return s.audit.Record(tx, audit.Entry{
			Actor: actor.Email, Action: "promote_user", IP: actor.IP,
			Details: fmt.Sprintf("Changed %s from %s to %s", email, old, role),
		})
	})
	return u, err
}

func (s *Users) tx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return rolledBack(s.lg, op, s.audit.Transaction(s.db.WithContext(ctx), fn))
}
