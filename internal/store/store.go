// Package store persists user records via GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pluginmind/pluginmind-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormUserStore persists user records to the database via GORM.
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore constructs a GormUserStore.
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// FindByGoogleID returns the user bound to the given provider subject ID, or
// nil when no such user exists.
func (s *GormUserStore) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("user store: not initialized")
	}
	googleID = strings.TrimSpace(googleID)
	if googleID == "" {
		return nil, nil
	}

	var user models.User
	errFind := s.db.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("user store: find by google id: %w", errFind)
	}
	return &user, nil
}

// FindByEmail returns the user with the given email, or nil when absent.
func (s *GormUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("user store: not initialized")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	var user models.User
	errFind := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("user store: find by email: %w", errFind)
	}
	return &user, nil
}

// Create inserts a new user record. Unique-constraint conflicts are returned
// as gorm.ErrDuplicatedKey so callers can treat "someone else just created
// it" distinctly from other failures.
func (s *GormUserStore) Create(ctx context.Context, user *models.User) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("user store: not initialized")
	}
	if user == nil {
		return fmt.Errorf("user store: user is nil")
	}

	if errCreate := s.db.WithContext(ctx).Create(user).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return errCreate
		}
		return fmt.Errorf("user store: create: %w", errCreate)
	}
	return nil
}

// UpdateGoogleID binds the provider subject ID to an existing user.
func (s *GormUserStore) UpdateGoogleID(ctx context.Context, id uint64, googleID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("user store: not initialized")
	}
	googleID = strings.TrimSpace(googleID)
	if googleID == "" {
		return fmt.Errorf("user store: empty google id")
	}

	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("google_id", googleID).Error; errUpdate != nil {
		return fmt.Errorf("user store: update google id: %w", errUpdate)
	}
	return nil
}

// UpdateProfile stores the latest identity claims snapshot for a user.
func (s *GormUserStore) UpdateProfile(ctx context.Context, id uint64, profile datatypes.JSON) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("user store: not initialized")
	}
	if len(profile) == 0 {
		return nil
	}

	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("profile", profile).Error; errUpdate != nil {
		return fmt.Errorf("user store: update profile: %w", errUpdate)
	}
	return nil
}
