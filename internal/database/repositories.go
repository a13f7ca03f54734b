package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"brigadas-analytics/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

const defaultSnapshotLimit = 50

// SnapshotStore persists statistics captured by scheduled jobs
type SnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore creates a snapshot repository over db
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveSnapshot stores one snapshot
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *models.StatsSnapshot) error {
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("failed to save stats snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the newest snapshots first
func (s *SnapshotStore) ListSnapshots(ctx context.Context, limit int) ([]models.StatsSnapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}

	var snaps []models.StatsSnapshot
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stats snapshots: %w", err)
	}
	return snaps, nil
}

// ProfileStore persists REST gateway connection profiles
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore creates a profile repository over db
func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// ListProfiles returns all profiles ordered by name
func (s *ProfileStore) ListProfiles(ctx context.Context) ([]models.ConnectionProfile, error) {
	var profiles []models.ConnectionProfile
	if err := s.db.WithContext(ctx).Order("name").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// GetProfile looks a profile up by id or, failing that, by name
func (s *ProfileStore) GetProfile(ctx context.Context, idOrName string) (*models.ConnectionProfile, error) {
	var profile models.ConnectionProfile
	err := s.db.WithContext(ctx).
		Where("id = ? OR name = ?", idOrName, idOrName).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile %q: %w", idOrName, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateProfile stores a new profile. APIKeyEnc must already be encrypted.
func (s *ProfileStore) CreateProfile(ctx context.Context, profile *models.ConnectionProfile) error {
	return s.db.WithContext(ctx).Create(profile).Error
}

// DeleteProfile removes a profile by id
func (s *ProfileStore) DeleteProfile(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ConnectionProfile{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("profile %q: %w", id, ErrNotFound)
	}
	return nil
}
