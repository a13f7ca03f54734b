package database

import (
	"context"

	"gorm.io/gorm"

	"brigadas-analytics/internal/models"
	"brigadas-analytics/internal/services/hierarchy"
)

// HierarchyStore reads the nested organisation from the local database.
// It implements hierarchy.Gateway.
type HierarchyStore struct {
	db *gorm.DB
}

// NewHierarchyStore creates a gateway over db
func NewHierarchyStore(db *gorm.DB) *HierarchyStore {
	return &HierarchyStore{db: db}
}

// byCreation keeps sibling order stable between fetches
func byCreation(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// FetchHierarchy loads leaders with their brigade members, mobilizers and citizens.
// Regions match the leader's region (any of them); the date range bounds the
// leader's creation time, both ends inclusive.
func (s *HierarchyStore) FetchHierarchy(ctx context.Context, filter *hierarchy.Filter) ([]models.Leader, error) {
	query := s.db.WithContext(ctx).
		Preload("BrigadeMembers", byCreation).
		Preload("BrigadeMembers.Mobilizers", byCreation).
		Preload("BrigadeMembers.Mobilizers.Citizens", byCreation)

	if filter != nil {
		if len(filter.Regions) > 0 {
			query = query.Where("region IN ?", filter.Regions)
		}
		if dr := filter.DateRange; dr != nil {
			if dr.Start != nil {
				query = query.Where("created_at >= ?", dr.Start.UTC())
			}
			if dr.End != nil {
				query = query.Where("created_at <= ?", dr.End.UTC())
			}
		}
	}

	var leaders []models.Leader
	if err := byCreation(query).Find(&leaders).Error; err != nil {
		return nil, err
	}
	return leaders, nil
}

// SaveLeaders inserts leaders together with their nested members, mobilizers and citizens
func (s *HierarchyStore) SaveLeaders(ctx context.Context, leaders []models.Leader) error {
	if len(leaders) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&leaders).Error
	})
}
