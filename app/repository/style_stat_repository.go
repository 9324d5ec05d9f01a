package repository

import (
	"github.com/JonasWeigert/VowPix/app/models"
	"gorm.io/gorm"
)

// styleStatRepository implements the StyleStatRepository interface
type styleStatRepository struct {
	db *gorm.DB
}

// NewStyleStatRepository creates a new style statistics repository instance
func NewStyleStatRepository(db *gorm.DB) StyleStatRepository {
	return &styleStatRepository{db: db}
}

// GetAll retrieves all style statistics ordered by popularity
func (r *styleStatRepository) GetAll() ([]models.GenerationStyleStat, error) {
	var stats []models.GenerationStyleStat
	err := r.db.Order("generation_count DESC").Find(&stats).Error
	return stats, err
}

// GetTop retrieves the most popular styles
func (r *styleStatRepository) GetTop(limit int) ([]models.GenerationStyleStat, error) {
	var stats []models.GenerationStyleStat
	err := r.db.Order("generation_count DESC").Limit(limit).Find(&stats).Error
	return stats, err
}
