package repository

import (
	"github.com/JonasWeigert/VowPix/app/models"
	"gorm.io/gorm"
)

// generationRepository implements the GenerationRepository interface
type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new generation request repository instance
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

// GetByUUID retrieves a generation request by its public UUID
func (r *generationRepository) GetByUUID(uuid string) (*models.GenerationRequest, error) {
	var request models.GenerationRequest
	err := r.db.Where("uuid = ?", uuid).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetByUserID retrieves a paginated history of a user's generation requests
func (r *generationRepository) GetByUserID(userID uint, offset, limit int) ([]models.GenerationRequest, error) {
	var requests []models.GenerationRequest
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&requests).Error
	return requests, err
}

// CountByUserID returns the total number of requests a user has made
func (r *generationRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationRequest{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of requests currently in the given status
func (r *generationRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationRequest{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// GetRecent retrieves the most recent generation requests across all users
func (r *generationRepository) GetRecent(limit int) ([]models.GenerationRequest, error) {
	var requests []models.GenerationRequest
	err := r.db.Order("created_at DESC").Limit(limit).Find(&requests).Error
	return requests, err
}
