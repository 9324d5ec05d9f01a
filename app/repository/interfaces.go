package repository

import (
	"github.com/JonasWeigert/VowPix/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	GetStatsByUserID(userID uint) (*UserStats, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// GenerationRepository defines the interface for generation request queries.
// State transitions go through the tracker; this covers read paths.
type GenerationRepository interface {
	GetByUUID(uuid string) (*models.GenerationRequest, error)
	GetByUserID(userID uint, offset, limit int) ([]models.GenerationRequest, error)
	CountByUserID(userID uint) (int64, error)
	CountByStatus(status string) (int64, error)
	GetRecent(limit int) ([]models.GenerationRequest, error)
}

// StyleStatRepository defines the interface for aggregated style statistics
type StyleStatRepository interface {
	GetAll() ([]models.GenerationStyleStat, error)
	GetTop(limit int) ([]models.GenerationStyleStat, error)
}

// UserStats provides aggregated counts for a single user
type UserStats struct {
	GenerationCount int64
	CreditsSpent    int64
}

// Repositories struct holds all repository instances
type Repositories struct {
	User       UserRepository
	Generation GenerationRepository
	StyleStat  StyleStatRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Generation: NewGenerationRepository(db),
		StyleStat:  NewStyleStatRepository(db),
	}
}
