package tracker

import (
	"context"
	"errors"

	"github.com/JonasWeigert/VowPix/app/models"
	"gorm.io/gorm"
)

// Repository provides store operations for generation request transitions.
// Transition is a guarded single UPDATE: the row only changes state when it
// is still in the expected source state, so a stale caller cannot overwrite
// a concurrent resolution.
type Repository interface {
	GetByUUID(ctx context.Context, requestUUID string) (*models.GenerationRequest, error)
	AttachDebit(ctx context.Context, requestID, creditTransactionID uint) error
	Transition(ctx context.Context, requestID uint, from, to string, updates map[string]interface{}) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a tracker repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByUUID(ctx context.Context, requestUUID string) (*models.GenerationRequest, error) {
	var req models.GenerationRequest
	err := r.db.WithContext(ctx).Where("uuid = ?", requestUUID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormRepository) AttachDebit(ctx context.Context, requestID, creditTransactionID uint) error {
	return r.db.WithContext(ctx).Model(&models.GenerationRequest{}).
		Where("id = ?", requestID).
		Updates(map[string]interface{}{
			"credits_consumed":      1,
			"credit_transaction_id": creditTransactionID,
		}).Error
}

func (r *gormRepository) Transition(ctx context.Context, requestID uint, from, to string, updates map[string]interface{}) error {
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.GenerationRequest{}).
		Where("id = ? AND status = ?", requestID, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
