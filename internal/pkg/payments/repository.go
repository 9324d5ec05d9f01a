package payments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/JonasWeigert/VowPix/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment reconciler.
type Repository interface {
	CreatePaymentEventIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	MarkProcessed(ctx context.Context, eventID uint, processingError string) error
	ResolveCustomer(ctx context.Context, customerReference string) (uint, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePaymentEventIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_payment_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("external_payment_id = ?", event.ExternalPaymentID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, eventID uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Where("id = ?", eventID).
		Updates(updates).Error
}

// ResolveCustomer maps the provider's customer reference to a local user.
// References are issued as the numeric user id at checkout-session creation
// time (checkout itself lives outside this service).
func (r *gormRepository) ResolveCustomer(ctx context.Context, customerReference string) (uint, error) {
	id, err := strconv.ParseUint(customerReference, 10, 32)
	if err != nil || id == 0 {
		return 0, ErrUnknownCustomer
	}
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUnknownCustomer
		}
		return 0, err
	}
	return user.ID, nil
}
