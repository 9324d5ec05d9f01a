package ratelimit

import (
	"context"
	"time"

	"github.com/JonasWeigert/VowPix/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the store operations behind quota decisions.
type Repository interface {
	// CountWindows counts admitted requests for the identity inside the
	// trailing hourly and daily windows.
	CountWindows(ctx context.Context, identifier, identifierType string, hourStart, dayStart time.Time) (hourly, daily int64, err error)

	// AdmitAndRecord decides and records one attempt as a single atomic
	// unit: no concurrent call for the same identity can observe a state
	// between "checked" and "recorded". The request row is written either
	// as pending (admitted) or rate_limited (rejected). Returned counts
	// exclude the new row.
	AdmitAndRecord(ctx context.Context, req *models.GenerationRequest, hourStart, dayStart time.Time, hourlyLimit, dailyLimit int) (admitted bool, hourly, daily int64, err error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a rate limit repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CountWindows(ctx context.Context, identifier, identifierType string, hourStart, dayStart time.Time) (int64, int64, error) {
	return countWindows(r.db.WithContext(ctx), identifier, identifierType, hourStart, dayStart)
}

func countWindows(tx *gorm.DB, identifier, identifierType string, hourStart, dayStart time.Time) (int64, int64, error) {
	base := func() *gorm.DB {
		return tx.Model(&models.GenerationRequest{}).
			Where("identifier = ? AND identifier_type = ? AND status <> ?",
				identifier, identifierType, models.GenerationStatusRateLimited)
	}

	var hourly int64
	if err := base().Where("created_at > ?", hourStart).Count(&hourly).Error; err != nil {
		return 0, 0, err
	}
	var daily int64
	if err := base().Where("created_at > ?", dayStart).Count(&daily).Error; err != nil {
		return 0, 0, err
	}
	return hourly, daily, nil
}

// lockIdentity ensures the QuotaIdentity anchor row exists and takes a row
// lock on it, serializing concurrent admissions for one identity.
func lockIdentity(tx *gorm.DB, identifier, identifierType string) error {
	seed := models.QuotaIdentity{Identifier: identifier, IdentifierType: identifierType}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "identifier"},
			{Name: "identifier_type"},
		},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return err
	}

	var anchor models.QuotaIdentity
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("identifier = ? AND identifier_type = ?", identifier, identifierType).
		First(&anchor).Error
}

func (r *gormRepository) AdmitAndRecord(ctx context.Context, req *models.GenerationRequest, hourStart, dayStart time.Time, hourlyLimit, dailyLimit int) (bool, int64, int64, error) {
	var (
		admitted bool
		hourly   int64
		daily    int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockIdentity(tx, req.Identifier, req.IdentifierType); err != nil {
			return err
		}

		var err error
		hourly, daily, err = countWindows(tx, req.Identifier, req.IdentifierType, hourStart, dayStart)
		if err != nil {
			return err
		}

		// Boundary inclusive: a request at count == limit is rejected.
		admitted = hourly < int64(hourlyLimit) && daily < int64(dailyLimit)
		if admitted {
			req.Status = models.GenerationStatusPending
		} else {
			req.Status = models.GenerationStatusRateLimited
		}
		return tx.Create(req).Error
	})
	if err != nil {
		return false, 0, 0, err
	}
	return admitted, hourly, daily, nil
}
