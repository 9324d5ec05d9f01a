package models

import (
	"time"
)

// GenerationStyleStat aggregates how often each portrait style has been
// generated. Counters are buffered in Redis and flushed periodically, so the
// numbers here may lag live traffic by one flush interval.
type GenerationStyleStat struct {
	ID              uint      `gorm:"primarykey"`
	Style           string    `gorm:"type:varchar(64);uniqueIndex:ux_generation_style_stats_style;not null"`
	GenerationCount uint64    `gorm:"default:0;not null"`
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}
