package ratelimit

import (
	"context"

	"github.com/wagate/pkg/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	GetOrCreate(ctx context.Context, sessionID string) (entities.RateLimit, error)
	Save(ctx context.Context, bucket *entities.RateLimit) error
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetOrCreate(ctx context.Context, sessionID string) (entities.RateLimit, error) {
	var bucket entities.RateLimit
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Where(entities.RateLimit{SessionID: sessionID}).
		FirstOrCreate(&bucket).Error
	return bucket, err
}

func (r *repository) Save(ctx context.Context, bucket *entities.RateLimit) error {
	return r.db.WithContext(ctx).Save(bucket).Error
}
