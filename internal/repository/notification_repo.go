package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TriageFunc runs while the notification row is locked. Repository calls made
// with the ctx it receives join the lock's transaction.
type TriageFunc func(ctx context.Context, n *domain.InboundNotification) error

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.InboundNotification) error
	GetByID(ctx context.Context, id string) (*domain.InboundNotification, error)
	ClaimForTriage(ctx context.Context, id string, fn TriageFunc) (bool, error)
	UpdateTriageResult(ctx context.Context, id string, state domain.State, processedAt time.Time, processingError *string) error
	ListStaleNew(ctx context.Context, olderThan time.Time, limit int) ([]domain.InboundNotification, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

type txKey struct{}

func (r *GormNotificationRepo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.InboundNotification) error {
	model := notificationModelFromDomain(n)
	if err := r.conn(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.InboundNotification, error) {
	var model NotificationModel
	err := r.conn(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// ClaimForTriage locks the notification row and runs fn while the lock is
// held. A notification that already left NEW is not handed to fn and reports
// false. An error from fn rolls the transaction back.
func (r *GormNotificationRepo) ClaimForTriage(ctx context.Context, id string, fn TriageFunc) (bool, error) {
	claimed := false
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var model NotificationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !model.State.CanTransitionTo(domain.StateProcessed) {
			return nil
		}

		claimed = true
		return fn(context.WithValue(ctx, txKey{}, tx), notificationModelToDomain(&model))
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// UpdateTriageResult writes only the triage columns.
func (r *GormNotificationRepo) UpdateTriageResult(
	ctx context.Context,
	id string,
	state domain.State,
	processedAt time.Time,
	processingError *string,
) error {
	result := r.conn(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":             state,
			"last_processed_at": processedAt,
			"processing_error":  processingError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListStaleNew returns NEW notifications added before olderThan, oldest first.
func (r *GormNotificationRepo) ListStaleNew(ctx context.Context, olderThan time.Time, limit int) ([]domain.InboundNotification, error) {
	var models []NotificationModel
	err := r.conn(ctx).
		Where("state = ? AND added_at < ?", domain.StateNew, olderThan).
		Order("added_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.InboundNotification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}
