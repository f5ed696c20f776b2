package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addSNSNotificationsPendingIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_add_sns_notifications_pending_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_sns_notifications_pending ON sns_notifications (added_at) WHERE state = 'NEW'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_sns_notifications_pending`).Error
		},
	}
}
