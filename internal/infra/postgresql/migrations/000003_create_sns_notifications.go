package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"gorm.io/gorm"
)

func createSNSNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_sns_notifications",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.NotificationModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}
