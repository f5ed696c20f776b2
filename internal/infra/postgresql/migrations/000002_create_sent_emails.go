package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/newsletter-engine/internal/repository"
	"gorm.io/gorm"
)

func createSentEmailsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_sent_emails",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.SentEmailModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SentEmailModel{})
		},
	}
}
