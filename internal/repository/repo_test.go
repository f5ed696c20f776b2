package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&UserModel{}, &SentEmailModel{}, &NotificationModel{}); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return db
}

func seedSentEmail(t *testing.T, db *gorm.DB, userID string, opened bool) {
	t.Helper()

	model := &SentEmailModel{
		ID:     uuid.NewString(),
		MailID: "mail-" + uuid.NewString()[:8],
		UserID: userID,
		SentAt: time.Now().UTC(),
	}
	if opened {
		openedAt := time.Now().UTC()
		model.OpenedAt = &openedAt
	}
	if err := db.Create(model).Error; err != nil {
		t.Fatalf("seed sent email error = %v", err)
	}
}
