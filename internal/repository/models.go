package repository

import (
	"time"

	"github.com/kursadbilgin/newsletter-engine/internal/domain"
	"gorm.io/datatypes"
)

// UserModel is the persistence model for the users table. ReferralCode is
// nullable so that users still waiting for a code do not collide on the
// unique index.
type UserModel struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	Email        string  `gorm:"type:varchar(254);not null;uniqueIndex"`
	FirstName    string  `gorm:"type:varchar(25);not null"`
	LastName     string  `gorm:"type:varchar(25);not null"`
	ReferralCode *string `gorm:"type:varchar(6);uniqueIndex"`
	ReferredByID *string `gorm:"type:uuid;index"`
	IsActive     bool    `gorm:"not null"`
	BestUser     bool    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// SentEmailModel links a sent mail to its recipient. Only OpenedAt is read by
// this service.
type SentEmailModel struct {
	ID       string     `gorm:"type:uuid;primaryKey"`
	MailID   string     `gorm:"type:varchar(64);not null;index"`
	UserID   string     `gorm:"type:uuid;not null;index"`
	SentAt   time.Time  `gorm:"not null"`
	OpenedAt *time.Time `gorm:"index"`
}

func (SentEmailModel) TableName() string {
	return "sent_emails"
}

// NotificationModel is the persistence model for inbound SNS notifications.
type NotificationModel struct {
	ID              string         `gorm:"type:uuid;primaryKey"`
	Headers         datatypes.JSON `gorm:"not null"`
	Data            datatypes.JSON `gorm:"not null"`
	State           domain.State   `gorm:"type:varchar(10);not null;index"`
	AddedAt         time.Time      `gorm:"not null;index"`
	LastProcessedAt *time.Time
	ProcessingError *string `gorm:"type:varchar(255)"`
}

func (NotificationModel) TableName() string {
	return "sns_notifications"
}

func userModelFromDomain(u *domain.User) *UserModel {
	if u == nil {
		return nil
	}

	var code *string
	if u.ReferralCode != "" {
		c := u.ReferralCode
		code = &c
	}

	return &UserModel{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ReferralCode: code,
		ReferredByID: u.ReferredByID,
		IsActive:     u.IsActive,
		BestUser:     u.BestUser,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userModelToDomain(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}

	u := &domain.User{
		ID:           m.ID,
		Email:        m.Email,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		ReferredByID: m.ReferredByID,
		IsActive:     m.IsActive,
		BestUser:     m.BestUser,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.ReferralCode != nil {
		u.ReferralCode = *m.ReferralCode
	}
	return u
}

func notificationModelFromDomain(n *domain.InboundNotification) *NotificationModel {
	if n == nil {
		return nil
	}

	headers := datatypes.JSON(n.Headers)
	if len(headers) == 0 {
		headers = datatypes.JSON("{}")
	}

	return &NotificationModel{
		ID:              n.ID,
		Headers:         headers,
		Data:            datatypes.JSON(n.Data),
		State:           n.State,
		AddedAt:         n.AddedAt,
		LastProcessedAt: n.LastProcessedAt,
		ProcessingError: n.ProcessingError,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.InboundNotification {
	if m == nil {
		return nil
	}

	return &domain.InboundNotification{
		ID:              m.ID,
		Headers:         []byte(m.Headers),
		Data:            []byte(m.Data),
		State:           m.State,
		AddedAt:         m.AddedAt,
		LastProcessedAt: m.LastProcessedAt,
		ProcessingError: m.ProcessingError,
	}
}
