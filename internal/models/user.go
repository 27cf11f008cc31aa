package models

import "time"

// User mirrors a messaging-platform identity. Rows are created lazily on
// first interaction and never deleted; moderation only flips Banned.
type User struct {
	BaseModel
	TelegramID    int64      `json:"telegramID" gorm:"uniqueIndex;not null"`
	Username      string     `json:"username" gorm:"type:varchar(255)"`
	FirstName     string     `json:"firstName" gorm:"type:varchar(255)"`
	Verified      bool       `json:"verified" gorm:"not null;default:false"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	Banned        bool       `json:"banned" gorm:"not null;default:false;index"`
	FilesShared   int64      `json:"filesShared" gorm:"not null;default:0"`
	FilesAccessed int64      `json:"filesAccessed" gorm:"not null;default:0"`
	LastActive    time.Time  `json:"lastActive"`
}

func (User) TableName() string {
	return "users"
}
