package models

import "time"

const (
	SettingAutoDeleteSeconds   = "auto_delete_seconds"
	SettingProtectContent      = "protect_content"
	SettingShortenerDomain     = "shortener_domain"
	SettingShortenerAPIKey     = "shortener_api_key"
	SettingStartMessage        = "start_message"
	SettingHelpMessage         = "help_message"
	SettingVerificationEnabled = "verification_enabled"
)

type Setting struct {
	Key       string    `json:"key" gorm:"column:setting_key;type:varchar(100);primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

func (Setting) TableName() string {
	return "settings"
}
