package models

type GateChannel struct {
	BaseModel
	ChannelID int64  `json:"channelID" gorm:"uniqueIndex;not null"`
	Handle    string `json:"handle" gorm:"type:varchar(255)"`
	Title     string `json:"title" gorm:"type:varchar(255)"`
}

func (GateChannel) TableName() string {
	return "gate_channels"
}

// JoinURL returns a public link for the channel, or "" when the channel has
// no public handle.
func (c GateChannel) JoinURL() string {
	if c.Handle == "" {
		return ""
	}
	handle := c.Handle
	if handle[0] == '@' {
		handle = handle[1:]
	}
	return "https://t.me/" + handle
}
