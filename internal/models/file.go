package models

type FileType string

const (
	FileTypeDocument FileType = "document"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypePhoto    FileType = "photo"
)

func (t FileType) Valid() bool {
	switch t {
	case FileTypeDocument, FileTypeVideo, FileTypeAudio, FileTypePhoto:
		return true
	default:
		return false
	}
}

// FileRecord maps a short code to a transport file handle. Records are
// never removed: deactivated rows keep their code reserved forever.
type FileRecord struct {
	BaseModel
	ShortCode  string   `json:"shortCode" gorm:"type:varchar(32);uniqueIndex;not null"`
	FileRef    string   `json:"fileRef" gorm:"type:text;not null"`
	FileType   FileType `json:"fileType" gorm:"type:varchar(20);not null"`
	Caption    string   `json:"caption" gorm:"type:text"`
	Size       int64    `json:"size" gorm:"not null;default:0"`
	UploadedBy int64    `json:"uploadedBy" gorm:"not null;index"`
	Views      int64    `json:"views" gorm:"not null;default:0"`
	Downloads  int64    `json:"downloads" gorm:"not null;default:0"`
	IsActive   bool     `json:"isActive" gorm:"not null;default:true;index"`
}

func (FileRecord) TableName() string {
	return "file_records"
}
