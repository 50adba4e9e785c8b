package models

// Image represents a Piwigo image cached locally using GORM.
// It corresponds to the 'images' table. An image may belong to several
// albums; the association lives in the 'album_images' join table.
type Image struct {
	PwgID        int64   `gorm:"primaryKey;autoIncrement:false" json:"pwg_id"`
	Title        string  `gorm:"not null;default:''" json:"title"`
	FileName     string  `gorm:"not null;default:''" json:"file_name"`
	DateCreated  *int64  `gorm:"index" json:"date_created,omitempty"` // Nullable, Unix timestamp
	DatePosted   *int64  `gorm:"index" json:"date_posted,omitempty"`  // Nullable, Unix timestamp
	FileSize     int64   `gorm:"not null;default:0" json:"file_size"` // 0 means metadata incomplete
	RankManual   *int64  `gorm:"" json:"rank_manual,omitempty"`       // Nullable, populated lazily
	RankRandom   *int64  `gorm:"" json:"rank_random,omitempty"`       // Nullable, populated lazily
	Rating       float64 `gorm:"not null;default:0" json:"rating"`
	Visits       int64   `gorm:"not null;default:0" json:"visits"`
	IsVideo      bool    `gorm:"not null;default:false" json:"is_video"`
	IsPDF        bool    `gorm:"not null;default:false" json:"is_pdf"`
	ThumbnailURL *string `gorm:"" json:"thumbnail_url,omitempty"` // Nullable
	UpdatedAt    int64   `gorm:"not null" json:"updated_at"`      // Unix timestamp

	// Relationships
	Albums []Album `gorm:"many2many:album_images;foreignKey:PwgID;joinForeignKey:ImageID;References:PwgID;joinReferences:AlbumID" json:"albums,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}

// HasFullMetadata reports whether the image record carries complete server
// metadata. Images fetched from album listings only have partial data; a
// zero file size marks them as needing a full re-fetch before operations
// that require complete data (share, edit, copy/move, delete, rotate).
func (i *Image) HasFullMetadata() bool {
	return i.FileSize > 0
}
