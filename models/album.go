package models

import "math"

// CountUnknown is the sentinel stored in NbImages/TotalNbImages while a
// listing is in flight and the real counts are not yet known.
const CountUnknown int64 = math.MinInt64

// Album represents a Piwigo category cached locally using GORM.
// It corresponds to the 'albums' table. Albums with a negative PwgID are
// smart albums (search, visits, best rated, ...) that do not exist as
// categories on the server.
type Album struct {
	PwgID         int64   `gorm:"primaryKey;autoIncrement:false" json:"pwg_id"`
	Name          string  `gorm:"not null" json:"name"`
	Comment       *string `gorm:"" json:"comment,omitempty"` // Nullable
	NbImages      int64   `gorm:"not null" json:"nb_images"`
	TotalNbImages int64   `gorm:"not null" json:"total_nb_images"`
	Query         string  `gorm:"not null;default:''" json:"query"` // smart search albums only
	DateGetImages *int64  `gorm:"" json:"date_get_images,omitempty"` // Nullable, Unix timestamp of last complete listing
	ParentID      *int64  `gorm:"index" json:"parent_id,omitempty"`  // Nullable, root albums have none
	SortOrder     string  `gorm:"not null;default:''" json:"sort_order"`
	ThumbnailURL  *string `gorm:"" json:"thumbnail_url,omitempty"` // Nullable
	CreatedAt     int64   `gorm:"not null" json:"created_at"`      // Unix timestamp
	UpdatedAt     int64   `gorm:"not null" json:"updated_at"`      // Unix timestamp

	// Relationships
	Images []Image `gorm:"many2many:album_images;foreignKey:PwgID;joinForeignKey:AlbumID;References:PwgID;joinReferences:ImageID" json:"images,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Album) TableName() string {
	return "albums"
}

// IsSmart reports whether the album is a virtual smart album rather than a
// real server category.
func (a *Album) IsSmart() bool {
	return a.PwgID < 0
}

// HasUnknownCounts reports whether a listing is still in flight for the album.
func (a *Album) HasUnknownCounts() bool {
	return a.NbImages == CountUnknown || a.TotalNbImages == CountUnknown
}
