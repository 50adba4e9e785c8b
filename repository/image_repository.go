package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
)

// ImageRepository handles database operations for cached Image entities
type ImageRepository struct {
	DB *gorm.DB
}

// NewImageRepository creates a new instance of ImageRepository
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{DB: db}
}

// GetByID retrieves an image by its Piwigo ID
func (r *ImageRepository) GetByID(pwgID int64) (*models.Image, error) {
	var image models.Image
	err := r.DB.First(&image, "pwg_id = ?", pwgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get image by ID %d: %w", pwgID, err)
	}
	return &image, nil
}

// UpsertMany creates or refreshes image rows in one statement. Listing
// pages never clear a previously resolved file size: a page row with
// FileSize 0 must not downgrade complete metadata.
func (r *ImageRepository) UpsertMany(images []models.Image) error {
	if len(images) == 0 {
		return nil
	}
	now := time.Now().Unix()
	for i := range images {
		images[i].UpdatedAt = now
	}

	err := r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pwg_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"title":         gorm.Expr("excluded.title"),
			"file_name":     gorm.Expr("excluded.file_name"),
			"date_created":  gorm.Expr("excluded.date_created"),
			"date_posted":   gorm.Expr("excluded.date_posted"),
			"file_size":     gorm.Expr("CASE WHEN excluded.file_size > 0 THEN excluded.file_size ELSE images.file_size END"),
			"rating":        gorm.Expr("excluded.rating"),
			"visits":        gorm.Expr("excluded.visits"),
			"is_video":      gorm.Expr("excluded.is_video"),
			"is_pdf":        gorm.Expr("excluded.is_pdf"),
			"thumbnail_url": gorm.Expr("excluded.thumbnail_url"),
			"updated_at":    gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&images).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d images: %w", len(images), err)
	}
	return nil
}

// UpdateFullMetadata stores the result of a full image fetch
func (r *ImageRepository) UpdateFullMetadata(data *piwigo.ImageData) error {
	updates := map[string]interface{}{
		"title":        data.Title,
		"file_name":    data.FileName,
		"file_size":    data.FileSize,
		"rating":       data.Rating,
		"visits":       data.Visits,
		"date_created": data.DateCreated,
		"date_posted":  data.DatePosted,
		"updated_at":   time.Now().Unix(),
	}
	result := r.DB.Model(&models.Image{}).Where("pwg_id = ?", data.ID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update metadata of image %d: %w", data.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PurgeOrphans deletes every image that no album references anymore and
// returns the number of rows removed
func (r *ImageRepository) PurgeOrphans() (int64, error) {
	result := r.DB.Where("pwg_id NOT IN (SELECT DISTINCT image_id FROM album_images)").Delete(&models.Image{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge orphan images: %w", result.Error)
	}
	return result.RowsAffected, nil
}
