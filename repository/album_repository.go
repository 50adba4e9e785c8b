package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/database"
	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
)

// AlbumRepository handles database operations for cached Album entities
type AlbumRepository struct {
	DB *gorm.DB
}

// NewAlbumRepository creates a new instance of AlbumRepository
func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{DB: db}
}

// GetByID retrieves an album by its Piwigo ID
func (r *AlbumRepository) GetByID(pwgID int64) (*models.Album, error) {
	var album models.Album
	err := r.DB.First(&album, "pwg_id = ?", pwgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get album by ID %d: %w", pwgID, err)
	}
	return &album, nil
}

// GetOrCreate returns the cached album, materializing a placeholder row on
// first reference. Counts start at the unknown sentinel until a listing
// completes.
func (r *AlbumRepository) GetOrCreate(pwgID int64, parentID *int64) (*models.Album, error) {
	album, err := r.GetByID(pwgID)
	if err == nil {
		return album, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().Unix()
	album = &models.Album{
		PwgID:         pwgID,
		NbImages:      models.CountUnknown,
		TotalNbImages: models.CountUnknown,
		ParentID:      parentID,
		SortOrder:     database.DefaultSortOrder,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.DB.Create(album).Error; err != nil {
		return nil, fmt.Errorf("failed to create album %d: %w", pwgID, err)
	}
	return album, nil
}

// ListAll retrieves all cached albums, ordered by name
func (r *AlbumRepository) ListAll() ([]models.Album, error) {
	var albums []models.Album
	err := r.DB.Order("name ASC").Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	return albums, nil
}

// ListChildren retrieves the direct children of an album, ordered by name
func (r *AlbumRepository) ListChildren(parentID int64) ([]models.Album, error) {
	var albums []models.Album
	err := r.DB.Where("parent_id = ?", parentID).Order("name ASC").Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list children of album %d: %w", parentID, err)
	}
	return albums, nil
}

// UpsertFromSummary creates or refreshes an album row from a sub-album
// listing entry. Updates are a no-op when nothing changed.
func (r *AlbumRepository) UpsertFromSummary(summary piwigo.AlbumSummary) error {
	album, err := r.GetByID(summary.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now().Unix()
		album = &models.Album{
			PwgID:         summary.ID,
			Name:          summary.Name,
			NbImages:      summary.NbImages,
			TotalNbImages: summary.TotalNbImages,
			ParentID:      summary.ParentID,
			SortOrder:     database.DefaultSortOrder,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if summary.Comment != "" {
			comment := summary.Comment
			album.Comment = &comment
		}
		if summary.ThumbnailURL != "" {
			tn := summary.ThumbnailURL
			album.ThumbnailURL = &tn
		}
		if err := r.DB.Create(album).Error; err != nil {
			return fmt.Errorf("failed to create album %d from summary: %w", summary.ID, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if album.Name != summary.Name {
		updates["name"] = summary.Name
	}
	if album.NbImages != summary.NbImages {
		updates["nb_images"] = summary.NbImages
	}
	if album.TotalNbImages != summary.TotalNbImages {
		updates["total_nb_images"] = summary.TotalNbImages
	}
	if summary.Comment != "" && (album.Comment == nil || *album.Comment != summary.Comment) {
		updates["comment"] = summary.Comment
	}
	if summary.ThumbnailURL != "" && (album.ThumbnailURL == nil || *album.ThumbnailURL != summary.ThumbnailURL) {
		updates["thumbnail_url"] = summary.ThumbnailURL
	}

	// nothing changed, skip the write entirely
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().Unix()

	result := r.DB.Model(&models.Album{}).Where("pwg_id = ?", summary.ID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update album %d from summary: %w", summary.ID, result.Error)
	}
	return nil
}

// SetCounts updates the resolved image counts for an album
func (r *AlbumRepository) SetCounts(pwgID, nbImages, totalNbImages int64) error {
	result := r.DB.Model(&models.Album{}).Where("pwg_id = ?", pwgID).Updates(map[string]interface{}{
		"nb_images":       nbImages,
		"total_nb_images": totalNbImages,
		"updated_at":      time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set counts for album %d: %w", pwgID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkCountsUnknown stores the in-flight sentinel while a listing runs
func (r *AlbumRepository) MarkCountsUnknown(pwgID int64) error {
	result := r.DB.Model(&models.Album{}).Where("pwg_id = ?", pwgID).Updates(map[string]interface{}{
		"nb_images":       models.CountUnknown,
		"total_nb_images": models.CountUnknown,
		"updated_at":      time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark counts unknown for album %d: %w", pwgID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetListingCompleted records the timestamp of the last complete listing
func (r *AlbumRepository) SetListingCompleted(pwgID int64, completedAt int64) error {
	result := r.DB.Model(&models.Album{}).Where("pwg_id = ?", pwgID).Updates(map[string]interface{}{
		"date_get_images": completedAt,
		"updated_at":      time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set listing timestamp for album %d: %w", pwgID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetQuery stores the active search string of a smart search album
func (r *AlbumRepository) SetQuery(pwgID int64, query string) error {
	result := r.DB.Model(&models.Album{}).Where("pwg_id = ?", pwgID).Updates(map[string]interface{}{
		"query":      query,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set query for album %d: %w", pwgID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes an album the server no longer knows, clearing its image
// associations first
func (r *AlbumRepository) Delete(pwgID int64) error {
	album := models.Album{PwgID: pwgID}
	if err := r.DB.Model(&album).Association("Images").Clear(); err != nil {
		return fmt.Errorf("failed to clear images of album %d: %w", pwgID, err)
	}
	result := r.DB.Delete(&models.Album{}, "pwg_id = ?", pwgID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete album %d: %w", pwgID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetImageIDs returns the IDs of all images currently associated with the album
func (r *AlbumRepository) GetImageIDs(pwgID int64) ([]int64, error) {
	var ids []int64
	err := r.DB.Table("album_images").Where("album_id = ?", pwgID).Pluck("image_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get image IDs of album %d: %w", pwgID, err)
	}
	return ids, nil
}

// AddImages upserts the given images and associates them with the album
func (r *AlbumRepository) AddImages(pwgID int64, images []models.Image) error {
	if len(images) == 0 {
		return nil
	}
	imageRepo := NewImageRepository(r.DB)
	if err := imageRepo.UpsertMany(images); err != nil {
		return err
	}

	album := models.Album{PwgID: pwgID}
	refs := make([]models.Image, len(images))
	for i, img := range images {
		refs[i] = models.Image{PwgID: img.PwgID}
	}
	if err := r.DB.Model(&album).Association("Images").Append(&refs); err != nil {
		return fmt.Errorf("failed to associate %d images with album %d: %w", len(images), pwgID, err)
	}
	return nil
}

// RemoveImages drops the association between the album and the given image
// IDs. The image rows themselves stay until the orphan purge collects them.
func (r *AlbumRepository) RemoveImages(pwgID int64, imageIDs []int64) error {
	if len(imageIDs) == 0 {
		return nil
	}
	err := r.DB.Table("album_images").
		Where("album_id = ? AND image_id IN ?", pwgID, imageIDs).
		Delete(nil).Error
	if err != nil {
		return fmt.Errorf("failed to remove %d images from album %d: %w", len(imageIDs), pwgID, err)
	}
	return nil
}
