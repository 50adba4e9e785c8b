package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/models"
)

// UploadRepository persists the upload queue
type UploadRepository struct {
	DB *gorm.DB
}

// NewUploadRepository creates a new instance of UploadRepository
func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{DB: db}
}

// Create inserts a new upload request in the waiting state
func (r *UploadRepository) Create(req *models.UploadRequest) error {
	now := time.Now().Unix()
	if req.CreatedAt == 0 {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	if req.State == "" {
		req.State = models.UploadStateWaiting
	}
	if err := r.DB.Create(req).Error; err != nil {
		return fmt.Errorf("failed to create upload request %s: %w", req.LocalIdentifier, err)
	}
	return nil
}

// GetByID retrieves an upload request by its local identifier
func (r *UploadRepository) GetByID(localIdentifier string) (*models.UploadRequest, error) {
	var req models.UploadRequest
	err := r.DB.First(&req, "local_identifier = ?", localIdentifier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get upload request %s: %w", localIdentifier, err)
	}
	return &req, nil
}

// ListAll retrieves the whole queue in creation order
func (r *UploadRepository) ListAll() ([]models.UploadRequest, error) {
	var reqs []models.UploadRequest
	err := r.DB.Order("created_at ASC, local_identifier ASC").Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upload requests: %w", err)
	}
	return reqs, nil
}

// ListByStates retrieves all requests currently in one of the given states
func (r *UploadRepository) ListByStates(states []models.UploadState) ([]models.UploadRequest, error) {
	var reqs []models.UploadRequest
	err := r.DB.Where("state IN ?", states).Order("created_at ASC, local_identifier ASC").Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upload requests by state: %w", err)
	}
	return reqs, nil
}

// NextWaiting returns the oldest waiting request, or nil when the queue is
// drained. Ties are broken by creation order.
func (r *UploadRepository) NextWaiting() (*models.UploadRequest, error) {
	var req models.UploadRequest
	err := r.DB.Where("state = ?", models.UploadStateWaiting).
		Order("created_at ASC, local_identifier ASC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next waiting upload: %w", err)
	}
	return &req, nil
}

// AnyActive reports whether a request currently holds the single active
// slot (preparing, uploading or finishing)
func (r *UploadRepository) AnyActive() (bool, error) {
	var count int64
	err := r.DB.Model(&models.UploadRequest{}).
		Where("state IN ?", []models.UploadState{
			models.UploadStatePreparing,
			models.UploadStateUploading,
			models.UploadStateFinishing,
		}).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count active uploads: %w", err)
	}
	return count > 0, nil
}

// SetState moves a request to a new state, recording or clearing the last
// error text
func (r *UploadRepository) SetState(localIdentifier string, state models.UploadState, errText *string) error {
	updates := map[string]interface{}{
		"state":      state,
		"error":      errText,
		"updated_at": time.Now().Unix(),
	}
	if state == models.UploadStateWaiting {
		// a fresh attempt starts from zero progress
		updates["progress"] = 0.0
	}
	result := r.DB.Model(&models.UploadRequest{}).Where("local_identifier = ?", localIdentifier).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set state of upload %s: %w", localIdentifier, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetProgress records the transfer fraction of the current attempt.
// Progress never regresses within one attempt.
func (r *UploadRepository) SetProgress(localIdentifier string, progress float64) error {
	result := r.DB.Model(&models.UploadRequest{}).
		Where("local_identifier = ? AND progress <= ?", localIdentifier, progress).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set progress of upload %s: %w", localIdentifier, result.Error)
	}
	return nil
}

// SetPrepared records the temp file produced by the preparation stage
func (r *UploadRepository) SetPrepared(localIdentifier string, preparedPath string, fileSize int64) error {
	result := r.DB.Model(&models.UploadRequest{}).Where("local_identifier = ?", localIdentifier).Updates(map[string]interface{}{
		"prepared_path": preparedPath,
		"file_size":     fileSize,
		"updated_at":    time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set prepared file of upload %s: %w", localIdentifier, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetServerImageID records the ID the server assigned during finalization
func (r *UploadRepository) SetServerImageID(localIdentifier string, pwgImageID int64) error {
	result := r.DB.Model(&models.UploadRequest{}).Where("local_identifier = ?", localIdentifier).Updates(map[string]interface{}{
		"pwg_image_id": pwgImageID,
		"updated_at":   time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set server image ID of upload %s: %w", localIdentifier, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new value
func (r *UploadRepository) IncrementAttempts(localIdentifier string) (int, error) {
	result := r.DB.Model(&models.UploadRequest{}).
		Where("local_identifier = ?", localIdentifier).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to increment attempts of upload %s: %w", localIdentifier, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	req, err := r.GetByID(localIdentifier)
	if err != nil {
		return 0, err
	}
	return req.Attempts, nil
}

// ResumeAllFailed moves every resumable-failed request back to waiting and
// returns how many were resumed
func (r *UploadRepository) ResumeAllFailed() (int64, error) {
	result := r.DB.Model(&models.UploadRequest{}).
		Where("state IN ?", models.ResumableStates).
		Updates(map[string]interface{}{
			"state":      models.UploadStateWaiting,
			"error":      gorm.Expr("NULL"),
			"progress":   0.0,
			"attempts":   0,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to resume failed uploads: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ClearImpossible deletes every permanently failed request and returns the
// removed rows so the caller can release their temp files
func (r *UploadRepository) ClearImpossible() ([]models.UploadRequest, error) {
	var reqs []models.UploadRequest
	err := r.DB.Where("state IN ?", models.ImpossibleStates).Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list impossible uploads: %w", err)
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	result := r.DB.Where("state IN ?", models.ImpossibleStates).Delete(&models.UploadRequest{})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to clear impossible uploads: %w", result.Error)
	}
	return reqs, nil
}

// Delete removes a single request from the queue
func (r *UploadRepository) Delete(localIdentifier string) error {
	result := r.DB.Delete(&models.UploadRequest{}, "local_identifier = ?", localIdentifier)
	if result.Error != nil {
		return fmt.Errorf("failed to delete upload request %s: %w", localIdentifier, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
