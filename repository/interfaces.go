package repository

import (
	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
)

// AlbumRepositoryInterface defines the methods for album cache operations
type AlbumRepositoryInterface interface {
	GetByID(pwgID int64) (*models.Album, error)
	GetOrCreate(pwgID int64, parentID *int64) (*models.Album, error)
	ListAll() ([]models.Album, error)
	ListChildren(parentID int64) ([]models.Album, error)
	UpsertFromSummary(summary piwigo.AlbumSummary) error
	SetCounts(pwgID, nbImages, totalNbImages int64) error
	MarkCountsUnknown(pwgID int64) error
	SetListingCompleted(pwgID int64, completedAt int64) error
	SetQuery(pwgID int64, query string) error
	Delete(pwgID int64) error

	// image associations
	GetImageIDs(pwgID int64) ([]int64, error)
	AddImages(pwgID int64, images []models.Image) error
	RemoveImages(pwgID int64, imageIDs []int64) error
}

// ImageRepositoryInterface defines the methods for image cache operations
type ImageRepositoryInterface interface {
	GetByID(pwgID int64) (*models.Image, error)
	UpsertMany(images []models.Image) error
	UpdateFullMetadata(data *piwigo.ImageData) error
	PurgeOrphans() (int64, error)
}

// UploadRepositoryInterface defines the methods for upload queue persistence
type UploadRepositoryInterface interface {
	Create(req *models.UploadRequest) error
	GetByID(localIdentifier string) (*models.UploadRequest, error)
	ListAll() ([]models.UploadRequest, error)
	ListByStates(states []models.UploadState) ([]models.UploadRequest, error)
	NextWaiting() (*models.UploadRequest, error)
	AnyActive() (bool, error)

	SetState(localIdentifier string, state models.UploadState, errText *string) error
	SetProgress(localIdentifier string, progress float64) error
	SetPrepared(localIdentifier string, preparedPath string, fileSize int64) error
	SetServerImageID(localIdentifier string, pwgImageID int64) error
	IncrementAttempts(localIdentifier string) (int, error)

	ResumeAllFailed() (int64, error)
	ClearImpossible() ([]models.UploadRequest, error)
	Delete(localIdentifier string) error
}
