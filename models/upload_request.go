package models

// UploadState is the position of an upload request in its state machine.
type UploadState string

// Happy path states, in order.
const (
	UploadStateWaiting   UploadState = "waiting"
	UploadStatePreparing UploadState = "preparing"
	UploadStatePrepared  UploadState = "prepared"
	UploadStateUploading UploadState = "uploading"
	UploadStateUploaded  UploadState = "uploaded"
	UploadStateFinishing UploadState = "finishing"
	UploadStateFinished  UploadState = "finished"
)

// Error states. The *Error states are resumable; the *Fail states and
// formatError are not and can only be cleared.
const (
	UploadStatePreparingError UploadState = "preparingError"
	UploadStatePreparingFail  UploadState = "preparingFail"
	UploadStateFormatError    UploadState = "formatError"
	UploadStateUploadingError UploadState = "uploadingError"
	UploadStateUploadingFail  UploadState = "uploadingFail"
	UploadStateFinishingError UploadState = "finishingError"
	UploadStateFinishingFail  UploadState = "finishingFail"
)

// Administrative terminal states.
const (
	UploadStateModerated UploadState = "moderated" // server queued the image for moderation
	UploadStateDeleted   UploadState = "deleted"   // canceled, or source asset removed
)

// IsResumable reports whether the state is a transient failure that a
// resume action or the next worker cycle may retry.
func (s UploadState) IsResumable() bool {
	switch s {
	case UploadStatePreparingError, UploadStateUploadingError, UploadStateFinishingError:
		return true
	default:
		return false
	}
}

// IsImpossible reports whether the state is a permanent failure that can
// only be cleared by the user.
func (s UploadState) IsImpossible() bool {
	switch s {
	case UploadStatePreparingFail, UploadStateFormatError, UploadStateUploadingFail, UploadStateFinishingFail:
		return true
	default:
		return false
	}
}

// IsInFlight reports whether the request still has work to do. While any
// request is in flight the device-sleep inhibitor stays held.
func (s UploadState) IsInFlight() bool {
	switch s {
	case UploadStateWaiting, UploadStatePreparing, UploadStatePrepared,
		UploadStateUploading, UploadStateUploaded, UploadStateFinishing:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are expected.
func (s UploadState) IsTerminal() bool {
	switch s {
	case UploadStateFinished, UploadStateModerated, UploadStateDeleted:
		return true
	default:
		return false
	}
}

// ResumableStates and ImpossibleStates are the bucket definitions used by
// the bulk resume and bulk clear actions.
var (
	ResumableStates  = []UploadState{UploadStatePreparingError, UploadStateUploadingError, UploadStateFinishingError}
	ImpossibleStates = []UploadState{UploadStatePreparingFail, UploadStateFormatError, UploadStateUploadingFail, UploadStateFinishingFail}
)

// UploadRequest represents one pending transfer of a local asset to the
// server. It corresponds to the 'upload_requests' table.
type UploadRequest struct {
	LocalIdentifier string      `gorm:"primaryKey" json:"local_identifier"` // asset path or synthetic clipboard ID
	SourcePath      string      `gorm:"not null" json:"source_path"`        // local file the asset is read from
	AlbumID         int64       `gorm:"not null;index" json:"album_id"`
	State           UploadState `gorm:"not null;default:waiting;index" json:"state"`
	Error           *string     `gorm:"" json:"error,omitempty"` // Nullable, last error text

	FileName     string  `gorm:"not null;default:''" json:"file_name"`
	FileSize     int64   `gorm:"not null;default:0" json:"file_size"`
	Progress     float64 `gorm:"not null;default:0" json:"progress"` // 0..1, monotonic within one attempt
	Attempts     int     `gorm:"not null;default:0" json:"attempts"`
	PwgImageID   *int64  `gorm:"" json:"pwg_image_id,omitempty"`  // Nullable, set once the server assigns an ID
	PreparedPath *string `gorm:"" json:"prepared_path,omitempty"` // Nullable, temp file owned until terminal

	// Resize/format parameters applied during preparation.
	ResizeMaxPixels int  `gorm:"not null;default:0" json:"resize_max_pixels"` // 0 disables resizing
	StripMetadata   bool `gorm:"not null;default:false" json:"strip_metadata"`

	CreatedAt int64 `gorm:"not null;index" json:"created_at"` // Unix timestamp, FIFO tie-break
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`       // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (UploadRequest) TableName() string {
	return "upload_requests"
}
