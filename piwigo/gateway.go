package piwigo

import "context"

// ImageData is the per-image payload returned by an album listing. Listings
// carry partial metadata only; FileSize stays 0 until a full image fetch.
type ImageData struct {
	ID           int64
	Title        string
	FileName     string
	DateCreated  *int64 // Unix timestamp
	DatePosted   *int64 // Unix timestamp
	FileSize     int64
	Rating       float64
	Visits       int64
	IsVideo      bool
	IsPDF        bool
	ThumbnailURL string
}

// Page is one page of an album's image listing.
type Page struct {
	Images      []ImageData
	TotalCount  int64 // total matching images across all pages
	CanDownload bool  // user's right to download originals
}

// ImageIDs returns the server IDs of the images on the page.
func (p *Page) ImageIDs() []int64 {
	ids := make([]int64, 0, len(p.Images))
	for _, img := range p.Images {
		ids = append(ids, img.ID)
	}
	return ids
}

// AlbumSummary is one entry of a sub-album listing.
type AlbumSummary struct {
	ID            int64
	Name          string
	Comment       string
	NbImages      int64
	TotalNbImages int64
	ParentID      *int64
	ThumbnailURL  string
}

// FinalizeResult is the outcome of the server-side finalize call for an
// uploaded image.
type FinalizeResult struct {
	ImageID   int64
	Moderated bool // server queued the image for community moderation
}

// Gateway is the remote Piwigo API surface the sync core depends on.
// Implementations must return *APIError for all failures so callers can
// classify them.
type Gateway interface {
	// ListImages fetches one page of the image listing for an album. A
	// non-empty query routes smart search albums through the search
	// endpoint; page indexes start at 0.
	ListImages(ctx context.Context, albumID int64, query, sort string, page, perPage int) (*Page, error)

	// ListSubAlbums fetches the direct children of parentID (0 for root).
	ListSubAlbums(ctx context.Context, parentID int64) ([]AlbumSummary, error)

	// GetImageInfo fetches the complete metadata of a single image.
	GetImageInfo(ctx context.Context, imageID int64) (*ImageData, error)

	// UploadChunk transfers one chunk of a prepared file.
	UploadChunk(ctx context.Context, req *UploadChunkRequest) error

	// FinalizeUpload runs the server-side finalize step: attach metadata
	// and associate the uploaded image with its album.
	FinalizeUpload(ctx context.Context, req *FinalizeRequest) (*FinalizeResult, error)
}

// UploadChunkRequest carries one chunk of a file transfer.
type UploadChunkRequest struct {
	LocalIdentifier string
	FileName        string
	AlbumID         int64
	Chunk           []byte
	ChunkIndex      int
	ChunkCount      int
}

// FinalizeRequest carries the metadata applied during finalization.
type FinalizeRequest struct {
	LocalIdentifier string
	FileName        string
	Title           string
	AlbumID         int64
	DateCreated     *int64
}
