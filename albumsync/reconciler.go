package albumsync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/camden-git/piwigosync/database"
	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
	"github.com/camden-git/piwigosync/repository"
)

// Result is the outcome of one reconciliation pass.
type Result struct {
	Completed    bool    // a full pass ran and evictions were committed
	PagesFetched int
	TotalCount   int64
	RemovedIDs   []int64 // committed evictions; empty unless Completed
	CanDownload  bool
}

// Reconciler fetches the complete current listing of one album page by
// page and updates the local cache to match. The caller must guarantee a
// single in-flight reconciliation per album; the Coordinator's in-flight
// registry does that for the daemon.
type Reconciler struct {
	Gateway piwigo.Gateway
	Albums  repository.AlbumRepositoryInterface
	Images  repository.ImageRepositoryInterface
	Events  Publisher
}

// NewReconciler wires a reconciler; a nil publisher disables progress events.
func NewReconciler(gw piwigo.Gateway, albums repository.AlbumRepositoryInterface, images repository.ImageRepositoryInterface, events Publisher) *Reconciler {
	if events == nil {
		events = NopPublisher{}
	}
	return &Reconciler{Gateway: gw, Albums: albums, Images: images, Events: events}
}

// Reconcile runs the page loop for one album and query. Images cached
// before the call are only evicted once every page of a complete pass has
// confirmed their absence; an aborted or failed pass leaves the cache in
// its last consistent state. Cancellation is cooperative and checked
// between pages.
func (r *Reconciler) Reconcile(ctx context.Context, album *models.Album, query string, pageSize int) (*Result, error) {
	initialIDs, err := r.Albums.GetImageIDs(album.PwgID)
	if err != nil {
		return nil, fmt.Errorf("reconcile album %d: %w", album.PwgID, err)
	}

	// every cached image is a candidate for removal until a page proves it
	// is still present remotely
	candidates := make(map[int64]struct{}, len(initialIDs))
	for _, id := range initialIDs {
		candidates[id] = struct{}{}
	}

	if err := r.Albums.MarkCountsUnknown(album.PwgID); err != nil {
		log.Printf("albumsync: could not mark counts unknown for album %d: %v", album.PwgID, err)
	}

	result := &Result{}
	lastPage := 0
	var plan *PagingPlan

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			// canceled between pages: discard the removal set uncommitted
			r.restoreCounts(album)
			return result, err
		}

		pageData, err := r.Gateway.ListImages(ctx, album.PwgID, query, database.PwgOrder(album.SortOrder), page, pageSize)
		if err != nil {
			// leave the cache as is; no partial removal is committed
			r.restoreCounts(album)
			return result, fmt.Errorf("reconcile album %d page %d: %w", album.PwgID, page, err)
		}
		result.PagesFetched++
		result.CanDownload = pageData.CanDownload

		r.storePage(album.PwgID, pageData)
		for _, id := range pageData.ImageIDs() {
			delete(candidates, id)
		}

		if page == 0 {
			p := PlanPaging(album.PwgID, pageData.TotalCount, pageSize)
			plan = &p
			lastPage = p.LastPage
			result.TotalCount = pageData.TotalCount
		}

		r.Events.PublishSyncEvent(Event{AlbumID: album.PwgID, Page: page, LastPage: lastPage})

		// a cancellation or query edit that lands while a page is in
		// flight must abort before anything is evicted, even when that
		// page was the last one
		if err := ctx.Err(); err != nil {
			r.restoreCounts(album)
			return result, err
		}
		changed, err := r.queryChanged(album, query)
		if err != nil {
			r.restoreCounts(album)
			return result, fmt.Errorf("reconcile album %d: %w", album.PwgID, err)
		}
		if changed {
			r.restoreCounts(album)
			return result, nil
		}

		if page >= lastPage {
			break
		}
	}

	// complete pass: evict every image the listing never confirmed
	removed := make([]int64, 0, len(candidates))
	for id := range candidates {
		removed = append(removed, id)
	}
	if err := r.Albums.RemoveImages(album.PwgID, removed); err != nil {
		r.restoreCounts(album)
		return result, fmt.Errorf("reconcile album %d: %w", album.PwgID, err)
	}
	result.RemovedIDs = removed

	if err := r.Albums.SetCounts(album.PwgID, plan.NbImages, plan.TotalNbImages); err != nil {
		log.Printf("albumsync: could not store counts for album %d: %v", album.PwgID, err)
	}
	if err := r.Albums.SetListingCompleted(album.PwgID, time.Now().Unix()); err != nil {
		log.Printf("albumsync: could not store listing timestamp for album %d: %v", album.PwgID, err)
	}

	result.Completed = true
	r.Events.PublishSyncEvent(Event{AlbumID: album.PwgID, Page: lastPage, LastPage: lastPage, Done: true, Removed: len(removed)})
	return result, nil
}

// storePage upserts a page of images and associates them with the album.
// A locally inconsistent image must not abort a multi-page fetch, so bulk
// failures fall back to per-image writes that skip and log.
func (r *Reconciler) storePage(albumID int64, page *piwigo.Page) {
	images := make([]models.Image, 0, len(page.Images))
	for _, data := range page.Images {
		images = append(images, imageFromData(data))
	}
	if err := r.Albums.AddImages(albumID, images); err == nil {
		return
	}

	for _, img := range images {
		if err := r.Albums.AddImages(albumID, []models.Image{img}); err != nil {
			log.Printf("albumsync: skipping image %d of album %d: %v", img.PwgID, albumID, err)
		}
	}
}

// queryChanged re-reads the album's active query between pages.
func (r *Reconciler) queryChanged(album *models.Album, query string) (bool, error) {
	fresh, err := r.Albums.GetByID(album.PwgID)
	if err != nil {
		return false, err
	}
	return fresh.Query != query, nil
}

// restoreCounts puts the pre-pass counts back after an aborted pass so the
// in-flight sentinel does not stick.
func (r *Reconciler) restoreCounts(album *models.Album) {
	if album.HasUnknownCounts() {
		return
	}
	if err := r.Albums.SetCounts(album.PwgID, album.NbImages, album.TotalNbImages); err != nil {
		log.Printf("albumsync: could not restore counts for album %d: %v", album.PwgID, err)
	}
}

func imageFromData(data piwigo.ImageData) models.Image {
	img := models.Image{
		PwgID:       data.ID,
		Title:       data.Title,
		FileName:    data.FileName,
		DateCreated: data.DateCreated,
		DatePosted:  data.DatePosted,
		FileSize:    data.FileSize,
		Rating:      data.Rating,
		Visits:      data.Visits,
		IsVideo:     data.IsVideo,
		IsPDF:       data.IsPDF,
	}
	if data.ThumbnailURL != "" {
		tn := data.ThumbnailURL
		img.ThumbnailURL = &tn
	}
	return img
}
