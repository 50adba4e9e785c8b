package albumsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/alitto/pond/v2"
	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/piwigo"
	"github.com/camden-git/piwigosync/repository"
)

// ErrRefreshInFlight is returned when a refresh for the same album and
// query is already running.
var ErrRefreshInFlight = errors.New("albumsync: refresh already in flight for this album")

// ErrAlbumGone is returned when the server reports the album no longer
// exists; the cached row has been removed and callers should fall back to
// the nearest existing ancestor.
var ErrAlbumGone = errors.New("albumsync: album no longer exists on the server")

type flight struct {
	query  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator owns the in-flight registry of album refreshes and the
// background pool for decoupled work (orphan purges). It enforces
// single-flight with latest-wins per album: a duplicate refresh with the
// same query is rejected with ErrRefreshInFlight, while a refresh with a
// new query cancels the running pass (whose removal set is discarded
// uncommitted) and starts over.
type Coordinator struct {
	Gateway    piwigo.Gateway
	Albums     repository.AlbumRepositoryInterface
	Images     repository.ImageRepositoryInterface
	Reconciler *Reconciler
	Events     Publisher
	PageSize   int

	mu       sync.Mutex
	inFlight map[int64]*flight
	pool     pond.Pool
}

// NewCoordinator wires a coordinator around an existing reconciler.
func NewCoordinator(gw piwigo.Gateway, albums repository.AlbumRepositoryInterface, images repository.ImageRepositoryInterface, rec *Reconciler, events Publisher, pageSize int) *Coordinator {
	if events == nil {
		events = NopPublisher{}
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Coordinator{
		Gateway:    gw,
		Albums:     albums,
		Images:     images,
		Reconciler: rec,
		Events:     events,
		PageSize:   pageSize,
		inFlight:   make(map[int64]*flight),
		pool:       pond.NewPool(2),
	}
}

// Refresh starts a reconciliation pass for the album in the background.
// The album row is materialized on first reference. Progress and
// completion are reported through the publisher.
func (c *Coordinator) Refresh(ctx context.Context, albumID int64, query string) error {
	c.mu.Lock()
	previous, running := c.inFlight[albumID]
	if running && previous.query == query {
		c.mu.Unlock()
		return ErrRefreshInFlight
	}

	flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	current := &flight{query: query, cancel: cancel, done: make(chan struct{})}
	c.inFlight[albumID] = current
	c.mu.Unlock()

	go func() {
		defer close(current.done)
		defer func() {
			c.mu.Lock()
			if c.inFlight[albumID] == current {
				delete(c.inFlight, albumID)
			}
			c.mu.Unlock()
		}()

		if running {
			// latest wins: stop the superseded pass and wait for it to
			// release write access before touching the album
			previous.cancel()
			<-previous.done
		}

		if err := c.run(flightCtx, albumID, query); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("albumsync: refresh of album %d failed: %v", albumID, err)
			c.Events.PublishSyncEvent(Event{AlbumID: albumID, Done: true, Error: err.Error()})
			if piwigo.IsAuth(err) {
				// the session is gone; no other pass can get past the
				// server either
				c.cancelAllRefreshes()
			}
		}
	}()
	return nil
}

func (c *Coordinator) run(ctx context.Context, albumID int64, query string) error {
	album, err := c.Albums.GetOrCreate(albumID, nil)
	if err != nil {
		return err
	}

	if albumID == piwigo.SmartAlbumSearch && album.Query != query {
		if err := c.Albums.SetQuery(albumID, query); err != nil {
			return err
		}
	}

	result, err := c.Reconciler.Reconcile(ctx, album, query, c.PageSize)
	if err != nil {
		if piwigo.IsNotFound(err) {
			return c.dropDeletedAlbum(albumID)
		}
		return err
	}
	if result.Completed && len(result.RemovedIDs) > 0 {
		c.SchedulePurge()
	}
	return nil
}

// dropDeletedAlbum removes an album the server no longer knows so the
// presentation layer can pop to the nearest existing ancestor.
func (c *Coordinator) dropDeletedAlbum(albumID int64) error {
	if err := c.Albums.Delete(albumID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to drop deleted album %d: %w", albumID, err)
	}
	c.Events.PublishSyncEvent(Event{AlbumID: albumID, Done: true, Error: ErrAlbumGone.Error()})
	c.SchedulePurge()
	return ErrAlbumGone
}

// cancelAllRefreshes stops every pass still in flight. Each one aborts at
// its next page boundary and commits nothing.
func (c *Coordinator) cancelAllRefreshes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.inFlight {
		f.cancel()
	}
}

// CancelRefresh cancels a running refresh, if any. The pass stops between
// pages and commits nothing.
func (c *Coordinator) CancelRefresh(albumID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inFlight[albumID]; ok {
		f.cancel()
		return true
	}
	return false
}

// IsRefreshing reports whether a pass is in flight for the album.
func (c *Coordinator) IsRefreshing(albumID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[albumID]
	return ok
}

// RefreshSubAlbums synchronizes the cached children of an album with the
// server's sub-album listing. Children the server no longer lists are
// dropped. Per-album cache failures are logged and skipped.
func (c *Coordinator) RefreshSubAlbums(ctx context.Context, parentID int64) error {
	summaries, err := c.Gateway.ListSubAlbums(ctx, parentID)
	if err != nil {
		if piwigo.IsNotFound(err) {
			return c.dropDeletedAlbum(parentID)
		}
		return fmt.Errorf("failed to list sub-albums of %d: %w", parentID, err)
	}

	remote := make(map[int64]struct{}, len(summaries))
	for _, summary := range summaries {
		remote[summary.ID] = struct{}{}
		if err := c.Albums.UpsertFromSummary(summary); err != nil {
			log.Printf("albumsync: skipping sub-album %d of %d: %v", summary.ID, parentID, err)
		}
	}

	children, err := c.Albums.ListChildren(parentID)
	if err != nil {
		return err
	}
	var dropped bool
	for _, child := range children {
		if _, ok := remote[child.PwgID]; ok {
			continue
		}
		if err := c.Albums.Delete(child.PwgID); err != nil {
			log.Printf("albumsync: could not drop vanished album %d: %v", child.PwgID, err)
			continue
		}
		dropped = true
	}
	if dropped {
		c.SchedulePurge()
	}
	return nil
}

// SchedulePurge runs an orphan-image purge on the background pool.
func (c *Coordinator) SchedulePurge() {
	c.pool.Submit(func() {
		removed, err := c.Images.PurgeOrphans()
		if err != nil {
			log.Printf("albumsync: orphan purge failed: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("albumsync: purged %d orphan image(s)", removed)
		}
	})
}

// Stop cancels every in-flight refresh and waits for the background pool.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	flights := make([]*flight, 0, len(c.inFlight))
	for _, f := range c.inFlight {
		f.cancel()
		flights = append(flights, f)
	}
	c.mu.Unlock()
	for _, f := range flights {
		<-f.done
	}
	c.pool.StopAndWait()
}
