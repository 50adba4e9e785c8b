package albumsync

import (
	"context"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
)

// in-memory stand-ins for the repositories and the gateway

type fakeAlbumRepo struct {
	mu        sync.Mutex
	albums    map[int64]*models.Album
	images    map[int64]map[int64]struct{} // albumID -> image IDs
	removeErr error                        // forced RemoveImages failure
}

func newFakeAlbumRepo() *fakeAlbumRepo {
	return &fakeAlbumRepo{
		albums: make(map[int64]*models.Album),
		images: make(map[int64]map[int64]struct{}),
	}
}

func (f *fakeAlbumRepo) seed(albumID int64, imageIDs ...int64) *models.Album {
	f.mu.Lock()
	defer f.mu.Unlock()
	album := &models.Album{PwgID: albumID, NbImages: int64(len(imageIDs)), TotalNbImages: int64(len(imageIDs))}
	f.albums[albumID] = album
	set := make(map[int64]struct{})
	for _, id := range imageIDs {
		set[id] = struct{}{}
	}
	f.images[albumID] = set
	copied := *album
	return &copied
}

func (f *fakeAlbumRepo) GetByID(pwgID int64) (*models.Album, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[pwgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *album
	return &copied, nil
}

func (f *fakeAlbumRepo) GetOrCreate(pwgID int64, parentID *int64) (*models.Album, error) {
	f.mu.Lock()
	if album, ok := f.albums[pwgID]; ok {
		copied := *album
		f.mu.Unlock()
		return &copied, nil
	}
	album := &models.Album{PwgID: pwgID, NbImages: models.CountUnknown, TotalNbImages: models.CountUnknown, ParentID: parentID}
	f.albums[pwgID] = album
	f.images[pwgID] = make(map[int64]struct{})
	copied := *album
	f.mu.Unlock()
	return &copied, nil
}

func (f *fakeAlbumRepo) ListAll() ([]models.Album, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var albums []models.Album
	for _, album := range f.albums {
		albums = append(albums, *album)
	}
	return albums, nil
}

func (f *fakeAlbumRepo) ListChildren(parentID int64) ([]models.Album, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var albums []models.Album
	for _, album := range f.albums {
		if album.ParentID != nil && *album.ParentID == parentID {
			albums = append(albums, *album)
		}
	}
	return albums, nil
}

func (f *fakeAlbumRepo) UpsertFromSummary(summary piwigo.AlbumSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[summary.ID]
	if !ok {
		album = &models.Album{PwgID: summary.ID}
		f.albums[summary.ID] = album
		f.images[summary.ID] = make(map[int64]struct{})
	}
	album.Name = summary.Name
	album.NbImages = summary.NbImages
	album.TotalNbImages = summary.TotalNbImages
	album.ParentID = summary.ParentID
	return nil
}

func (f *fakeAlbumRepo) SetCounts(pwgID, nbImages, totalNbImages int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[pwgID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	album.NbImages = nbImages
	album.TotalNbImages = totalNbImages
	return nil
}

func (f *fakeAlbumRepo) MarkCountsUnknown(pwgID int64) error {
	return f.SetCounts(pwgID, models.CountUnknown, models.CountUnknown)
}

func (f *fakeAlbumRepo) SetListingCompleted(pwgID int64, completedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[pwgID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	album.DateGetImages = &completedAt
	return nil
}

func (f *fakeAlbumRepo) SetQuery(pwgID int64, query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[pwgID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	album.Query = query
	return nil
}

func (f *fakeAlbumRepo) Delete(pwgID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.albums[pwgID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.albums, pwgID)
	delete(f.images, pwgID)
	return nil
}

func (f *fakeAlbumRepo) GetImageIDs(pwgID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.images[pwgID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeAlbumRepo) AddImages(pwgID int64, images []models.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.images[pwgID]
	if !ok {
		set = make(map[int64]struct{})
		f.images[pwgID] = set
	}
	for _, img := range images {
		set[img.PwgID] = struct{}{}
	}
	return nil
}

func (f *fakeAlbumRepo) RemoveImages(pwgID int64, imageIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	set := f.images[pwgID]
	for _, id := range imageIDs {
		delete(set, id)
	}
	return nil
}

type fakeImageRepo struct {
	mu         sync.Mutex
	purgeCalls int
}

func (f *fakeImageRepo) GetByID(pwgID int64) (*models.Image, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeImageRepo) UpsertMany(images []models.Image) error { return nil }

func (f *fakeImageRepo) UpdateFullMetadata(data *piwigo.ImageData) error { return nil }

func (f *fakeImageRepo) PurgeOrphans() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeCalls++
	return 0, nil
}

// fakeGateway serves listings from a canned page table.
type fakeGateway struct {
	mu         sync.Mutex
	pages      map[int][]int64 // page index -> image IDs
	totalCount int64
	failAt     int   // page index that fails, -1 for never
	failAlbum  int64 // restrict failAt to one album, 0 for all
	failWith   error
	requested  []int
	subAlbums  []piwigo.AlbumSummary
	subErr     error
	onPage     func(page int) // runs before a page is served
}

func newFakeGateway(totalCount int64, pages map[int][]int64) *fakeGateway {
	return &fakeGateway{pages: pages, totalCount: totalCount, failAt: -1}
}

func (g *fakeGateway) ListImages(ctx context.Context, albumID int64, query, sort string, page, perPage int) (*piwigo.Page, error) {
	g.mu.Lock()
	hook := g.onPage
	g.mu.Unlock()
	if hook != nil {
		hook(page)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if page == g.failAt && (g.failAlbum == 0 || g.failAlbum == albumID) {
		err := g.failWith
		if err == nil {
			err = &piwigo.APIError{Kind: piwigo.ErrKindTransient, Message: "boom"}
		}
		return nil, err
	}
	g.requested = append(g.requested, page)

	result := &piwigo.Page{TotalCount: g.totalCount, CanDownload: true}
	for _, id := range g.pages[page] {
		result.Images = append(result.Images, piwigo.ImageData{ID: id})
	}
	return result, nil
}

func (g *fakeGateway) ListSubAlbums(ctx context.Context, parentID int64) ([]piwigo.AlbumSummary, error) {
	if g.subErr != nil {
		return nil, g.subErr
	}
	return g.subAlbums, nil
}

func (g *fakeGateway) GetImageInfo(ctx context.Context, imageID int64) (*piwigo.ImageData, error) {
	return &piwigo.ImageData{ID: imageID}, nil
}

func (g *fakeGateway) UploadChunk(ctx context.Context, req *piwigo.UploadChunkRequest) error {
	return nil
}

func (g *fakeGateway) FinalizeUpload(ctx context.Context, req *piwigo.FinalizeRequest) (*piwigo.FinalizeResult, error) {
	return &piwigo.FinalizeResult{ImageID: 1}, nil
}

func (g *fakeGateway) requestedPages() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.requested...)
}
