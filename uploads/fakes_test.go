package uploads

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
)

// fakeUploadRepo is an in-memory queue store. It also watches the single-
// active invariant: entering preparing/uploading/finishing while another
// request holds the slot records a violation.
type fakeUploadRepo struct {
	mu         sync.Mutex
	reqs       map[string]*models.UploadRequest
	order      []string
	seq        int64
	violations []string
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{reqs: make(map[string]*models.UploadRequest)}
}

func isActive(s models.UploadState) bool {
	return s == models.UploadStatePreparing || s == models.UploadStateUploading || s == models.UploadStateFinishing
}

func (f *fakeUploadRepo) Create(req *models.UploadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reqs[req.LocalIdentifier]; ok {
		return fmt.Errorf("duplicate upload request %s", req.LocalIdentifier)
	}
	f.seq++
	req.CreatedAt = f.seq
	if req.State == "" {
		req.State = models.UploadStateWaiting
	}
	copied := *req
	f.reqs[req.LocalIdentifier] = &copied
	f.order = append(f.order, req.LocalIdentifier)
	return nil
}

func (f *fakeUploadRepo) GetByID(id string) (*models.UploadRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *req
	return &copied, nil
}

func (f *fakeUploadRepo) ListAll() ([]models.UploadRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UploadRequest
	for _, id := range f.order {
		if req, ok := f.reqs[id]; ok {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeUploadRepo) ListByStates(states []models.UploadState) ([]models.UploadRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UploadRequest
	for _, id := range f.order {
		req, ok := f.reqs[id]
		if !ok {
			continue
		}
		for _, s := range states {
			if req.State == s {
				out = append(out, *req)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeUploadRepo) NextWaiting() (*models.UploadRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var waiting []*models.UploadRequest
	for _, req := range f.reqs {
		if req.State == models.UploadStateWaiting {
			waiting = append(waiting, req)
		}
	}
	if len(waiting) == 0 {
		return nil, nil
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].CreatedAt < waiting[j].CreatedAt })
	copied := *waiting[0]
	return &copied, nil
}

func (f *fakeUploadRepo) AnyActive() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.reqs {
		if isActive(req.State) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUploadRepo) SetState(id string, state models.UploadState, errText *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if isActive(state) && !isActive(req.State) {
		for otherID, other := range f.reqs {
			if otherID != id && isActive(other.State) {
				f.violations = append(f.violations, fmt.Sprintf("%s entered %s while %s was %s", id, state, otherID, other.State))
			}
		}
	}
	req.State = state
	req.Error = errText
	if state == models.UploadStateWaiting {
		req.Progress = 0
	}
	return nil
}

func (f *fakeUploadRepo) SetProgress(id string, progress float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if progress >= req.Progress {
		req.Progress = progress
	}
	return nil
}

func (f *fakeUploadRepo) SetPrepared(id string, path string, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	req.PreparedPath = &path
	req.FileSize = size
	return nil
}

func (f *fakeUploadRepo) SetServerImageID(id string, pwgImageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	req.PwgImageID = &pwgImageID
	return nil
}

func (f *fakeUploadRepo) IncrementAttempts(id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	req.Attempts++
	return req.Attempts, nil
}

func (f *fakeUploadRepo) ResumeAllFailed() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, req := range f.reqs {
		if req.State.IsResumable() {
			req.State = models.UploadStateWaiting
			req.Error = nil
			req.Progress = 0
			req.Attempts = 0
			count++
		}
	}
	return count, nil
}

func (f *fakeUploadRepo) ClearImpossible() ([]models.UploadRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cleared []models.UploadRequest
	for id, req := range f.reqs {
		if req.State.IsImpossible() {
			cleared = append(cleared, *req)
			delete(f.reqs, id)
		}
	}
	return cleared, nil
}

func (f *fakeUploadRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reqs[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.reqs, id)
	return nil
}

// fakeUploadGateway answers upload and finalize calls with configurable
// failures.
type fakeUploadGateway struct {
	mu          sync.Mutex
	uploadErr   error
	finalizeErr error
	moderated   bool
	chunks      int
	nextImageID int64
}

func (g *fakeUploadGateway) setUploadErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploadErr = err
}

func (g *fakeUploadGateway) setFinalizeErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finalizeErr = err
}

func (g *fakeUploadGateway) ListImages(ctx context.Context, albumID int64, query, sort string, page, perPage int) (*piwigo.Page, error) {
	return &piwigo.Page{}, nil
}

func (g *fakeUploadGateway) ListSubAlbums(ctx context.Context, parentID int64) ([]piwigo.AlbumSummary, error) {
	return nil, nil
}

func (g *fakeUploadGateway) GetImageInfo(ctx context.Context, imageID int64) (*piwigo.ImageData, error) {
	return &piwigo.ImageData{ID: imageID}, nil
}

func (g *fakeUploadGateway) UploadChunk(ctx context.Context, req *piwigo.UploadChunkRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.uploadErr != nil {
		return g.uploadErr
	}
	g.chunks++
	return nil
}

func (g *fakeUploadGateway) FinalizeUpload(ctx context.Context, req *piwigo.FinalizeRequest) (*piwigo.FinalizeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finalizeErr != nil {
		return nil, g.finalizeErr
	}
	g.nextImageID++
	return &piwigo.FinalizeResult{ImageID: g.nextImageID, Moderated: g.moderated}, nil
}
