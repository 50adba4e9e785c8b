package uploads

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/models"
	"github.com/camden-git/piwigosync/piwigo"
	"github.com/camden-git/piwigosync/repository"
)

const (
	defaultChunkSize   = 512 * 1024
	defaultMaxAttempts = 5 // stop auto-retrying after 5 failures
	retryCycleInterval = 30 * time.Second
)

// Engine drives the upload queue. A single worker advances one request at
// a time through prepare, transfer and finalize; every state transition is
// persisted and published, and the worker re-evaluates "next request" after
// each terminal or error transition so a freed slot is reused immediately.
type Engine struct {
	Gateway piwigo.Gateway
	Uploads repository.UploadRepositoryInterface
	Events  Publisher

	TmpDir      string
	ChunkSize   int
	MaxAttempts int
	AutoRetry   bool

	WakeChan chan struct{}
	StopChan chan struct{}
	Wg       sync.WaitGroup

	mu        sync.Mutex
	suspended bool // set on auth failure, cleared by an explicit resume
}

// NewEngine creates the engine and starts its worker.
func NewEngine(gw piwigo.Gateway, uploads repository.UploadRepositoryInterface, events Publisher, tmpDir string, autoRetry bool) *Engine {
	if events == nil {
		events = NopPublisher{}
	}
	e := &Engine{
		Gateway:     gw,
		Uploads:     uploads,
		Events:      events,
		TmpDir:      tmpDir,
		ChunkSize:   defaultChunkSize,
		MaxAttempts: defaultMaxAttempts,
		AutoRetry:   autoRetry,
		WakeChan:    make(chan struct{}, 1),
		StopChan:    make(chan struct{}),
	}
	e.recoverStuck()
	e.Wg.Add(1)
	go e.worker()
	log.Println("upload engine started")
	return e
}

// recoverStuck requeues requests a previous process left mid-stage.
func (e *Engine) recoverStuck() {
	stuck, err := e.Uploads.ListByStates([]models.UploadState{
		models.UploadStatePreparing,
		models.UploadStateUploading,
		models.UploadStateFinishing,
	})
	if err != nil {
		log.Printf("uploads: could not list stuck requests: %v", err)
		return
	}
	for _, req := range stuck {
		if err := e.Uploads.SetState(req.LocalIdentifier, models.UploadStateWaiting, nil); err != nil {
			log.Printf("uploads: could not requeue %s: %v", req.LocalIdentifier, err)
		}
	}
	if len(stuck) > 0 {
		log.Printf("uploads: requeued %d request(s) interrupted mid-stage", len(stuck))
	}
}

func (e *Engine) worker() {
	defer e.Wg.Done()
	ticker := time.NewTicker(retryCycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.WakeChan:
			e.cycle()
		case <-ticker.C:
			e.cycle()
		case <-e.StopChan:
			log.Println("upload worker stopping")
			return
		}
	}
}

// cycle drains the queue until no request is runnable or a global
// precondition failure (authentication) halts processing. A halted queue
// stays suspended, retry ticks included, until an explicit resume.
func (e *Engine) cycle() {
	if e.isSuspended() {
		return
	}
	for {
		select {
		case <-e.StopChan:
			return
		default:
		}

		if e.AutoRetry {
			e.requeueRetryable()
		}

		// another engine on the same database may hold the single
		// active slot
		active, err := e.Uploads.AnyActive()
		if err != nil {
			log.Printf("uploads: could not check for active requests: %v", err)
			return
		}
		if active {
			return
		}

		req, err := e.Uploads.NextWaiting()
		if err != nil {
			log.Printf("uploads: could not find next request: %v", err)
			return
		}
		if req == nil {
			return
		}
		if halt := e.process(req); halt {
			e.suspend()
			return
		}
	}
}

func (e *Engine) suspend() {
	e.mu.Lock()
	e.suspended = true
	e.mu.Unlock()
	log.Println("uploads: authentication failed, queue suspended until resume")
}

func (e *Engine) isSuspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

func (e *Engine) clearSuspension() {
	e.mu.Lock()
	e.suspended = false
	e.mu.Unlock()
}

// requeueRetryable moves resumable errors under the attempt cap back to
// waiting for the next pick.
func (e *Engine) requeueRetryable() {
	failed, err := e.Uploads.ListByStates(models.ResumableStates)
	if err != nil {
		log.Printf("uploads: could not list resumable requests: %v", err)
		return
	}
	for _, req := range failed {
		if req.Attempts >= e.MaxAttempts {
			continue
		}
		if err := e.Uploads.SetState(req.LocalIdentifier, models.UploadStateWaiting, nil); err != nil {
			log.Printf("uploads: could not requeue %s: %v", req.LocalIdentifier, err)
		}
	}
}

// process runs one request through the whole pipeline. It returns true
// when the worker cycle must halt (auth failure: a global precondition all
// requests share).
func (e *Engine) process(req *models.UploadRequest) bool {
	ctx := context.Background()

	if _, err := e.Uploads.IncrementAttempts(req.LocalIdentifier); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false // canceled under our feet
		}
		log.Printf("uploads: could not count attempt for %s: %v", req.LocalIdentifier, err)
	}

	// prepare
	e.setState(req.LocalIdentifier, models.UploadStatePreparing, nil)
	prepared, failState, err := e.prepare(req)
	if err != nil {
		e.setState(req.LocalIdentifier, failState, err)
		return false
	}
	if err := e.Uploads.SetPrepared(req.LocalIdentifier, prepared.Path, prepared.FileSize); err != nil {
		log.Printf("uploads: could not store prepared file for %s: %v", req.LocalIdentifier, err)
	}
	if !e.stillWanted(req.LocalIdentifier) {
		e.removeTempFile(prepared.Path)
		return false
	}
	e.setState(req.LocalIdentifier, models.UploadStatePrepared, nil)

	// transfer
	e.setState(req.LocalIdentifier, models.UploadStateUploading, nil)
	if err := e.transfer(ctx, req, prepared); err != nil {
		state, halt := classifyRemoteErr(err, models.UploadStateUploadingError, models.UploadStateUploadingFail)
		e.setState(req.LocalIdentifier, state, err)
		return halt
	}
	if !e.stillWanted(req.LocalIdentifier) {
		e.removeTempFile(prepared.Path)
		return false
	}
	e.setState(req.LocalIdentifier, models.UploadStateUploaded, nil)

	// finalize
	e.setState(req.LocalIdentifier, models.UploadStateFinishing, nil)
	finalized, err := e.Gateway.FinalizeUpload(ctx, &piwigo.FinalizeRequest{
		LocalIdentifier: req.LocalIdentifier,
		FileName:        req.FileName,
		Title:           req.FileName,
		AlbumID:         req.AlbumID,
		DateCreated:     prepared.DateCreated,
	})
	if err != nil {
		state, halt := classifyRemoteErr(err, models.UploadStateFinishingError, models.UploadStateFinishingFail)
		e.setState(req.LocalIdentifier, state, err)
		return halt
	}
	if finalized.ImageID != 0 {
		if err := e.Uploads.SetServerImageID(req.LocalIdentifier, finalized.ImageID); err != nil {
			log.Printf("uploads: could not store server image ID for %s: %v", req.LocalIdentifier, err)
		}
	}

	e.removeTempFile(prepared.Path)
	if finalized.Moderated {
		e.setState(req.LocalIdentifier, models.UploadStateModerated, nil)
	} else {
		e.setState(req.LocalIdentifier, models.UploadStateFinished, nil)
	}
	return false
}

// transfer streams the prepared file to the server in chunks, reporting
// monotonic progress after each acknowledged chunk.
func (e *Engine) transfer(ctx context.Context, req *models.UploadRequest, prepared *PreparedAsset) error {
	data, err := os.ReadFile(prepared.Path)
	if err != nil {
		return transientStage("read prepared file", err)
	}

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	chunkCount := (len(data) + chunkSize - 1) / chunkSize
	if chunkCount == 0 {
		chunkCount = 1
	}

	for i := 0; i < chunkCount; i++ {
		select {
		case <-e.StopChan:
			return transientStage("transfer interrupted", context.Canceled)
		default:
		}
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		err := e.Gateway.UploadChunk(ctx, &piwigo.UploadChunkRequest{
			LocalIdentifier: req.LocalIdentifier,
			FileName:        req.FileName,
			AlbumID:         req.AlbumID,
			Chunk:           data[start:end],
			ChunkIndex:      i,
			ChunkCount:      chunkCount,
		})
		if err != nil {
			return err
		}
		progress := float64(i+1) / float64(chunkCount)
		if err := e.Uploads.SetProgress(req.LocalIdentifier, progress); err != nil {
			log.Printf("uploads: could not store progress for %s: %v", req.LocalIdentifier, err)
		}
		e.Events.PublishUploadEvent(Event{RequestID: req.LocalIdentifier, State: models.UploadStateUploading, Progress: progress})
	}
	return nil
}

// stillWanted re-validates that the request was not canceled while a slow
// stage ran.
func (e *Engine) stillWanted(localIdentifier string) bool {
	req, err := e.Uploads.GetByID(localIdentifier)
	if err != nil {
		return false
	}
	return req.State != models.UploadStateDeleted
}

func (e *Engine) setState(localIdentifier string, state models.UploadState, stageErr error) {
	var errText *string
	event := Event{RequestID: localIdentifier, State: state}
	if stageErr != nil {
		s := stageErr.Error()
		errText = &s
		event.Error = s
	}
	if err := e.Uploads.SetState(localIdentifier, state, errText); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("uploads: could not set state %s for %s: %v", state, localIdentifier, err)
		return
	}
	e.Events.PublishUploadEvent(event)
}

// Enqueue adds a local file to the queue and wakes the worker.
func (e *Engine) Enqueue(sourcePath string, albumID int64, fileName string, resizeMaxPixels int, stripMetadata bool) (*models.UploadRequest, error) {
	req := &models.UploadRequest{
		LocalIdentifier: sourcePath,
		SourcePath:      sourcePath,
		AlbumID:         albumID,
		FileName:        fileName,
		State:           models.UploadStateWaiting,
		ResizeMaxPixels: resizeMaxPixels,
		StripMetadata:   stripMetadata,
	}
	if err := e.Uploads.Create(req); err != nil {
		return nil, err
	}
	e.Events.PublishUploadEvent(Event{RequestID: req.LocalIdentifier, State: req.State})
	e.Wake()
	return req, nil
}

// Resume moves the given resumable-failed requests back to waiting. It
// returns how many were actually resumed.
func (e *Engine) Resume(localIdentifiers []string) (int, error) {
	e.clearSuspension()
	resumed := 0
	for _, id := range localIdentifiers {
		req, err := e.Uploads.GetByID(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return resumed, err
		}
		if !req.State.IsResumable() {
			continue
		}
		if err := e.Uploads.SetState(id, models.UploadStateWaiting, nil); err != nil {
			return resumed, err
		}
		e.Events.PublishUploadEvent(Event{RequestID: id, State: models.UploadStateWaiting})
		resumed++
	}
	e.Wake()
	return resumed, nil
}

// ResumeAllFailed resumes the whole resumable bucket and returns the count.
func (e *Engine) ResumeAllFailed() (int64, error) {
	e.clearSuspension()
	count, err := e.Uploads.ResumeAllFailed()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.Wake()
	}
	return count, nil
}

// ClearImpossible deletes the whole impossible bucket, releasing any temp
// files the cleared requests still owned, and returns the count.
func (e *Engine) ClearImpossible() (int64, error) {
	cleared, err := e.Uploads.ClearImpossible()
	if err != nil {
		return 0, err
	}
	for _, req := range cleared {
		if req.PreparedPath != nil {
			e.removeTempFile(*req.PreparedPath)
		}
	}
	return int64(len(cleared)), nil
}

// Cancel transitions a request to deleted from any non-terminal state and
// releases its temp file.
func (e *Engine) Cancel(localIdentifier string) error {
	req, err := e.Uploads.GetByID(localIdentifier)
	if err != nil {
		return err
	}
	if req.State.IsTerminal() {
		return fmt.Errorf("upload %s already in terminal state %s", localIdentifier, req.State)
	}
	e.setState(localIdentifier, models.UploadStateDeleted, nil)
	if req.PreparedPath != nil {
		e.removeTempFile(*req.PreparedPath)
	}
	return nil
}

// HasInFlight reports whether any request still has work pending. The
// presentation layer keeps the device awake while this holds.
func (e *Engine) HasInFlight() (bool, error) {
	reqs, err := e.Uploads.ListByStates([]models.UploadState{
		models.UploadStateWaiting,
		models.UploadStatePreparing,
		models.UploadStatePrepared,
		models.UploadStateUploading,
		models.UploadStateUploaded,
		models.UploadStateFinishing,
	})
	if err != nil {
		return false, err
	}
	return len(reqs) > 0, nil
}

// Wake nudges the worker without blocking.
func (e *Engine) Wake() {
	select {
	case e.WakeChan <- struct{}{}:
	default:
	}
}

func (e *Engine) removeTempFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("uploads: could not remove temp file %s: %v", path, err)
	}
}

// Stop shuts the worker down and waits for it.
func (e *Engine) Stop() {
	close(e.StopChan)
	e.Wg.Wait()
	log.Println("upload engine stopped")
}

// classifyRemoteErr maps a gateway failure to the stage's error state. It
// also reports whether the worker cycle must halt: auth failures are a
// global precondition failure no other request can get past either.
func classifyRemoteErr(err error, errState, failState models.UploadState) (models.UploadState, bool) {
	switch {
	case piwigo.IsAuth(err):
		return errState, true
	case piwigo.IsTransient(err):
		return errState, false
	default:
		return failState, false
	}
}

func transientStage(msg string, err error) error {
	return &piwigo.APIError{Kind: piwigo.ErrKindTransient, Message: msg, Err: err}
}
