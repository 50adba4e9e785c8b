package uploads

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/facette/natsort"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/models"
)

// clipboardPrefix marks requests whose identifier is synthetic because the
// asset did not come from a stable local path.
const clipboardPrefix = "Clipboard-"

// ScanDirectory enqueues every acceptable asset found directly in dir for
// upload to albumID, in natural filename order. Files already queued are
// skipped. It returns the number of newly enqueued requests.
func (e *Engine) ScanDirectory(dir string, albumID int64, resizeMaxPixels int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan upload directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsAcceptedAsset(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	natsort.Sort(names)

	enqueued := 0
	for _, name := range names {
		sourcePath := filepath.Join(dir, name)
		_, err := e.Uploads.GetByID(sourcePath)
		if err == nil {
			continue // already queued
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return enqueued, err
		}
		if _, err := e.Enqueue(sourcePath, albumID, name, resizeMaxPixels, false); err != nil {
			log.Printf("uploads: could not enqueue %s: %v", sourcePath, err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		log.Printf("uploads: enqueued %d asset(s) from %s for album %d", enqueued, dir, albumID)
	}
	return enqueued, nil
}

// EnqueueBytes stores pasted data as a temp source file under a synthetic
// clipboard identifier and queues it.
func (e *Engine) EnqueueBytes(data []byte, fileName string, albumID int64) (*models.UploadRequest, error) {
	if !IsAcceptedAsset(fileName) {
		return nil, fmt.Errorf("unsupported asset format %q", filepath.Ext(fileName))
	}
	if err := os.MkdirAll(e.TmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory %s: %w", e.TmpDir, err)
	}

	identifier := clipboardPrefix + uuid.NewString()
	sourcePath := filepath.Join(e.TmpDir, identifier+filepath.Ext(fileName))
	if err := os.WriteFile(sourcePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to store pasted asset: %w", err)
	}

	req := &models.UploadRequest{
		LocalIdentifier: identifier,
		SourcePath:      sourcePath,
		AlbumID:         albumID,
		FileName:        fileName,
		State:           models.UploadStateWaiting,
	}
	if err := e.Uploads.Create(req); err != nil {
		if rmErr := os.Remove(sourcePath); rmErr != nil {
			log.Printf("uploads: could not remove clipboard temp %s: %v", sourcePath, rmErr)
		}
		return nil, err
	}
	e.Events.PublishUploadEvent(Event{RequestID: req.LocalIdentifier, State: req.State})
	e.Wake()
	return req, nil
}

// SweepTempFiles deletes temp files no live request owns anymore. It runs
// at startup and periodically from main.
func (e *Engine) SweepTempFiles() error {
	entries, err := os.ReadDir(e.TmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read temp directory %s: %w", e.TmpDir, err)
	}

	reqs, err := e.Uploads.ListAll()
	if err != nil {
		return err
	}
	owned := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		if req.PreparedPath != nil {
			owned[filepath.Base(*req.PreparedPath)] = struct{}{}
		}
		if req.SourcePath != "" && filepath.Dir(req.SourcePath) == filepath.Clean(e.TmpDir) {
			owned[filepath.Base(req.SourcePath)] = struct{}{}
		}
	}

	swept := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := owned[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(e.TmpDir, entry.Name())); err != nil {
			log.Printf("uploads: could not sweep temp file %s: %v", entry.Name(), err)
			continue
		}
		swept++
	}
	if swept > 0 {
		log.Printf("uploads: swept %d orphaned temp file(s)", swept)
	}
	return nil
}
