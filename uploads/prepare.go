package uploads

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/camden-git/piwigosync/models"
)

// file formats accepted for upload without conversion
var acceptedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
	".heic": true,
}

var acceptedMovieExtensions = map[string]bool{
	".mov":  true,
	".mp4":  true,
	".m4v":  true,
	".mpg":  true,
	".mpeg": true,
	".avi":  true,
}

// IsAcceptedAsset checks if the filename has an extension the pipeline can
// upload
func IsAcceptedAsset(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return acceptedImageExtensions[ext] || acceptedMovieExtensions[ext] || ext == ".pdf"
}

// PreparedAsset is the output of the preparation stage: a temp file owned
// by the engine until the request reaches a terminal state.
type PreparedAsset struct {
	Path        string
	FileSize    int64
	DateCreated *int64 // Unix timestamp from EXIF, when present
}

// prepare reads the source asset and produces the file to transfer,
// resizing and re-encoding raster images when the request asks for it.
// On failure it returns the state the request must move to: preparingFail
// for a missing asset, formatError for content the pipeline cannot handle,
// preparingError for transient local failures.
func (e *Engine) prepare(req *models.UploadRequest) (*PreparedAsset, models.UploadState, error) {
	info, statErr := os.Stat(req.SourcePath)
	if os.IsNotExist(statErr) {
		return nil, models.UploadStatePreparingFail, fmt.Errorf("source asset not found: %w", statErr)
	}
	if statErr != nil {
		return nil, models.UploadStatePreparingError, fmt.Errorf("failed to stat source asset: %w", statErr)
	}

	ext := strings.ToLower(filepath.Ext(req.SourcePath))
	if !IsAcceptedAsset(req.SourcePath) {
		return nil, models.UploadStateFormatError, fmt.Errorf("unsupported asset format %q", ext)
	}

	if err := os.MkdirAll(e.TmpDir, 0755); err != nil {
		return nil, models.UploadStatePreparingError, fmt.Errorf("failed to create temp directory %s: %w", e.TmpDir, err)
	}

	dateCreated := exifDateCreated(req.SourcePath)

	// raster images may need a resize + re-encode pass
	if acceptedImageExtensions[ext] && req.ResizeMaxPixels > 0 {
		img, err := imaging.Open(req.SourcePath)
		if err != nil {
			return nil, models.UploadStateFormatError, fmt.Errorf("failed to decode image %s: %w", req.SourcePath, err)
		}
		resized := imaging.Fit(img, req.ResizeMaxPixels, req.ResizeMaxPixels, imaging.Lanczos)

		tmpPath := filepath.Join(e.TmpDir, uuid.NewString()+".jpg")
		if err := imaging.Save(resized, tmpPath, imaging.JPEGQuality(85)); err != nil {
			return nil, models.UploadStatePreparingError, fmt.Errorf("failed to save resized image: %w", err)
		}
		saved, err := os.Stat(tmpPath)
		if err != nil {
			return nil, models.UploadStatePreparingError, fmt.Errorf("failed to stat resized image: %w", err)
		}
		return &PreparedAsset{Path: tmpPath, FileSize: saved.Size(), DateCreated: dateCreated}, "", nil
	}

	// everything else is copied untouched
	tmpPath := filepath.Join(e.TmpDir, uuid.NewString()+ext)
	if err := copyFile(req.SourcePath, tmpPath); err != nil {
		return nil, models.UploadStatePreparingError, fmt.Errorf("failed to copy asset to temp file: %w", err)
	}
	return &PreparedAsset{Path: tmpPath, FileSize: info.Size(), DateCreated: dateCreated}, "", nil
}

// exifDateCreated extracts the EXIF original date, when the file carries
// one. Missing or unreadable EXIF is not an error.
func exifDateCreated(path string) *int64 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	exifData, err := exif.Decode(f)
	if err != nil {
		return nil
	}
	t, err := exifData.DateTime()
	if err != nil {
		return nil
	}
	unix := t.Unix()
	return &unix
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		if rmErr := os.Remove(dst); rmErr != nil {
			log.Printf("uploads: could not remove partial temp file %s: %v", dst, rmErr)
		}
		return err
	}
	return out.Close()
}
