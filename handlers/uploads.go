package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/repository"
	"github.com/camden-git/piwigosync/uploads"
)

// UploadHandler exposes the upload queue and its batch actions.
type UploadHandler struct {
	Engine  *uploads.Engine
	Uploads repository.UploadRepositoryInterface
}

// ListUploads returns the whole queue in creation order.
func (uh *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	reqs, err := uh.Uploads.ListAll()
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "uploads_list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// EnqueueUpload adds a local file to the queue.
func (uh *UploadHandler) EnqueueUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourcePath      string `json:"source_path"`
		AlbumID         int64  `json:"album_id"`
		FileName        string `json:"file_name"`
		ResizeMaxPixels int    `json:"resize_max_pixels"`
		StripMetadata   bool   `json:"strip_metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if body.SourcePath == "" || body.AlbumID == 0 {
		WriteAPIError(w, http.StatusBadRequest, "missing_fields", "source_path and album_id are required")
		return
	}
	if body.FileName == "" {
		body.FileName = body.SourcePath
	}

	req, err := uh.Engine.Enqueue(body.SourcePath, body.AlbumID, body.FileName, body.ResizeMaxPixels, body.StripMetadata)
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "enqueue_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ResumeUploads resumes failed uploads. With an "ids" list only those are
// resumed; without one the whole resumable bucket is. The response is a
// single summary, not per-item results.
func (uh *UploadHandler) ResumeUploads(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
			return
		}
	}

	if len(body.IDs) > 0 {
		count, err := uh.Engine.Resume(body.IDs)
		if err != nil {
			WriteAPIError(w, http.StatusInternalServerError, "resume_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"resumed": count})
		return
	}

	count, err := uh.Engine.ResumeAllFailed()
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "resume_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"resumed": count})
}

// ClearImpossible deletes every permanently failed request and reports the
// count.
func (uh *UploadHandler) ClearImpossible(w http.ResponseWriter, r *http.Request) {
	count, err := uh.Engine.ClearImpossible()
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": count})
}

// CancelUpload moves one request to the deleted state.
func (uh *UploadHandler) CancelUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "upload_id")
	if err := uh.Engine.Cancel(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "upload_not_found", "no such upload request")
			return
		}
		WriteAPIError(w, http.StatusConflict, "cancel_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// QueueStatus reports whether any request still has work pending, so the
// client can hold or release its sleep inhibitor.
func (uh *UploadHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	inFlight, err := uh.Engine.HasInFlight()
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"in_flight": inFlight})
}
