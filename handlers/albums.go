package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/albumsync"
	"github.com/camden-git/piwigosync/repository"
)

// AlbumHandler exposes the cached album tree and refresh commands.
type AlbumHandler struct {
	Albums      repository.AlbumRepositoryInterface
	Coordinator *albumsync.Coordinator
}

func (ah *AlbumHandler) parseAlbumID(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "album_id")
	return strconv.ParseInt(idStr, 10, 64)
}

// ListAlbums returns every cached album.
func (ah *AlbumHandler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := ah.Albums.ListAll()
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "albums_list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, albums)
}

// GetAlbum returns one cached album with its current image IDs.
func (ah *AlbumHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := ah.parseAlbumID(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_album_id", "album ID must be an integer")
		return
	}

	album, err := ah.Albums.GetByID(albumID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "album_not_found", "album is not cached")
			return
		}
		WriteAPIError(w, http.StatusInternalServerError, "album_get_failed", err.Error())
		return
	}

	imageIDs, err := ah.Albums.GetImageIDs(albumID)
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "album_get_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"album":      album,
		"image_ids":  imageIDs,
		"refreshing": ah.Coordinator.IsRefreshing(albumID),
	})
}

// RefreshAlbum starts a background reconciliation pass for the album.
// Duplicate requests while one is running are rejected with 409.
func (ah *AlbumHandler) RefreshAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := ah.parseAlbumID(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_album_id", "album ID must be an integer")
		return
	}
	query := r.URL.Query().Get("q")

	if err := ah.Coordinator.Refresh(r.Context(), albumID, query); err != nil {
		if errors.Is(err, albumsync.ErrRefreshInFlight) {
			WriteAPIError(w, http.StatusConflict, "refresh_in_flight", "a refresh for this album is already running")
			return
		}
		WriteAPIError(w, http.StatusInternalServerError, "refresh_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// CancelRefresh cancels a running reconciliation pass.
func (ah *AlbumHandler) CancelRefresh(w http.ResponseWriter, r *http.Request) {
	albumID, err := ah.parseAlbumID(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_album_id", "album ID must be an integer")
		return
	}
	if !ah.Coordinator.CancelRefresh(albumID) {
		WriteAPIError(w, http.StatusNotFound, "no_refresh_in_flight", "no refresh is running for this album")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// RefreshSubAlbums synchronizes the cached children of an album.
func (ah *AlbumHandler) RefreshSubAlbums(w http.ResponseWriter, r *http.Request) {
	albumID, err := ah.parseAlbumID(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_album_id", "album ID must be an integer")
		return
	}

	if err := ah.Coordinator.RefreshSubAlbums(r.Context(), albumID); err != nil {
		if errors.Is(err, albumsync.ErrAlbumGone) {
			WriteAPIError(w, http.StatusGone, "album_gone", "album no longer exists on the server")
			return
		}
		WriteAPIError(w, http.StatusBadGateway, "subalbum_refresh_failed", err.Error())
		return
	}

	children, err := ah.Albums.ListChildren(albumID)
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "albums_list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, children)
}
