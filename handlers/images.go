package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/piwigosync/piwigo"
	"github.com/camden-git/piwigosync/repository"
)

// ImageHandler exposes cached image metadata, completing it from the
// server on demand.
type ImageHandler struct {
	Images  repository.ImageRepositoryInterface
	Gateway piwigo.Gateway
}

// GetImage returns one cached image. Rows that only carry listing data
// are completed from the server first, so callers always see the full
// metadata of the image they asked for.
func (ih *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "image_id")
	imageID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_image_id", "image ID must be an integer")
		return
	}

	image, err := ih.Images.GetByID(imageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "image_not_found", "image is not cached")
			return
		}
		WriteAPIError(w, http.StatusInternalServerError, "image_get_failed", err.Error())
		return
	}

	if !image.HasFullMetadata() {
		data, err := ih.Gateway.GetImageInfo(r.Context(), imageID)
		if err != nil {
			if piwigo.IsNotFound(err) {
				WriteAPIError(w, http.StatusGone, "image_gone", "image no longer exists on the server")
				return
			}
			WriteAPIError(w, http.StatusBadGateway, "image_fetch_failed", err.Error())
			return
		}
		if err := ih.Images.UpdateFullMetadata(data); err != nil {
			WriteAPIError(w, http.StatusInternalServerError, "image_update_failed", err.Error())
			return
		}
		if image, err = ih.Images.GetByID(imageID); err != nil {
			WriteAPIError(w, http.StatusInternalServerError, "image_get_failed", err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, image)
}
