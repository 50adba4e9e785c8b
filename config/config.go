package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const DefaultUploadsTmpSubDir = "upload_tmp"

const (
	defaultPageSize        = 100
	defaultResizeMaxPixels = 0 // 0 disables resizing
)

type Config struct {
	// remote Piwigo server
	PiwigoURL      string
	PiwigoUsername string
	PiwigoPassword string

	// database path
	DatabasePath string

	// local storage configuration
	StoragePath    string // primary root for local working files
	UploadsTmpPath string // full-calculated path for prepared upload files

	// listing settings
	PageSize int // images per page, server-agreed constant

	// upload settings
	ResizeMaxPixels int  // longest side of uploaded photos, 0 keeps originals
	AutoRetry       bool // retry resumable upload failures without user action
	WatchDirectory  string
	WatchAlbumID    int64
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	piwigoURL := os.Getenv("PIWIGO_URL")
	if piwigoURL == "" {
		return Config{}, fmt.Errorf("PIWIGO_URL must be set to the gallery base URL")
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "piwigosync.db")

	storage := getEnvOrDefault("STORAGE_PATH", filepath.Join(".", "storage"))
	absStorage, err := filepath.Abs(storage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for storage '%s': %w", storage, err)
	}

	tmpSubDir := getEnvOrDefault("UPLOADS_TMP_SUBDIR", DefaultUploadsTmpSubDir)
	absUploadsTmpPath := filepath.Join(absStorage, tmpSubDir)

	pageSize := getEnvIntOrDefault("PAGE_SIZE", defaultPageSize)
	resizeMax := getEnvIntOrDefault("RESIZE_MAX_PIXELS", defaultResizeMaxPixels)

	var watchAlbumID int64
	if idStr := os.Getenv("WATCH_ALBUM_ID"); idStr != "" {
		watchAlbumID, err = strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WATCH_ALBUM_ID '%s': %w", idStr, err)
		}
	}

	cfg := Config{
		PiwigoURL:       piwigoURL,
		PiwigoUsername:  os.Getenv("PIWIGO_USERNAME"),
		PiwigoPassword:  os.Getenv("PIWIGO_PASSWORD"),
		DatabasePath:    dbPath,
		StoragePath:     absStorage,
		UploadsTmpPath:  absUploadsTmpPath,
		PageSize:        pageSize,
		ResizeMaxPixels: resizeMax,
		AutoRetry:       getEnvBoolOrDefault("AUTO_RETRY_UPLOADS", true),
		WatchDirectory:  os.Getenv("WATCH_DIRECTORY"),
		WatchAlbumID:    watchAlbumID,
	}

	return cfg, nil
}
