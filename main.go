package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/camden-git/piwigosync/albumsync"
	"github.com/camden-git/piwigosync/config"
	"github.com/camden-git/piwigosync/database"
	"github.com/camden-git/piwigosync/handlers"
	"github.com/camden-git/piwigosync/piwigo"
	"github.com/camden-git/piwigosync/realtime"
	"github.com/camden-git/piwigosync/repository"
	"github.com/camden-git/piwigosync/uploads"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.UploadsTmpPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}

	albumRepo := repository.NewAlbumRepository(db)
	imageRepo := repository.NewImageRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	gateway := piwigo.NewClient(cfg.PiwigoURL, cfg.PiwigoUsername, cfg.PiwigoPassword)

	hub := realtime.NewHub()
	go hub.Run()

	reconciler := albumsync.NewReconciler(gateway, albumRepo, imageRepo, hub)
	coordinator := albumsync.NewCoordinator(gateway, albumRepo, imageRepo, reconciler, hub, cfg.PageSize)
	defer coordinator.Stop()

	engine := uploads.NewEngine(gateway, uploadRepo, hub, cfg.UploadsTmpPath, cfg.AutoRetry)
	defer engine.Stop()

	if err := engine.SweepTempFiles(); err != nil {
		log.Printf("Warning: temp file sweep failed: %v", err)
	}

	if cfg.WatchDirectory != "" && cfg.WatchAlbumID != 0 {
		log.Printf("Watching %s for uploads to album %d", cfg.WatchDirectory, cfg.WatchAlbumID)
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := engine.ScanDirectory(cfg.WatchDirectory, cfg.WatchAlbumID, cfg.ResizeMaxPixels); err != nil {
					log.Printf("Warning: watch directory scan failed: %v", err)
				}
				if err := engine.SweepTempFiles(); err != nil {
					log.Printf("Warning: temp file sweep failed: %v", err)
				}
			}
		}()
	}

	log.Printf("Syncing against Piwigo server: %s", cfg.PiwigoURL)
	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Listing page size: %d", cfg.PageSize)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	albumHandler := &handlers.AlbumHandler{Albums: albumRepo, Coordinator: coordinator}
	imageHandler := &handlers.ImageHandler{Images: imageRepo, Gateway: gateway}
	uploadHandler := &handlers.UploadHandler{Engine: engine, Uploads: uploadRepo}

	r.Route("/api", func(r chi.Router) {
		r.Route("/albums", func(r chi.Router) {
			r.Get("/", albumHandler.ListAlbums)
			r.Route("/{album_id}", func(r chi.Router) {
				r.Get("/", albumHandler.GetAlbum)
				r.Post("/refresh", albumHandler.RefreshAlbum)
				r.Delete("/refresh", albumHandler.CancelRefresh)
				r.Post("/children/refresh", albumHandler.RefreshSubAlbums)
			})
		})

		r.Route("/images", func(r chi.Router) {
			r.Get("/{image_id}", imageHandler.GetImage)
		})

		r.Route("/uploads", func(r chi.Router) {
			r.Get("/", uploadHandler.ListUploads)
			r.Post("/", uploadHandler.EnqueueUpload)
			r.Get("/status", uploadHandler.QueueStatus)
			r.Post("/resume", uploadHandler.ResumeUploads)
			r.Delete("/impossible", uploadHandler.ClearImpossible)
			r.Delete("/{upload_id}", uploadHandler.CancelUpload)
		})
	})

	r.Get("/ws", hub.ServeWS)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
