package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aouyang1/portfoliogallery/api"
	"github.com/aouyang1/portfoliogallery/api/client"
	"github.com/aouyang1/portfoliogallery/auth"
	"github.com/aouyang1/portfoliogallery/gallery"
	"github.com/aouyang1/portfoliogallery/store"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(cfg.RootPath, 0o755); err != nil {
		log.Fatalf("Failed to create root path: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	dbPath := filepath.Join(cfg.RootPath, "gallery.db")
	database, err := store.NewDatabase(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	remote, err := newRemoteStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize remote store: %v", err)
	}

	authenticator, err := auth.NewAuthenticator(cfg.AdminName, cfg.AdminPassword, cfg.AdminHash)
	if err != nil {
		log.Fatalf("Failed to initialize admin credentials: %v", err)
	}

	webServer, err := api.NewWebServer(database, remote, authenticator, api.Config{
		RootPath:        cfg.RootPath,
		RefreshInterval: cfg.RefreshInterval,
		ImportDir:       cfg.ImportDir,
		ImportInterval:  cfg.ImportInterval,
	})
	if err != nil {
		log.Fatalf("Failed to initialize web server: %v", err)
	}

	slog.Info("gallery configured", "backend", cfg.Backend, "store", remote.BaseURL(), "import_dir", cfg.ImportDir)
	if err := webServer.Start(ctx, cfg.Addr); err != nil {
		log.Fatal(err)
	}
}

func newRemoteStore(ctx context.Context, cfg *Config) (gallery.Store, error) {
	if cfg.Backend == backendS3 {
		return client.NewS3Store(ctx, client.S3Config{
			Profile:   cfg.AWSProfile,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			PublicURL: cfg.S3PublicURL,
		})
	}

	opts := []client.Option{
		client.WithUploadField(cfg.UploadField),
		client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	}
	if cfg.StoreName != "" {
		opts = append(opts, client.WithAccount(client.Account{Name: cfg.StoreName, Password: cfg.StorePass}))
	}
	return client.NewStoreClient(cfg.APIBase, opts...), nil
}
