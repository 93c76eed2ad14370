package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const (
	backendHTTP = "http"
	backendS3   = "s3"
)

type Config struct {
	RootPath string
	Addr     string
	Backend  string

	APIBase     string
	UploadField string
	StoreName   string
	StorePass   string
	HTTPTimeout time.Duration

	AdminName     string
	AdminPassword string
	AdminHash     string

	RefreshInterval time.Duration
	ImportDir       string
	ImportInterval  time.Duration

	AWSProfile  string
	S3Bucket    string
	S3Prefix    string
	S3PublicURL string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("unable to parse duration, using default", key, v, "default", def)
		return def
	}
	return d
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		RootPath: os.Getenv("GALLERY_ROOT_PATH"),
		Addr:     getenv("GALLERY_ADDR", "0.0.0.0:8080"),
		Backend:  getenv("GALLERY_BACKEND", backendHTTP),

		APIBase:     getenv("GALLERY_API_BASE", "http://localhost:4000"),
		UploadField: getenv("GALLERY_UPLOAD_FIELD", "image"),
		StoreName:   os.Getenv("GALLERY_STORE_NAME"),
		StorePass:   os.Getenv("GALLERY_STORE_PASSWORD"),
		HTTPTimeout: getduration("GALLERY_HTTP_TIMEOUT", 60*time.Second),

		AdminName:     os.Getenv("GALLERY_ADMIN_NAME"),
		AdminPassword: os.Getenv("GALLERY_ADMIN_PASSWORD"),
		AdminHash:     os.Getenv("GALLERY_ADMIN_PASSWORD_HASH"),

		RefreshInterval: getduration("GALLERY_REFRESH_INTERVAL", 0),
		ImportDir:       os.Getenv("GALLERY_IMPORT_DIR"),
		ImportInterval:  getduration("GALLERY_IMPORT_INTERVAL", 10*time.Minute),

		AWSProfile:  os.Getenv("GALLERY_AWS_PROFILE"),
		S3Bucket:    os.Getenv("GALLERY_S3_BUCKET"),
		S3Prefix:    os.Getenv("GALLERY_S3_PREFIX"),
		S3PublicURL: os.Getenv("GALLERY_S3_PUBLIC_URL"),
	}

	if cfg.RootPath == "" {
		return nil, errors.New("GALLERY_ROOT_PATH environment variable is required")
	}
	if cfg.Backend != backendHTTP && cfg.Backend != backendS3 {
		return nil, fmt.Errorf("unknown GALLERY_BACKEND %q, need %s or %s", cfg.Backend, backendHTTP, backendS3)
	}

	// the store account doubles as the admin login unless one is given
	if cfg.AdminName == "" {
		cfg.AdminName = cfg.StoreName
		if cfg.AdminPassword == "" && cfg.AdminHash == "" {
			cfg.AdminPassword = cfg.StorePass
		}
	}
	return cfg, nil
}
