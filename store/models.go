package store

import "time"

type AppSettings struct {
	SlideshowIntervalMs int `json:"slideshow_interval_ms"`
}

// Activity is one recorded upload or delete attempt against the remote store.
type Activity struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Ref       string    `json:"ref"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Import struct {
	FileName   string    `json:"file_name"`
	Ref        string    `json:"ref"`
	ImportedAt time.Time `json:"imported_at"`
}
