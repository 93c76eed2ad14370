// Package models tracks all api models for request and responses
package models

import (
	"github.com/aouyang1/portfoliogallery/auth"
	"github.com/aouyang1/portfoliogallery/slideshow"
)

// Remote store wire format.

type ListResponse struct {
	Images []string `json:"images"`
}

type UploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type DeleteRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Filename string `json:"filename"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Gallery web server.

type ImagesResponse struct {
	Images  []string `json:"images"`
	Total   int      `json:"total"`
	Loading bool     `json:"loading"`
	Query   string   `json:"query,omitempty"`
}

type LoginRequest struct {
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

type AdminStateResponse struct {
	auth.SessionState
}

type MutationResponse struct {
	Success bool   `json:"success"`
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message"`
}

type DeleteImageRequest struct {
	Ref       string `json:"ref" form:"ref"`
	Confirmed bool   `json:"confirmed" form:"confirmed"`
}

type PlayRequest struct {
	Ref string `json:"ref" form:"ref"`
}

type IntervalRequest struct {
	IntervalMs int64 `json:"interval_ms" form:"interval_ms"`
}

type SlideshowResponse struct {
	slideshow.State
}

type ErrorResponse struct {
	Error string `json:"error"`
}
