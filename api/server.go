// Package api is the main api web server
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"
	"github.com/aouyang1/portfoliogallery/api/models"
	"github.com/aouyang1/portfoliogallery/api/web/templates"
	"github.com/aouyang1/portfoliogallery/auth"
	"github.com/aouyang1/portfoliogallery/gallery"
	"github.com/aouyang1/portfoliogallery/slideshow"
	"github.com/aouyang1/portfoliogallery/store"
	"github.com/aouyang1/portfoliogallery/util"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

//go:embed web/static
var webFiles embed.FS

const (
	activityLimit   = 50
	shutdownTimeout = 5 * time.Second
	audioDirName    = "audio"
)

type Config struct {
	RootPath        string
	RefreshInterval time.Duration
	ImportDir       string
	ImportInterval  time.Duration
}

type WebServer struct {
	router          *gin.Engine
	db              *store.Database
	rootPath        string
	refreshInterval time.Duration

	hub           *Hub
	sync          *gallery.Synchronizer
	mutator       *gallery.Mutator
	sessions      *auth.Registry
	viewers       *viewers
	importManager *ImportManager

	// slideshow interval for new viewers, as persisted by an admin
	interval      atomic.Int64
	slideshowOpts []slideshow.Option
}

// NewWebServer wires the gallery, admin sessions and per browser slideshows
// around the remote store. opts are passed through to every slideshow.
func NewWebServer(db *store.Database, remote gallery.Store, authenticator auth.Authenticator, cfg Config, opts ...slideshow.Option) (*WebServer, error) {
	settings, err := db.GetAppSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	router := gin.Default()
	hub := NewHub()
	synchronizer := gallery.NewSynchronizer(remote)

	ws := &WebServer{
		router:          router,
		db:              db,
		rootPath:        cfg.RootPath,
		refreshInterval: cfg.RefreshInterval,
		hub:             hub,
		sync:            synchronizer,
		mutator:         gallery.NewMutator(remote, synchronizer, db, hub),
		sessions:        auth.NewRegistry(authenticator, sessionIdleTimeout),
		slideshowOpts:   opts,
	}
	ws.interval.Store(int64(slideshow.ClampInterval(time.Duration(settings.SlideshowIntervalMs) * time.Millisecond)))
	ws.viewers = newViewers(ws.newViewer)
	ws.sessions.OnRemove(ws.viewers.remove)

	synchronizer.OnChange(func(images []string) {
		ws.viewers.listChanged(images)
		hub.Publish(EventGalleryUpdated, GalleryData{Total: len(images)})
	})

	if cfg.ImportDir != "" {
		ws.importManager = NewImportManager(cfg.ImportDir, cfg.ImportInterval, db, ws.mutator)
	}

	if err := ws.setupRoutes(); err != nil {
		return nil, err
	}

	return ws, nil
}

func (ws *WebServer) newViewer(token string) *slideshow.Slideshow {
	opts := []slideshow.Option{
		slideshow.WithInterval(time.Duration(ws.interval.Load())),
		slideshow.WithOnChange(func(state slideshow.State) {
			ws.hub.Send(token, EventSlideshowChanged, state)
		}),
	}
	return slideshow.New(ws.sync.Images, append(opts, ws.slideshowOpts...)...)
}

func (ws *WebServer) setupRoutes() error {
	staticFS, err := fs.Sub(webFiles, "web/static")
	if err != nil {
		return fmt.Errorf("failed to create static filesystem: %w", err)
	}
	ws.router.StaticFS("/static", http.FS(staticFS))

	ws.router.GET("/images", ws.handleListImages)
	ws.router.GET("/ui/gallery", ws.handleUIGallery)
	ws.router.POST("/ui/refresh", ws.handleRefresh)
	ws.router.GET("/ws", ws.handleWS)

	ws.router.GET("/", ws.lookupSession, ws.handleIndex)

	admin := ws.router.Group("/admin", ws.withSession)
	admin.POST("/open", ws.handleAdminOpen)
	admin.POST("/login", ws.handleLogin)
	admin.POST("/logout", ws.handleLogout)

	protected := admin.Group("", ws.requireAdmin)
	protected.GET("/files", ws.handleAdminFiles)
	protected.POST("/upload", ws.handleUpload)
	protected.POST("/preview", ws.handlePreview)
	protected.DELETE("/images", ws.handleDeleteImage)
	protected.GET("/activity", ws.handleActivity)

	ws.router.GET("/slideshow/audio", ws.handleAudio)

	ss := ws.router.Group("/slideshow", ws.withSession)
	ss.GET("", ws.handleGetSlideshow)
	ss.POST("/open", ws.handleOpenSlideshow)
	ss.POST("/play", ws.handlePlayFromImage)
	ss.POST("/close", ws.handleCloseSlideshow)
	ss.POST("/next", ws.handleStepSlideshow((*slideshow.Slideshow).Next))
	ss.POST("/prev", ws.handleStepSlideshow((*slideshow.Slideshow).Prev))
	ss.PUT("/interval", ws.handleUpdateInterval)
	ss.POST("/audio", ws.requireAdmin, ws.handleAttachAudio)
	return nil
}

func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start runs the background workers and serves addr until ctx is done.
func (ws *WebServer) Start(ctx context.Context, addr string) error {
	go ws.hub.Run(ctx)
	go ws.sync.Run(ctx, ws.refreshInterval)
	go ws.sweepSessions(ctx)
	if ws.importManager != nil {
		go ws.importManager.Run(ctx)
	}

	srv := &http.Server{Addr: addr, Handler: ws.router}
	go func() {
		<-ctx.Done()
		ws.viewers.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("web server shutdown", "error", err)
		}
	}()

	slog.Info("starting web server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start web server: %w", err)
	}
	return nil
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func render(c *gin.Context, status int, component templ.Component) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(c.Request.Context(), c.Writer); err != nil {
		slog.Error("failed to render view", "path", c.FullPath(), "error", err)
	}
}

// handleWS attaches the socket to the browser's session so slideshow ticks
// and notices reach only that browser.
func (ws *WebServer) handleWS(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Websocket upgrade required"})
		return
	}

	token, _ := c.Cookie(sessionCookie)
	current, _ := ws.sessions.GetOrNew(token)
	header := http.Header{}
	if current != token {
		header.Add("Set-Cookie", newSessionCookie(current).String())
	}
	ws.hub.serveWS(c.Writer, c.Request, current, header)
}

func (ws *WebServer) viewerFrom(c *gin.Context) *slideshow.Slideshow {
	return ws.viewers.get(tokenFrom(c))
}

func (ws *WebServer) handleIndex(c *gin.Context) {
	query := c.Query("q")
	state := ws.sync.State()

	data := templates.PageData{
		Images:    gallery.Filter(state.Images, query),
		AllImages: state.Images,
		Loading:   state.Loading,
		Query:     query,
		Slideshow: slideshow.State{
			Status:     slideshow.Closed.String(),
			Total:      len(state.Images),
			IntervalMs: time.Duration(ws.interval.Load()).Milliseconds(),
		},
	}
	if session, ok := optionalSession(c); ok {
		data.Admin = session.State()
		data.Slideshow = ws.viewerFrom(c).State()
	}
	render(c, http.StatusOK, templates.Page(data))
}

func (ws *WebServer) handleUIGallery(c *gin.Context) {
	state := ws.sync.State()
	render(c, http.StatusOK, templates.Gallery(gallery.Filter(state.Images, c.Query("q")), state.Loading))
}

func (ws *WebServer) imagesResponse(query string) models.ImagesResponse {
	state := ws.sync.State()
	images := gallery.Filter(state.Images, query)
	return models.ImagesResponse{
		Images:  images,
		Total:   len(images),
		Loading: state.Loading,
		Query:   query,
	}
}

func (ws *WebServer) handleListImages(c *gin.Context) {
	c.JSON(http.StatusOK, ws.imagesResponse(c.Query("q")))
}

func (ws *WebServer) handleRefresh(c *gin.Context) {
	if err := ws.sync.Refresh(c.Request.Context()); err != nil && !errors.Is(err, gallery.ErrSuperseded) {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: gallery.Outcome("Refresh", err)})
		return
	}

	query := c.Query("q")
	if isHTMX(c) {
		state := ws.sync.State()
		render(c, http.StatusOK, templates.Gallery(gallery.Filter(state.Images, query), state.Loading))
		return
	}
	c.JSON(http.StatusOK, ws.imagesResponse(query))
}

func (ws *WebServer) respondAdmin(c *gin.Context, session *auth.Session) {
	if isHTMX(c) {
		render(c, http.StatusOK, templates.Admin(session.State(), ws.sync.Images()))
		return
	}
	c.JSON(http.StatusOK, models.AdminStateResponse{SessionState: session.State()})
}

func (ws *WebServer) handleAdminOpen(c *gin.Context) {
	session := sessionFrom(c)
	session.Open()
	ws.respondAdmin(c, session)
}

func (ws *WebServer) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	session := sessionFrom(c)
	session.SetInput(req.Name, req.Password)
	if err := session.Submit(); err != nil {
		slog.Warn("admin login failed", "name", req.Name)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Wrong credentials"})
		return
	}
	slog.Info("admin logged in", "name", req.Name)
	ws.respondAdmin(c, session)
}

// handleLogout drops the session entirely; the next admin action starts a
// fresh one.
func (ws *WebServer) handleLogout(c *gin.Context) {
	session := sessionFrom(c)
	ws.sessions.Remove(tokenFrom(c))
	http.SetCookie(c.Writer, expiredSessionCookie())
	ws.respondAdmin(c, session)
}

func (ws *WebServer) handleAdminFiles(c *gin.Context) {
	render(c, http.StatusOK, templates.AdminFiles(ws.sync.Images()))
}

// mutationError answers a failed upload or delete.
func mutationError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, gallery.ErrNoFile), errors.Is(err, gallery.ErrNotConfirmed):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: gallery.Outcome(op, err)})
	}
}

func (ws *WebServer) handleUpload(c *gin.Context) {
	var (
		file *gallery.UploadFile
		name string
	)
	if header, err := c.FormFile("file"); err == nil {
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to read upload: %v", err)})
			return
		}
		defer f.Close()

		name = header.Filename
		file = &gallery.UploadFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        f,
		}
	}

	token := tokenFrom(c)
	ref, err := ws.mutator.Upload(requestContext(c), file, func(percent int) {
		ws.hub.Send(token, EventUploadProgress, ProgressData{Name: name, Percent: percent})
	})
	if err != nil {
		mutationError(c, "Upload", err)
		return
	}

	if isHTMX(c) {
		render(c, http.StatusOK, templates.UploadStatus("Upload complete"))
		return
	}
	c.JSON(http.StatusOK, models.MutationResponse{Success: true, Ref: ref, Message: "Upload complete"})
}

func (ws *WebServer) handlePreview(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: gallery.ErrNoFile.Error()})
		return
	}
	if !util.IsImage(header.Filename) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Unsupported file extension: %s", filepath.Ext(header.Filename))})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to read upload: %v", err)})
		return
	}
	defer f.Close()

	thumb, err := util.Thumbnail(f, util.ThumbnailMaxDim)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Failed to build preview: %v", err)})
		return
	}
	c.Header("X-File-Size-KB", fmt.Sprintf("%d", header.Size/1024))
	c.Data(http.StatusOK, "image/jpeg", thumb)
}

func (ws *WebServer) handleDeleteImage(c *gin.Context) {
	var req models.DeleteImageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	if req.Ref == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "ref is required"})
		return
	}

	err := ws.mutator.Delete(requestContext(c), req.Ref, func(string) bool {
		return req.Confirmed
	})
	if err != nil {
		mutationError(c, "Delete", err)
		return
	}
	c.JSON(http.StatusOK, models.MutationResponse{Success: true, Ref: req.Ref, Message: "Deleted"})
}

func (ws *WebServer) handleActivity(c *gin.Context) {
	activity, err := ws.db.GetActivity(activityLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	c.JSON(http.StatusOK, activity)
}

func slideshowResponse(c *gin.Context, state slideshow.State) {
	c.JSON(http.StatusOK, models.SlideshowResponse{State: state})
}

func slideshowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, slideshow.ErrEmptyList):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "No images to play"})
	case errors.Is(err, slideshow.ErrClosed):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Slideshow is not open"})
	case errors.Is(err, slideshow.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Image not found"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
	}
}

func (ws *WebServer) handleGetSlideshow(c *gin.Context) {
	slideshowResponse(c, ws.viewerFrom(c).State())
}

func (ws *WebServer) handleOpenSlideshow(c *gin.Context) {
	viewer := ws.viewerFrom(c)
	if err := viewer.Open(); err != nil {
		slideshowError(c, err)
		return
	}
	slideshowResponse(c, viewer.State())
}

func (ws *WebServer) handlePlayFromImage(c *gin.Context) {
	var req models.PlayRequest
	if err := c.ShouldBind(&req); err != nil || req.Ref == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "ref is required"})
		return
	}
	viewer := ws.viewerFrom(c)
	if err := viewer.OpenAt(req.Ref); err != nil {
		slideshowError(c, err)
		return
	}
	slideshowResponse(c, viewer.State())
}

func (ws *WebServer) handleCloseSlideshow(c *gin.Context) {
	viewer := ws.viewerFrom(c)
	viewer.Close()
	slideshowResponse(c, viewer.State())
}

func (ws *WebServer) handleStepSlideshow(step func(*slideshow.Slideshow) (slideshow.State, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := step(ws.viewerFrom(c))
		if err != nil {
			slideshowError(c, err)
			return
		}
		slideshowResponse(c, state)
	}
}

// handleUpdateInterval changes the caller's own slideshow. An admin's choice
// is also saved as the default for new viewers.
func (ws *WebServer) handleUpdateInterval(c *gin.Context) {
	var req models.IntervalRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	if req.IntervalMs <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "interval_ms must be positive"})
		return
	}

	viewer := ws.viewerFrom(c)
	applied := viewer.SetInterval(time.Duration(req.IntervalMs) * time.Millisecond)
	if sessionFrom(c).Authenticated() {
		if err := ws.db.UpsertAppSettings(&store.AppSettings{SlideshowIntervalMs: int(applied.Milliseconds())}); err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to update settings: %v", err)})
			return
		}
		ws.interval.Store(int64(applied))
		slog.Info("default slideshow interval updated", "interval", applied)
	}
	slideshowResponse(c, viewer.State())
}

func (ws *WebServer) audioDir() string {
	return filepath.Join(ws.rootPath, audioDirName)
}

func (ws *WebServer) handleAttachAudio(c *gin.Context) {
	header, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No audio file provided"})
		return
	}
	name := filepath.Base(header.Filename)
	if !util.IsAudio(name) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Unsupported audio extension: %s", filepath.Ext(name))})
		return
	}

	if err := os.MkdirAll(ws.audioDir(), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to create directory: %v", err)})
		return
	}
	if err := c.SaveUploadedFile(header, filepath.Join(ws.audioDir(), name)); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to save file: %v", err)})
		return
	}

	viewer := ws.viewerFrom(c)
	viewer.AttachAudio("/slideshow/audio?name=" + url.QueryEscape(name))
	slog.Info("slideshow audio attached", "name", name)
	slideshowResponse(c, viewer.State())
}

func (ws *WebServer) handleAudio(c *gin.Context) {
	name := filepath.Base(c.Query("name"))
	if !util.IsAudio(name) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "No audio attached"})
		return
	}

	audioPath := filepath.Join(ws.audioDir(), name)
	if _, err := os.Stat(audioPath); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "No audio attached"})
		return
	}
	c.File(audioPath)
}
