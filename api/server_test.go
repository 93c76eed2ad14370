package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aouyang1/portfoliogallery/api/models"
	"github.com/aouyang1/portfoliogallery/auth"
	"github.com/aouyang1/portfoliogallery/gallery"
	"github.com/aouyang1/portfoliogallery/slideshow"
	"github.com/aouyang1/portfoliogallery/store"
	"github.com/gin-gonic/gin"
)

const testBase = "http://store.test"

type memoryStore struct {
	mu        sync.Mutex
	images    []string
	uploadErr error
	uploaded  []string
}

func (m *memoryStore) BaseURL() string { return testBase }

func (m *memoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.images), nil
}

func (m *memoryStore) Upload(ctx context.Context, file *gallery.UploadFile, progress gallery.ProgressFunc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	if _, err := io.ReadAll(file.Body); err != nil {
		return "", err
	}
	progress(100)
	ref := testBase + "/uploads/" + file.Name
	m.images = append(m.images, ref)
	m.uploaded = append(m.uploaded, file.Name)
	return ref, nil
}

func (m *memoryStore) Delete(ctx context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = slices.DeleteFunc(m.images, func(ref string) bool {
		return ref == testBase+filename
	})
	return nil
}

type idleTicker struct {
	c chan time.Time
}

func (t *idleTicker) C() <-chan time.Time { return t.c }
func (t *idleTicker) Stop()               {}

func newTestServer(t *testing.T, remote *memoryStore) (*WebServer, *store.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	db, err := store.NewDatabase(filepath.Join(root, "gallery.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ws, err := NewWebServer(db, remote, auth.StaticCredentials{Name: "Gulnaz", Password: "12345"}, Config{RootPath: root},
		slideshow.WithTicker(func(time.Duration) slideshow.Ticker {
			return &idleTicker{c: make(chan time.Time)}
		}))
	if err != nil {
		t.Fatalf("NewWebServer: %v", err)
	}
	return ws, db
}

// browser keeps the session cookie between requests
type browser struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (b *browser) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	w := httptest.NewRecorder()
	b.h.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name != sessionCookie {
			continue
		}
		b.cookie = c
		if c.MaxAge < 0 {
			b.cookie = nil
		}
	}
	return w
}

func (b *browser) json(method, target string, v any) *httptest.ResponseRecorder {
	b.t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		b.t.Fatalf("marshal: %v", err)
	}
	return b.do(method, target, bytes.NewReader(body), "application/json")
}

func (b *browser) upload(target, field, name string, content []byte) *httptest.ResponseRecorder {
	b.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		b.t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(content)
	mw.Close()
	return b.do(http.MethodPost, target, &buf, mw.FormDataContentType())
}

func (b *browser) login() {
	b.t.Helper()
	w := b.json(http.MethodPost, "/admin/login", models.LoginRequest{Name: "Gulnaz", Password: "12345"})
	if w.Code != http.StatusOK {
		b.t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestRefreshAndFilterImages(t *testing.T) {
	remote := &memoryStore{images: []string{testBase + "/a.png", testBase + "/b.png", testBase + "/c.png"}}
	ws, _ := newTestServer(t, remote)
	b := &browser{t: t, h: ws.Handler()}

	if w := b.do(http.MethodPost, "/ui/refresh", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}

	resp := decode[models.ImagesResponse](t, b.do(http.MethodGet, "/images?q=B", nil, ""))
	if !slices.Equal(resp.Images, []string{testBase + "/b.png"}) {
		t.Errorf("filtered images = %v", resp.Images)
	}

	resp = decode[models.ImagesResponse](t, b.do(http.MethodGet, "/images", nil, ""))
	if resp.Total != 3 || resp.Loading {
		t.Errorf("images = %+v, want 3 images not loading", resp)
	}
}

func TestGalleryFragment(t *testing.T) {
	remote := &memoryStore{images: []string{testBase + "/cat.png", testBase + "/dog.png"}}
	ws, _ := newTestServer(t, remote)
	b := &browser{t: t, h: ws.Handler()}
	b.do(http.MethodPost, "/ui/refresh", nil, "")

	w := b.do(http.MethodGet, "/ui/gallery?q=cat", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "cat.png") || strings.Contains(body, "dog.png") {
		t.Errorf("fragment = %s", body)
	}
}

func TestIndexCreatesNoSession(t *testing.T) {
	ws, _ := newTestServer(t, &memoryStore{})

	for i := 0; i < 1000; i++ {
		b := &browser{t: t, h: ws.Handler()}
		w := b.do(http.MethodGet, "/", nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if b.cookie != nil {
			t.Fatal("index set a session cookie")
		}
		if i == 0 && !strings.Contains(w.Body.String(), `id="gallery"`) {
			t.Error("page is missing the gallery")
		}
	}

	b := &browser{t: t, h: ws.Handler()}
	b.login()
	if b.cookie == nil {
		t.Fatal("login set no session cookie")
	}
	if got := ws.sessions.Len(); got != 1 {
		t.Fatalf("sessions after login = %d, want 1", got)
	}
	b.do(http.MethodGet, "/slideshow", nil, "")
	if got := ws.viewers.len(); got != 1 {
		t.Fatalf("slideshows after login = %d, want 1", got)
	}

	b.do(http.MethodPost, "/admin/logout", nil, "")
	if b.cookie != nil {
		t.Error("logout kept the session cookie")
	}
	if got := ws.sessions.Len(); got != 0 {
		t.Errorf("sessions after logout = %d, want 0", got)
	}
	if got := ws.viewers.len(); got != 0 {
		t.Errorf("slideshows after logout = %d, want 0", got)
	}
}

func TestIndexShowsAllImagesToAdmin(t *testing.T) {
	remote := &memoryStore{images: []string{testBase + "/cat.png", testBase + "/dog.png"}}
	ws, _ := newTestServer(t, remote)
	b := &browser{t: t, h: ws.Handler()}
	b.do(http.MethodPost, "/ui/refresh", nil, "")
	b.login()
	b.do(http.MethodPost, "/admin/open", nil, "")

	body := b.do(http.MethodGet, "/?q=cat", nil, "").Body.String()
	if !strings.Contains(body, "<span>dog.png</span>") {
		t.Errorf("admin file list filtered by query: %s", body)
	}
	if strings.Contains(body, "<figcaption>dog.png</figcaption>") {
		t.Errorf("gallery not filtered by query: %s", body)
	}
}

func TestAdminLogin(t *testing.T) {
	ws, _ := newTestServer(t, &memoryStore{})
	b := &browser{t: t, h: ws.Handler()}

	state := decode[models.AdminStateResponse](t, b.do(http.MethodPost, "/admin/open", nil, ""))
	if state.Authenticated || !state.Open {
		t.Fatalf("after open = %+v, want login form shown", state)
	}

	w := b.json(http.MethodPost, "/admin/login", models.LoginRequest{Name: "Gulnaz", Password: "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", w.Code)
	}
	if got := decode[models.ErrorResponse](t, w).Error; got != "Wrong credentials" {
		t.Errorf("bad login error = %q", got)
	}

	b.login()
	state = decode[models.AdminStateResponse](t, b.do(http.MethodPost, "/admin/open", nil, ""))
	if !state.Authenticated || !state.Open {
		t.Errorf("after login = %+v", state)
	}

	state = decode[models.AdminStateResponse](t, b.do(http.MethodPost, "/admin/logout", nil, ""))
	if state.Authenticated || state.Open {
		t.Errorf("after logout = %+v", state)
	}
	if w := b.upload("/admin/upload", "file", "x.png", []byte("x")); w.Code != http.StatusUnauthorized {
		t.Errorf("upload after logout status = %d", w.Code)
	}
}

func TestAdminRoutesRequireLogin(t *testing.T) {
	ws, _ := newTestServer(t, &memoryStore{})
	b := &browser{t: t, h: ws.Handler()}

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/admin/upload"},
		{http.MethodPost, "/admin/preview"},
		{http.MethodDelete, "/admin/images"},
		{http.MethodGet, "/admin/activity"},
		{http.MethodGet, "/admin/files"},
		{http.MethodPost, "/slideshow/audio"},
	}
	for _, tt := range tests {
		if w := b.do(tt.method, tt.path, nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", tt.method, tt.path, w.Code)
		}
	}
}

func TestUploadThenDelete(t *testing.T) {
	existing := testBase + "/uploads/old.png"
	remote := &memoryStore{images: []string{existing}}
	ws, _ := newTestServer(t, remote)
	b := &browser{t: t, h: ws.Handler()}
	b.login()
	b.do(http.MethodPost, "/ui/refresh", nil, "")

	w := b.upload("/admin/upload", "file", "new.png", []byte("png bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}
	uploaded := decode[models.MutationResponse](t, w)
	if uploaded.Ref != testBase+"/uploads/new.png" {
		t.Errorf("ref = %q", uploaded.Ref)
	}

	images := decode[models.ImagesResponse](t, b.do(http.MethodGet, "/images", nil, "")).Images
	if !slices.Equal(images, []string{existing, uploaded.Ref}) {
		t.Fatalf("images after upload = %v", images)
	}

	w = b.json(http.MethodDelete, "/admin/images", models.DeleteImageRequest{Ref: existing})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unconfirmed delete status = %d", w.Code)
	}

	w = b.json(http.MethodDelete, "/admin/images", models.DeleteImageRequest{Ref: existing, Confirmed: true})
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", w.Code, w.Body.String())
	}
	images = decode[models.ImagesResponse](t, b.do(http.MethodGet, "/images", nil, "")).Images
	if !slices.Equal(images, []string{uploaded.Ref}) {
		t.Errorf("images after delete = %v", images)
	}

	activity := decode[[]store.Activity](t, b.do(http.MethodGet, "/admin/activity", nil, ""))
	if len(activity) != 2 || activity[0].Action != gallery.ActionDelete || activity[1].Action != gallery.ActionUpload {
		t.Errorf("activity = %+v", activity)
	}
}

func TestUploadRejected(t *testing.T) {
	existing := testBase + "/a.png"
	remote := &memoryStore{
		images:    []string{existing},
		uploadErr: &gallery.RejectionError{Op: "upload", Status: http.StatusOK, Message: "too large"},
	}
	ws, _ := newTestServer(t, remote)
	b := &browser{t: t, h: ws.Handler()}
	b.login()
	b.do(http.MethodPost, "/ui/refresh", nil, "")

	w := b.upload("/admin/upload", "file", "huge.png", []byte("x"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	if msg := decode[models.ErrorResponse](t, w).Error; !strings.Contains(msg, "too large") {
		t.Errorf("error = %q", msg)
	}

	images := decode[models.ImagesResponse](t, b.do(http.MethodGet, "/images", nil, "")).Images
	if !slices.Equal(images, []string{existing}) {
		t.Errorf("images = %v, want unchanged", images)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	ws, _ := newTestServer(t, &memoryStore{})
	b := &browser{t: t, h: ws.Handler()}
	b.login()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "value")
	mw.Close()

	w := b.do(http.MethodPost, "/admin/upload", &buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if msg := decode[models.ErrorResponse](t, w).Error; msg != gallery.ErrNoFile.Error() {
		t.Errorf("error = %q", msg)
	}
}

func TestSlideshowRoutes(t *testing.T) {
	remote := &memoryStore{}
	ws, db := newTestServer(t, remote)
	b := &browser{t: t, h: ws.Handler()}

	w := b.do(http.MethodPost, "/slideshow/open", nil, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("open on empty status = %d", w.Code)
	}
	if msg := decode[models.ErrorResponse](t, w).Error; msg != "No images to play" {
		t.Errorf("error = %q", msg)
	}

	remote.images = []string{testBase + "/a.png", testBase + "/b.png", testBase + "/c.png"}
	b.do(http.MethodPost, "/ui/refresh", nil, "")

	state := decode[models.SlideshowResponse](t, b.do(http.MethodPost, "/slideshow/open", nil, ""))
	if state.Status != "open" || state.Index != 0 {
		t.Fatalf("open state = %+v", state.State)
	}

	state = decode[models.SlideshowResponse](t, b.do(http.MethodPost, "/slideshow/prev", nil, ""))
	if state.Index != 2 {
		t.Errorf("prev from 0 = %d, want 2", state.Index)
	}

	state = decode[models.SlideshowResponse](t, b.json(http.MethodPost, "/slideshow/play", models.PlayRequest{Ref: testBase + "/b.png"}))
	if state.Index != 1 || state.Current != testBase+"/b.png" {
		t.Errorf("play state = %+v", state.State)
	}

	state = decode[models.SlideshowResponse](t, b.json(http.MethodPut, "/slideshow/interval", models.IntervalRequest{IntervalMs: 10000}))
	if state.IntervalMs != 7000 {
		t.Errorf("interval = %d, want 7000", state.IntervalMs)
	}
	settings, err := db.GetAppSettings()
	if err != nil {
		t.Fatalf("GetAppSettings: %v", err)
	}
	if settings.SlideshowIntervalMs != store.DefaultSlideshowIntervalMs {
		t.Errorf("visitor interval persisted as %d", settings.SlideshowIntervalMs)
	}

	state = decode[models.SlideshowResponse](t, b.do(http.MethodPost, "/slideshow/close", nil, ""))
	if state.Status != "closed" {
		t.Errorf("status after close = %q", state.Status)
	}
	if w := b.do(http.MethodPost, "/slideshow/next", nil, ""); w.Code != http.StatusConflict {
		t.Errorf("next while closed status = %d", w.Code)
	}
}

func TestSlideshowAudio(t *testing.T) {
	ws, _ := newTestServer(t, &memoryStore{})
	b := &browser{t: t, h: ws.Handler()}

	if w := b.do(http.MethodGet, "/slideshow/audio?name=theme.mp3", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("audio before attach status = %d", w.Code)
	}

	b.login()
	if w := b.upload("/slideshow/audio", "audio", "notes.txt", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("non audio status = %d", w.Code)
	}

	w := b.upload("/slideshow/audio", "audio", "theme.mp3", []byte("ID3 audio"))
	if w.Code != http.StatusOK {
		t.Fatalf("attach status = %d, body %s", w.Code, w.Body.String())
	}
	if state := decode[models.SlideshowResponse](t, w); !strings.Contains(state.Audio, "theme.mp3") {
		t.Errorf("audio ref = %q", state.Audio)
	}

	w = b.do(http.MethodGet, "/slideshow/audio?name=theme.mp3", nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "ID3 audio" {
		t.Errorf("served audio = %d %q", w.Code, w.Body.String())
	}
	if w := b.do(http.MethodGet, "/slideshow/audio?name=../gallery.db", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("non audio name status = %d", w.Code)
	}

	visitor := &browser{t: t, h: ws.Handler()}
	if state := decode[models.SlideshowResponse](t, visitor.do(http.MethodGet, "/slideshow", nil, "")); state.Audio != "" {
		t.Errorf("visitor slideshow audio = %q, want none", state.Audio)
	}
}

func TestPreviewThumbnail(t *testing.T) {
	ws, _ := newTestServer(t, &memoryStore{})
	b := &browser{t: t, h: ws.Handler()}
	b.login()

	img := image.NewRGBA(image.Rect(0, 0, 600, 400))
	for x := 0; x < 600; x++ {
		img.Set(x, x%400, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	w := b.upload("/admin/preview", "file", "wide.png", buf.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}

	if w := b.upload("/admin/preview", "file", "broken.png", []byte("not an image")); w.Code != http.StatusBadRequest {
		t.Errorf("broken image status = %d", w.Code)
	}
}

func TestSlideshowPerVisitor(t *testing.T) {
	remote := &memoryStore{images: []string{testBase + "/a.png", testBase + "/b.png", testBase + "/c.png"}}
	ws, db := newTestServer(t, remote)
	a := &browser{t: t, h: ws.Handler()}
	b := &browser{t: t, h: ws.Handler()}
	a.do(http.MethodPost, "/ui/refresh", nil, "")

	a.do(http.MethodPost, "/slideshow/open", nil, "")
	state := decode[models.SlideshowResponse](t, a.do(http.MethodPost, "/slideshow/next", nil, ""))
	if state.Status != "open" || state.Index != 1 {
		t.Fatalf("visitor a = %+v", state.State)
	}

	state = decode[models.SlideshowResponse](t, b.do(http.MethodGet, "/slideshow", nil, ""))
	if state.Status != "closed" || state.Index != 0 {
		t.Errorf("visitor b = %+v, want closed at 0", state.State)
	}
	if w := b.do(http.MethodPost, "/slideshow/next", nil, ""); w.Code != http.StatusConflict {
		t.Errorf("visitor b next status = %d", w.Code)
	}

	state = decode[models.SlideshowResponse](t, b.json(http.MethodPut, "/slideshow/interval", models.IntervalRequest{IntervalMs: 9000}))
	if state.IntervalMs != 7000 {
		t.Errorf("visitor b interval = %d, want 7000", state.IntervalMs)
	}
	state = decode[models.SlideshowResponse](t, a.do(http.MethodGet, "/slideshow", nil, ""))
	if state.IntervalMs != 4000 || state.Index != 1 {
		t.Errorf("visitor a after b changes = %+v", state.State)
	}
	settings, err := db.GetAppSettings()
	if err != nil {
		t.Fatalf("GetAppSettings: %v", err)
	}
	if settings.SlideshowIntervalMs != store.DefaultSlideshowIntervalMs {
		t.Errorf("visitor interval persisted as %d", settings.SlideshowIntervalMs)
	}

	admin := &browser{t: t, h: ws.Handler()}
	admin.login()
	admin.json(http.MethodPut, "/slideshow/interval", models.IntervalRequest{IntervalMs: 1500})
	settings, err = db.GetAppSettings()
	if err != nil {
		t.Fatalf("GetAppSettings: %v", err)
	}
	if settings.SlideshowIntervalMs != 1500 {
		t.Errorf("admin interval persisted as %d, want 1500", settings.SlideshowIntervalMs)
	}

	late := &browser{t: t, h: ws.Handler()}
	if state := decode[models.SlideshowResponse](t, late.do(http.MethodGet, "/slideshow", nil, "")); state.IntervalMs != 1500 {
		t.Errorf("new visitor interval = %d, want 1500", state.IntervalMs)
	}
	if state := decode[models.SlideshowResponse](t, a.do(http.MethodGet, "/slideshow", nil, "")); state.IntervalMs != 4000 {
		t.Errorf("existing visitor interval = %d, want 4000", state.IntervalMs)
	}
}
