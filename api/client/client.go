package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/aouyang1/portfoliogallery/api/models"
	"github.com/aouyang1/portfoliogallery/gallery"
)

const (
	DefaultUploadField = "image"
	DefaultTimeout     = 60 * time.Second
)

// Account is sent with every mutation. An empty account sends no fields.
type Account struct {
	Name     string
	Password string
}

// StoreClient talks to the remote image store over HTTP:
//
//	GET    {base}/api/list    -> {images: [path...]}
//	POST   {base}/api/upload  multipart {<field>, name, password}
//	DELETE {base}/api/delete  {name, password, filename}
type StoreClient struct {
	baseURL     string
	uploadField string
	account     Account
	client      *http.Client
}

type Option func(*StoreClient)

// WithUploadField sets the multipart field carrying the file, "image" or "artFile".
func WithUploadField(field string) Option {
	return func(sc *StoreClient) {
		if field != "" {
			sc.uploadField = field
		}
	}
}

func WithAccount(account Account) Option {
	return func(sc *StoreClient) { sc.account = account }
}

func WithHTTPClient(c *http.Client) Option {
	return func(sc *StoreClient) { sc.client = c }
}

func NewStoreClient(baseURL string, opts ...Option) *StoreClient {
	sc := &StoreClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		uploadField: DefaultUploadField,
		client:      &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

func (sc *StoreClient) BaseURL() string {
	return sc.baseURL
}

// List retrieves every image and prefixes each server path with the base URL.
func (sc *StoreClient) List(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/api/list", sc.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, status, err := sc.do(req, "list")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, rejection("list", status, body)
	}

	var listResp models.ListResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, &gallery.NetworkError{Op: "list", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	images := make([]string, 0, len(listResp.Images))
	for _, p := range listResp.Images {
		images = append(images, sc.baseURL+p)
	}
	return images, nil
}

// Upload sends file as multipart form data and reports byte progress.
func (sc *StoreClient) Upload(ctx context.Context, file *gallery.UploadFile, progress gallery.ProgressFunc) (string, error) {
	payload, contentType, err := sc.multipartBody(file)
	if err != nil {
		return "", err
	}

	total := int64(payload.Len())
	url := fmt.Sprintf("%s/api/upload", sc.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, newProgressReader(payload, total, progress))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	body, status, err := sc.do(req, "upload")
	if err != nil {
		return "", err
	}

	var uploadResp models.UploadResponse
	if err := json.Unmarshal(body, &uploadResp); err != nil {
		if status != http.StatusOK {
			return "", rejection("upload", status, body)
		}
		return "", &gallery.NetworkError{Op: "upload", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if !uploadResp.Success || uploadResp.URL == "" {
		msg := uploadResp.Error
		if msg == "" {
			msg = uploadResp.Message
		}
		return "", &gallery.RejectionError{Op: "upload", Status: status, Message: msg}
	}

	slog.Debug("upload accepted by store", "name", file.Name, "url", uploadResp.URL, "bytes", total)
	return sc.baseURL + uploadResp.URL, nil
}

func (sc *StoreClient) multipartBody(file *gallery.UploadFile) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, sc.uploadField, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read upload %s: %w", file.Name, err)
	}

	if sc.account.Name != "" {
		if err := w.WriteField("name", sc.account.Name); err != nil {
			return nil, "", fmt.Errorf("failed to write form field: %w", err)
		}
		if err := w.WriteField("password", sc.account.Password); err != nil {
			return nil, "", fmt.Errorf("failed to write form field: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Delete removes the image stored under the server relative filename.
func (sc *StoreClient) Delete(ctx context.Context, filename string) error {
	reqBody := models.DeleteRequest{
		Name:     sc.account.Name,
		Password: sc.account.Password,
		Filename: filename,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/delete", sc.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := sc.do(req, "delete")
	if err != nil {
		return err
	}

	var deleteResp models.DeleteResponse
	if err := json.Unmarshal(body, &deleteResp); err != nil {
		if status != http.StatusOK {
			return rejection("delete", status, body)
		}
		return &gallery.NetworkError{Op: "delete", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if !deleteResp.Success {
		return &gallery.RejectionError{Op: "delete", Status: status, Message: deleteResp.Error}
	}
	return nil
}

func (sc *StoreClient) do(req *http.Request, op string) ([]byte, int, error) {
	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, 0, &gallery.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &gallery.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, resp.StatusCode, nil
}

// rejection builds an error from a non 2xx response, preferring the store's
// own error text.
func rejection(op string, status int, body []byte) error {
	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &gallery.RejectionError{Op: op, Status: status, Message: errResp.Error}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &gallery.RejectionError{Op: op, Status: status, Message: msg}
}
