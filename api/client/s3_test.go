package client

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/aouyang1/portfoliogallery/gallery"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	pages   [][]s3types.Object
	deleted []string
	err     error
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := 0
	if params.ContinuationToken != nil {
		for i := range f.pages {
			if aws.ToString(params.ContinuationToken) == string(rune('a'+i)) {
				page = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(rune('a' + page + 1)))
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type fakeUploader struct {
	key  string
	body []byte
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.key = aws.ToString(input.Key)
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &manager.UploadOutput{Key: input.Key}, nil
}

func object(key string, modified time.Time) s3types.Object {
	return s3types.Object{Key: aws.String(key), LastModified: aws.Time(modified)}
}

func TestS3ListNewestFirstImagesOnly(t *testing.T) {
	now := time.Now()
	api := &fakeS3{pages: [][]s3types.Object{
		{object("art/old.png", now.Add(-time.Hour)), object("art/notes.txt", now)},
		{object("art/new.jpg", now)},
	}}
	store := newS3Store(api, &fakeUploader{}, S3Config{Bucket: "b", PublicURL: "https://cdn.test/"})

	images, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	want := []string{"https://cdn.test/art/new.jpg", "https://cdn.test/art/old.png"}
	if !slices.Equal(images, want) {
		t.Fatalf("List() = %v, want %v", images, want)
	}
}

func TestS3UploadAndDelete(t *testing.T) {
	api := &fakeS3{pages: [][]s3types.Object{{}}}
	up := &fakeUploader{}
	store := newS3Store(api, up, S3Config{Bucket: "b", Prefix: "art/", PublicURL: "https://cdn.test"})

	var progress []int
	ref, err := store.Upload(context.Background(), &gallery.UploadFile{
		Name: "sketch.png",
		Size: 6,
		Body: strings.NewReader("sketch"),
	}, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if !strings.HasPrefix(up.key, "art/") || !strings.HasSuffix(up.key, "-sketch.png") {
		t.Fatalf("uploaded key = %q", up.key)
	}
	if ref != "https://cdn.test/"+up.key {
		t.Fatalf("ref = %q", ref)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v", progress)
	}

	filename := gallery.FilenameFromRef(store.BaseURL(), ref)
	if err := store.Delete(context.Background(), filename); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if !slices.Equal(api.deleted, []string{up.key}) {
		t.Fatalf("deleted keys = %v, want %v", api.deleted, up.key)
	}
}

func TestS3UploadKeyUnderPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"photos", "photos/"},
		{"photos/", "photos/"},
		{"", ""},
	}
	for _, tt := range tests {
		up := &fakeUploader{}
		store := newS3Store(&fakeS3{}, up, S3Config{Bucket: "b", Prefix: tt.prefix, PublicURL: "https://cdn.test"})
		if _, err := store.Upload(context.Background(), &gallery.UploadFile{
			Name: "dir/sketch.png",
			Body: strings.NewReader("sketch"),
		}, nil); err != nil {
			t.Fatalf("Upload() failed: %v", err)
		}
		rest, ok := strings.CutPrefix(up.key, tt.want)
		if !ok || strings.Contains(rest, "/") || !strings.HasSuffix(rest, "-sketch.png") {
			t.Errorf("prefix %q: uploaded key = %q", tt.prefix, up.key)
		}
	}
}

func TestS3UploadRejectsUnsupportedExtension(t *testing.T) {
	store := newS3Store(&fakeS3{}, &fakeUploader{}, S3Config{Bucket: "b", PublicURL: "https://cdn.test"})
	_, err := store.Upload(context.Background(), &gallery.UploadFile{Name: "song.mp3", Body: strings.NewReader("x")}, nil)
	var rejection *gallery.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("Upload() error = %v, want RejectionError", err)
	}
}

func TestClassifyS3Error(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "access denied"}
	var rejection *gallery.RejectionError
	if err := classifyS3Error("delete", apiErr); !errors.As(err, &rejection) || rejection.Message != "access denied" {
		t.Fatalf("classifyS3Error(api error) = %v", err)
	}

	var network *gallery.NetworkError
	if err := classifyS3Error("list", errors.New("dial tcp: timeout")); !errors.As(err, &network) {
		t.Fatalf("classifyS3Error(transport error) = %v", err)
	}

	store := newS3Store(&fakeS3{err: apiErr}, &fakeUploader{}, S3Config{Bucket: "b", PublicURL: "https://cdn.test"})
	if _, err := store.List(context.Background()); !errors.As(err, &rejection) {
		t.Fatalf("List() error = %v, want RejectionError", err)
	}
}
