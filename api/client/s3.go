package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aouyang1/portfoliogallery/gallery"
	"github.com/aouyang1/portfoliogallery/util"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type s3API interface {
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store serves the gallery straight from an S3 bucket. Objects are public
// under publicURL; an image ref is publicURL + "/" + key.
type S3Store struct {
	client   s3API
	uploader s3Uploader

	bucket    string
	prefix    string
	publicURL string
}

type S3Config struct {
	Profile   string
	Bucket    string
	Prefix    string
	PublicURL string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("no s3 bucket provided")
	}
	if cfg.PublicURL == "" {
		return nil, errors.New("no public url provided for s3 bucket")
	}

	// Load the Shared AWS Configuration (~/.aws/config)
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	ctxCfg, cancelCfg := context.WithTimeout(ctx, 3*time.Second)
	awsCfg, err := config.LoadDefaultConfig(ctxCfg, loadOpts...)
	cancelCfg()
	if err != nil {
		return nil, fmt.Errorf("unable to load aws config, %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return newS3Store(s3Client, manager.NewUploader(s3Client), cfg), nil
}

func newS3Store(client s3API, uploader s3Uploader, cfg S3Config) *S3Store {
	return &S3Store{
		client:    client,
		uploader:  uploader,
		bucket:    cfg.Bucket,
		prefix:    strings.TrimPrefix(cfg.Prefix, "/"),
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}
}

func (s *S3Store) BaseURL() string {
	return s.publicURL
}

// List returns every image object under the prefix, newest first.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var objects []s3types.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list", err)
		}
		for _, object := range page.Contents {
			if !util.IsImage(aws.ToString(object.Key)) {
				continue
			}
			objects = append(objects, object)
		}
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})

	images := make([]string, len(objects))
	for i, object := range objects {
		images[i] = s.publicURL + "/" + aws.ToString(object.Key)
	}
	if len(images) == 0 {
		slog.Info("no remote files found", "bucket", s.bucket)
	}
	return images, nil
}

func (s *S3Store) Upload(ctx context.Context, file *gallery.UploadFile, progress gallery.ProgressFunc) (string, error) {
	if !util.IsImage(file.Name) {
		return "", &gallery.RejectionError{Op: "upload", Message: fmt.Sprintf("unsupported file extension: %s", path.Ext(file.Name))}
	}

	key := path.Join(s.prefix, fmt.Sprintf("%d-%s", time.Now().UnixMilli(), path.Base(file.Name)))
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   newProgressReader(file.Body, file.Size, progress),
	}
	if file.ContentType != "" {
		input.ContentType = aws.String(file.ContentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", classifyS3Error("upload", err)
	}

	slog.Info("uploaded object to s3", "bucket", s.bucket, "key", key)
	return s.publicURL + "/" + key, nil
}

// Delete removes the object whose key is filename without its leading slash.
func (s *S3Store) Delete(ctx context.Context, filename string) error {
	key := strings.TrimPrefix(filename, "/")
	if key == "" {
		return &gallery.RejectionError{Op: "delete", Message: "filename is required"}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3Error("delete", err)
	}
	slog.Info("deleted object from s3", "bucket", s.bucket, "key", key)
	return nil
}

// classifyS3Error maps service errors to rejections and everything else to
// network failures.
func classifyS3Error(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &gallery.RejectionError{Op: op, Message: apiErr.ErrorMessage()}
	}
	return &gallery.NetworkError{Op: op, Err: err}
}
