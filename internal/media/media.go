// Package media stores profile pictures fetched from identity providers.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxPictureBytes caps a downloaded picture.
const MaxPictureBytes = 5 << 20

// KeyPrefix is the object-key prefix for profile pictures.
const KeyPrefix = "profile-pics/"

var (
	// ErrTooLarge is returned when the picture exceeds MaxPictureBytes.
	ErrTooLarge = errors.New("picture too large")
	// ErrBadResponse is returned when the picture URL does not answer 200.
	ErrBadResponse = errors.New("picture download failed")
)

// PictureSaver downloads a picture and returns a storage reference for it.
// An empty reference with a nil error means nothing was stored.
type PictureSaver interface {
	SaveFromURL(ctx context.Context, accountID int64, url string) (string, error)
}

// S3Config configures the picture bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // set for MinIO or other S3-compatible stores
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client from cfg. Static credentials are used when
// AccessKey is set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// objectPutter is the subset of *s3.Client used by S3Saver.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Saver stores pictures in an S3 bucket.
type S3Saver struct {
	s3     objectPutter
	bucket string
	http   *http.Client
	logger *zap.Logger
}

// NewS3Saver creates an S3Saver. httpClient performs the download and should
// carry a timeout.
func NewS3Saver(client objectPutter, bucket string, httpClient *http.Client, logger *zap.Logger) *S3Saver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &S3Saver{s3: client, bucket: bucket, http: httpClient, logger: logger}
}

// SaveFromURL downloads url and uploads it as
// profile-pics/<account>-<uuid><ext>, returning the object key.
func (s *S3Saver) SaveFromURL(ctx context.Context, accountID int64, url string) (string, error) {
	data, contentType, err := s.download(ctx, url)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s%d-%s%s", KeyPrefix, accountID, uuid.New(), extensionFor(contentType))
	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload picture: %w", err)
	}

	s.logger.Info("profile picture stored",
		zap.Int64("account_id", accountID),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return key, nil
}

func (s *S3Saver) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build picture request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download picture: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPictureBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read picture: %w", err)
	}
	if len(data) > MaxPictureBytes {
		return nil, "", ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

var commonExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// extensionFor maps a content type to a file extension, or "" if unknown.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	mediaType = strings.ToLower(mediaType)
	if ext, ok := commonExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// DiscardSaver stores nothing. It is used when no bucket is configured.
type DiscardSaver struct {
	logger *zap.Logger
}

// NewDiscardSaver creates a DiscardSaver.
func NewDiscardSaver(logger *zap.Logger) *DiscardSaver {
	return &DiscardSaver{logger: logger}
}

// SaveFromURL logs the URL and returns an empty reference.
func (d *DiscardSaver) SaveFromURL(_ context.Context, accountID int64, url string) (string, error) {
	d.logger.Debug("picture storage disabled, skipping", zap.Int64("account_id", accountID), zap.String("url", url))
	return "", nil
}
