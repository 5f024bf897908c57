package storage

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage is a thin wrapper around the minio client used for exports.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg config.MinIOConfig) (*MinIOStorage, error) {
	if !Configured(cfg) {
		return nil, apperr.Unavailable("minio not configured")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "minio client")
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, apperr.Wrap(apperr.KindUnavailable, err, "minio bucket ensure")
		}
	}
	return s, nil
}

// UploadFile uploads data from reader to the configured bucket using the provided key.
func (s *MinIOStorage) UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "upload export")
	}
	return nil
}

// DownloadFile returns a ReadCloser for the stored object.
func (s *MinIOStorage) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "download export")
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperr.NotFound("export not found")
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "download export")
	}
	return obj, nil
}

// GetPresignedURL returns a presigned GET URL valid for expires. A non-empty
// filename is sent back as the attachment name.
func (s *MinIOStorage) GetPresignedURL(ctx context.Context, key, filename string, expires time.Duration) (string, error) {
	reqParams := make(url.Values)
	if filename != "" {
		reqParams.Set("response-content-disposition", `attachment; filename="`+filename+`"`)
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, reqParams)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnavailable, err, "presign export")
	}
	return presigned.String(), nil
}
