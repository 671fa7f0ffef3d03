package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"face-attendance/internal/config"
	"face-attendance/internal/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Store хранит blob'ы в S3 бакете под ключом <prefix><handle>
type S3Store struct {
	bucket   string
	prefix   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3Store создает S3 хранилище. Endpoint позволяет работать с minio.
func NewS3Store(cfg config.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("не задан S3 бакет")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	if cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать S3 сессию: %w", err)
	}
	client := s3.New(sess)

	return &S3Store{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}, nil
}

func (s *S3Store) key(handle models.BlobHandle) string {
	return s.prefix + string(handle)
}

// Put загружает поток; возвращается только после подтверждения S3
func (s *S3Store) Put(ctx context.Context, name string, r io.Reader) (models.BlobHandle, error) {
	handle := newHandle(name)

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(handle)),
		ContentType: aws.String("application/gzip"),
		Metadata:    map[string]*string{"Name": aws.String(name)},
		Body:        r,
	})
	if err != nil {
		return "", &StoreError{Op: "put", Handle: handle, Err: err}
	}
	return handle, nil
}

// Get возвращает тело объекта как поток
func (s *S3Store) Get(ctx context.Context, handle models.BlobHandle) (io.ReadCloser, error) {
	if _, _, err := splitHandle(handle); err != nil {
		return nil, &StoreError{Op: "get", Handle: handle, Err: err}
	}

	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(handle)),
	})
	if err != nil {
		return nil, &StoreError{Op: "get", Handle: handle, Err: translateS3Error(err)}
	}
	return resp.Body, nil
}

// Delete удаляет объект
func (s *S3Store) Delete(ctx context.Context, handle models.BlobHandle) error {
	if _, _, err := splitHandle(handle); err != nil {
		return &StoreError{Op: "delete", Handle: handle, Err: err}
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(handle)),
	})
	if err != nil {
		return &StoreError{Op: "delete", Handle: handle, Err: translateS3Error(err)}
	}
	return nil
}

func translateS3Error(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("%w: %s", ErrBlobNotFound, aerr.Message())
		}
	}
	return err
}
