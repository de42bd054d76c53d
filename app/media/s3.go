package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps media in an S3-compatible bucket (AWS, MinIO, R2).
type S3Store struct {
	client    s3API
	bucket    string
	publicURL string
	now       func() time.Time
}

func NewS3Store(ctx context.Context, cfg config.MediaConfig) (*S3Store, error) {
	if cfg.S3.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3.Bucket, cfg.S3.Region)
	}

	return newS3StoreWithClient(client, cfg.S3.Bucket, publicURL), nil
}

func newS3StoreWithClient(client s3API, bucket, publicURL string) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		publicURL: publicURL,
		now:       time.Now,
	}
}

func (s *S3Store) Upload(ctx context.Context, file File, folder string) (*Asset, error) {
	info, err := Inspect(file)
	if err != nil {
		return nil, err
	}

	key, err := newObjectKey(folder, info, s.now())
	if err != nil {
		return nil, fmt.Errorf("object key: %w", err)
	}

	body, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer body.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(file.Size),
		ContentType:   aws.String(info.ContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket":    s.bucket,
		"public_id": key,
	}).Debug("Media uploaded to s3")

	return &Asset{
		URL:         s.publicURL + "/" + key,
		PublicID:    key,
		ContentType: info.ContentType,
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, publicID string) error {
	if err := validatePublicID(publicID); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
