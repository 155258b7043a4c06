package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/logging"
	"github.com/rs/zerolog/log"
	"github.com/synesthesie/artmarket/internal/config"
)

// ErrIncompleteS3Config is returned when the media bucket is not configured.
var ErrIncompleteS3Config = errors.New("incomplete S3 configuration")

// deleteBatchSize is the DeleteObjects per-request key limit.
const deleteBatchSize = 1000

// S3ImageStore keeps artwork images in the media bucket.
type S3ImageStore struct {
	client      *s3.Client
	uploader    *manager.Uploader
	bucket      string
	endpoint    string
	publicURL   string
	timeout     time.Duration
	concurrency int
	variants    variantBuilder
}

func NewS3ImageStore(cfg *config.Config) (*S3ImageStore, error) {
	if strings.TrimSpace(cfg.MediaImagesBucket) == "" || strings.TrimSpace(cfg.MediaS3Region) == "" {
		return nil, ErrIncompleteS3Config
	}
	client, err := buildClient(cfg.MediaS3Endpoint, cfg.MediaS3Region, cfg.MediaS3AccessKeyID, cfg.MediaS3SecretAccessKey, cfg.MediaS3UsePathStyle)
	if err != nil {
		return nil, fmt.Errorf("failed to build s3 client: %w", err)
	}

	store := &S3ImageStore{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024
		}),
		bucket:      cfg.MediaImagesBucket,
		endpoint:    strings.TrimRight(cfg.MediaS3Endpoint, "/"),
		publicURL:   strings.TrimRight(cfg.MediaPublicURL, "/"),
		timeout:     cfg.ImageStoreTimeout,
		concurrency: cfg.ImageUploadConcurrency,
	}
	store.variants = variantBuilder{baseURL: cfg.ImageVariantsBaseURL, original: store.objectURL}
	return store, nil
}

func buildClient(endpoint, region, key, secret string, pathStyle bool) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithLogger(logging.LoggerFunc(func(classification logging.Classification, format string, v ...interface{}) {
			if classification == logging.Warn {
				log.Warn().Str("component", "s3").Msgf(format, v...)
				return
			}
			log.Debug().Str("component", "s3").Msgf(format, v...)
		})),
	}
	if key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *S3ImageStore) UploadMany(ctx context.Context, files []UploadFile, namespace string) ([]StoredImage, error) {
	return uploadConcurrently(ctx, files, namespace, s.concurrency, s.timeout, s.put, s.deleteKeys)
}

func (s *S3ImageStore) put(ctx context.Context, key string, file UploadFile) (StoredImage, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(file.Data),
		ContentType:  aws.String(file.ContentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return StoredImage{}, err
	}
	return StoredImage{URL: s.objectURL(key), PublicID: key}, nil
}

func (s *S3ImageStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.deleteKeys(ctx, publicIDs)
}

func (s *S3ImageStore) deleteKeys(ctx context.Context, keys []string) error {
	var errs []error
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		objects := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, failed := range out.Errors {
			errs = append(errs, fmt.Errorf("delete %s: %s", aws.ToString(failed.Key), aws.ToString(failed.Message)))
		}
	}
	return errors.Join(errs...)
}

func (s *S3ImageStore) VariantsFor(publicID string) *ImageVariants {
	return s.variants.variantsFor(publicID)
}

// objectURL prefers the public CDN url and falls back to a path-style endpoint url.
func (s *S3ImageStore) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.publicURL != "" {
		return s.publicURL + "/" + escaped
	}
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, escaped)
}
