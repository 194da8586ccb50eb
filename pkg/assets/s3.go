package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/events"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/metrics"
)

// Uploader stores objects in a bucket
type Uploader interface {
	// EnsureBucket creates the bucket if it does not exist
	EnsureBucket(ctx context.Context, bucket string) error

	// Exists reports whether the object is already stored
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Put stores the object
	Put(ctx context.Context, bucket, key, contentType string, body []byte) error

	// URL returns the HTTPS address of an object
	URL(bucket, key string) string
}

// Publish uploads the asset unless an object with the same hash is already
// stored. It reports whether an upload happened.
func Publish(ctx context.Context, up Uploader, bucket string, asset *Asset, publisher events.Publisher) (bool, error) {
	logger := log.WithComponent("assets")

	if err := up.EnsureBucket(ctx, bucket); err != nil {
		metrics.AssetUploadsTotal.WithLabelValues("failed").Inc()
		return false, err
	}

	exists, err := up.Exists(ctx, bucket, asset.Key())
	if err != nil {
		metrics.AssetUploadsTotal.WithLabelValues("failed").Inc()
		return false, err
	}
	metrics.AssetBytes.Set(float64(asset.Size()))

	if exists {
		metrics.AssetUploadsTotal.WithLabelValues("skipped").Inc()
		logger.Debug().Str("key", asset.Key()).Msg("asset already published")
		return false, nil
	}

	if err := up.Put(ctx, bucket, asset.Key(), "application/zip", asset.Data); err != nil {
		metrics.AssetUploadsTotal.WithLabelValues("failed").Inc()
		return false, err
	}
	metrics.AssetUploadsTotal.WithLabelValues("uploaded").Inc()

	size := humanize.Bytes(uint64(asset.Size()))
	logger.Info().Str("bucket", bucket).Str("key", asset.Key()).Str("size", size).Msg("asset published")
	if publisher != nil {
		publisher.Publish(events.New(events.EventAssetUploaded, fmt.Sprintf("s3://%s/%s (%s)", bucket, asset.Key(), size), map[string]string{
			"bucket": bucket,
			"key":    asset.Key(),
		}))
	}
	return true, nil
}

// S3API is the subset of the S3 client the uploader calls
type S3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader is the Uploader backed by Amazon S3
type S3Uploader struct {
	api    S3API
	region string
}

// NewS3Uploader creates an uploader from an AWS configuration
func NewS3Uploader(cfg aws.Config) *S3Uploader {
	return &S3Uploader{api: s3.NewFromConfig(cfg), region: cfg.Region}
}

// NewS3UploaderWithAPI creates an uploader around an existing client
func NewS3UploaderWithAPI(api S3API, region string) *S3Uploader {
	return &S3Uploader{api: api, region: region}
}

func (u *S3Uploader) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := u.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if u.region != "" && u.region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(u.region),
		}
	}
	if _, err := u.api.CreateBucket(ctx, in); err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	logger := log.WithComponent("assets")
	logger.Info().Str("bucket", bucket).Msg("asset bucket created")
	return nil
}

func (u *S3Uploader) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := u.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check s3://%s/%s: %w", bucket, key, err)
}

func (u *S3Uploader) Put(ctx context.Context, bucket, key, contentType string, body []byte) error {
	_, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (u *S3Uploader) URL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, u.region, key)
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return true
	}
	// HEAD responses carry no body, so some errors only have a code
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket")
}
