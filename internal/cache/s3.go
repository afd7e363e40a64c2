package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/52poke/raikou/internal/metrics"
)

const expiresAtMetaKey = "expires_at"

// s3API is the slice of the S3 client the store uses, kept narrow so
// tests can substitute an in-memory implementation.
type s3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store keeps cache entries as objects in a bucket, with the expiry
// carried in object metadata. Objects read past their expiry count as
// misses and are deleted opportunistically.
type S3Store struct {
	bucket   string
	client   s3API
	uploader *manager.Uploader
	log      *logrus.Logger
	health   *health
}

func NewS3Store(bucket string, client s3API, log *logrus.Logger) *S3Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &S3Store{
		bucket:   bucket,
		client:   client,
		uploader: manager.NewUploader(client),
		log:      log,
		health:   newHealth(0, 0),
	}
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if open, _ := s.health.state(); !open {
		return nil, false
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			s.health.succeeded()
			return nil, false
		}
		s.fail("get", key, err)
		return nil, false
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		s.fail("get", key, err)
		return nil, false
	}
	s.health.succeeded()

	if expired(parseExpiresAt(out.Metadata)) {
		_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return nil, false
	}
	return body, true
}

func (s *S3Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if open, _ := s.health.state(); !open {
		return nil
	}
	meta := map[string]string{
		expiresAtMetaKey: strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
		Metadata:    meta,
	})
	if err != nil {
		s.fail("set", key, err)
		return err
	}
	s.health.succeeded()
	return nil
}

func (s *S3Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if open, _ := s.health.state(); !open {
		return 0, nil
	}

	var (
		token   *string
		deleted int
	)
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			s.fail("delete", prefix, err)
			return deleted, err
		}
		if len(page.Contents) > 0 {
			ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
			for _, obj := range page.Contents {
				ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
			}
			out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				s.fail("delete", prefix, err)
				return deleted, err
			}
			deleted += len(ids) - len(out.Errors)
		}
		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	s.health.succeeded()
	return deleted, nil
}

func (s *S3Store) Available(ctx context.Context) bool {
	open, probe := s.health.state()
	if !open {
		return false
	}
	if !probe {
		return true
	}
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		s.fail("ping", "", err)
		return false
	}
	s.health.succeeded()
	return true
}

func (s *S3Store) fail(op, key string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	s.health.failed()
	s.log.WithError(err).WithFields(logrus.Fields{"op": op, "key": key}).Warn("cache store error")
}

func parseExpiresAt(meta map[string]string) time.Time {
	if meta == nil {
		return time.Time{}
	}
	val, ok := meta[expiresAtMetaKey]
	if !ok {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func expired(at time.Time) bool {
	if at.IsZero() {
		return true
	}
	return time.Now().After(at)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return false
}
