package coldstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"alumni/internal/audit"
)

// PutObjectAPI is the S3 call the archive needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes one gzip JSONL object per day. The key is derived from the day
// alone so a retried day overwrites its own object.
type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3(client PutObjectAPI, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3Client loads the default AWS configuration for region.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (s *S3) Name() string { return "s3" }

// Key returns the object key for day.
func (s *S3) Key(day time.Time) string {
	k := day.UTC().Format("2006/01/02") + "/mutation_records.jsonl.gz"
	if s.prefix == "" {
		return k
	}
	return s.prefix + "/" + k
}

func (s *S3) Archive(ctx context.Context, day time.Time, recs []audit.MutationRecord) (string, error) {
	body, err := encodeDay(recs)
	if err != nil {
		return "", err
	}
	key := s.Key(day)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/x-jsonlines"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]string{
			"archive-day":  dayKey(day),
			"record-count": fmt.Sprint(len(recs)),
			"source":       "alumni-audit",
		},
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}
