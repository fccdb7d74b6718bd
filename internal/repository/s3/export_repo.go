package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appConfig "github.com/banking/compliance-engine/internal/config"
)

// ExportRepository stores data-subject export artifacts and archived
// compliance reports in object storage, returning the URL collaborators use
// to reach them.
type ExportRepository struct {
	client        *s3.Client
	exportBucket  string
	reportsBucket string
	publicBaseURL string
}

func NewExportRepository(ctx context.Context, cfg appConfig.S3Config) (*ExportRepository, error) {
	// Custom resolver for MinIO/Localstack support
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO
	})

	return &ExportRepository{
		client:        client,
		exportBucket:  cfg.ExportBucket,
		reportsBucket: cfg.ReportsBucket,
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

// PutExport uploads one data-subject export artifact.
// Key format: year/month/requestID.json
func (r *ExportRepository) PutExport(ctx context.Context, requestID uuid.UUID, payload []byte) (string, error) {
	now := time.Now().UTC()
	key := fmt.Sprintf("%d/%02d/%s.json", now.Year(), now.Month(), requestID)

	if err := r.put(ctx, r.exportBucket, key, payload); err != nil {
		return "", fmt.Errorf("failed to upload export to s3: %w", err)
	}
	return r.url(r.exportBucket, key), nil
}

// PutReport uploads an archived report snapshot. The caller supplies a
// period-keyed name, so re-running a period overwrites the previous archive.
func (r *ExportRepository) PutReport(ctx context.Context, key string, payload []byte) (string, error) {
	objectKey := "reports/" + key
	if err := r.put(ctx, r.reportsBucket, objectKey, payload); err != nil {
		return "", fmt.Errorf("failed to upload report to s3: %w", err)
	}
	return r.url(r.reportsBucket, objectKey), nil
}

func (r *ExportRepository) put(ctx context.Context, bucket, key string, payload []byte) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (r *ExportRepository) url(bucket, key string) string {
	if r.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", r.publicBaseURL, bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
