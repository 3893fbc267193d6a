package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"medisync-backend/internal/config"
	"medisync-backend/internal/models"
	"medisync-backend/internal/repositories"
	"medisync-backend/internal/timeutil"
)

// objectPutter is the slice of the S3 API the archiver needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveService exports a day's completed queue entries to R2 object
// storage as JSON, keyed by department and date. Used for end-of-day
// record keeping; the database rows are left untouched.
type ArchiveService struct {
	Store  repositories.QueueStore
	Bucket string
	client objectPutter
}

type archiveDocument struct {
	Department string               `json:"department"`
	Date       string               `json:"date"`
	ExportedAt time.Time            `json:"exported_at"`
	Count      int                  `json:"count"`
	Entries    []*models.QueueEntry `json:"entries"`
}

// NewArchiveService builds the R2 client from static credentials. Returns
// nil when archiving is disabled or misconfigured; callers treat a nil
// service as "feature off".
func NewArchiveService(cfg *config.Config, store repositories.QueueStore) *ArchiveService {
	if !cfg.Archive.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Archive.AccessKey,
			cfg.Archive.SecretKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Archive.Region),
	)
	if err != nil {
		log.Printf("[Archive] Failed to configure R2 client: %v", err)
		return nil
	}

	endpoint := cfg.Archive.Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &ArchiveService{
		Store:  store,
		Bucket: cfg.Archive.Bucket,
		client: client,
	}
}

// ArchiveDay exports the completed entries for one department on one
// service day. Returns the object key and number of entries exported.
func (s *ArchiveService) ArchiveDay(ctx context.Context, department string, day time.Time) (string, int, error) {
	if department == "" {
		return "", 0, models.ErrInvalidDepartment
	}

	start := timeutil.StartOfDay(day)
	end := timeutil.EndOfDay(day)
	entries, err := s.Store.ListCompletedBetween(ctx, department, start, end)
	if err != nil {
		return "", 0, storeErr(err)
	}

	doc := archiveDocument{
		Department: department,
		Date:       start.Format(timeutil.DateLayout),
		ExportedAt: timeutil.Now(),
		Count:      len(entries),
		Entries:    entries,
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", 0, err
	}

	key := fmt.Sprintf("queue-archive/%s/%s.json", department, doc.Date)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("archive upload failed: %w", err)
	}

	log.Printf("[Archive] Exported %d entries for %s on %s to %s", len(entries), department, doc.Date, key)
	return key, len(entries), nil
}
