package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/logvault-systems/logvault/internal/config"
	"github.com/logvault-systems/logvault/internal/metrics"
	"github.com/logvault-systems/logvault/internal/models"
)

// S3Backend archives entries as one object per entry in an S3-compatible
// bucket. Writes are first class; queries scan the project's prefix and
// filter in memory, so they suit archival inspection rather than
// interactive search.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3(ctx context.Context, cfg config.S3Config) (*S3Backend, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 backend requires endpoint and bucket")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	b := &S3Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *S3Backend) ensureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return nil
	}

	_, createErr := b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.bucket)})
	if createErr != nil {
		var apiErr smithy.APIError
		if errors.As(createErr, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket %s: %w", b.bucket, createErr)
	}
	return nil
}

func (b *S3Backend) Kind() Kind { return KindS3 }

// entryKey builds the hour-partitioned object key, e.g.
// "logs/<project>/2026/08/30/14/1756561200000000000_api_ERROR.json".
func (b *S3Backend) entryKey(entry *models.LogEntry) string {
	ts := entry.Timestamp.UTC()
	name := fmt.Sprintf("%d_%s_%s.json", ts.UnixNano(), entry.Service, entry.Level)
	return path.Join(b.prefix, entry.ProjectID, ts.Format("2006/01/02/15"), name)
}

func (b *S3Backend) projectPrefix(projectID string) string {
	return path.Join(b.prefix, projectID) + "/"
}

func (b *S3Backend) Write(ctx context.Context, entry *models.LogEntry) error {
	start := time.Now()
	defer func() {
		metrics.StorageDuration.WithLabelValues(string(KindS3)).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(entry)
	if err != nil {
		return &Error{Backend: KindS3, Op: "write", Transient: false, Err: err}
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.entryKey(entry)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return &Error{Backend: KindS3, Op: "write", Transient: true, Err: err}
	}
	return nil
}

func (b *S3Backend) WriteBatch(ctx context.Context, entries []*models.LogEntry) []error {
	return writeEach(ctx, b, entries)
}

func (b *S3Backend) Query(ctx context.Context, filter Filter) (*Page, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(string(KindS3)).Observe(time.Since(start).Seconds())
	}()

	var matched []models.LogEntry

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.projectPrefix(filter.ProjectID)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &Error{Backend: KindS3, Op: "query", Transient: true, Err: err}
		}
		for _, obj := range page.Contents {
			entry, err := b.fetchEntry(ctx, aws.ToString(obj.Key))
			if err != nil {
				return nil, err
			}
			if entryMatches(entry, filter) {
				matched = append(matched, *entry)
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	lo := filter.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + filter.Size
	if hi > total {
		hi = total
	}

	entries := make([]models.LogEntry, hi-lo)
	copy(entries, matched[lo:hi])

	return &Page{Entries: entries, Total: total}, nil
}

func (b *S3Backend) fetchEntry(ctx context.Context, key string) (*models.LogEntry, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &Error{Backend: KindS3, Op: "query", Transient: true, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &Error{Backend: KindS3, Op: "query", Transient: true, Err: err}
	}

	var entry models.LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &Error{Backend: KindS3, Op: "query", Transient: false,
			Err: fmt.Errorf("corrupt object %s: %w", key, err)}
	}
	return &entry, nil
}

func entryMatches(entry *models.LogEntry, filter Filter) bool {
	if filter.Level != "" && filter.Level != models.LevelAll && entry.Level != filter.Level {
		return false
	}
	if filter.Service != "" && entry.Service != filter.Service {
		return false
	}
	if filter.Search != "" && !searchMatches(entry, filter.Search) {
		return false
	}
	if filter.Start != nil && entry.Timestamp.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && entry.Timestamp.After(*filter.End) {
		return false
	}
	return true
}

// searchMatches spans message, service and metadata values, the same
// dimensions the other backends search.
func searchMatches(entry *models.LogEntry, search string) bool {
	if containsFold(entry.Message, search) || containsFold(entry.Service, search) {
		return true
	}
	for _, v := range entry.Metadata {
		if containsFold(fmt.Sprintf("%v", v), search) {
			return true
		}
	}
	return false
}

// containsFold matches the ASCII case-insensitivity of SQLite's LIKE so
// the search filter behaves the same across backends.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ListServices is not answerable from key prefixes without a full scan,
// so the S3 backend reports no services.
func (b *S3Backend) ListServices(ctx context.Context, projectID string) ([]string, error) {
	return []string{}, nil
}

func (b *S3Backend) Healthy(ctx context.Context) bool {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	return err == nil
}

func (b *S3Backend) Close() error {
	return nil
}
