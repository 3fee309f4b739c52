// Package eventarchive exports the immutable ad event log to S3 as one JSON
// lines object per day.
package eventarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
)

const (
	lastDayKey = "event_archive_last_day"
	pageSize   = 1000
	// maxCatchUpDays bounds one run after a long outage.
	maxCatchUpDays = 7
)

// ObjectPutter is the slice of the S3 API the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client for cfg.
func NewS3Client(ctx context.Context, cfg *Config) (*s3.Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("event archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	}), nil
}

// DayResult describes one exported day.
type DayResult struct {
	Day    string `json:"day"`
	Key    string `json:"key,omitempty"`
	Events int    `json:"events"`
}

// Archiver pages through the event log and uploads it.
type Archiver struct {
	repos  *repository.Repositories
	client ObjectPutter
	config *Config
	clock  clock.Clock
}

// NewArchiver creates an archiver writing through client.
func NewArchiver(repos *repository.Repositories, client ObjectPutter, cfg *Config, clk clock.Clock) *Archiver {
	return &Archiver{repos: repos, client: client, config: cfg, clock: clk}
}

// ExportDay uploads every event that occurred on day. Days without events
// produce no object.
func (a *Archiver) ExportDay(ctx context.Context, day time.Time) (DayResult, error) {
	from := clock.DateOf(day)
	to := from.AddDate(0, 0, 1)
	res := DayResult{Day: from.Format("2006-01-02")}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	var afterID uint
	for {
		events, err := a.repos.AdEvent.ListBetween(ctx, from, to, afterID, pageSize)
		if err != nil {
			return res, err
		}
		for i := range events {
			if err := enc.Encode(&events[i]); err != nil {
				return res, err
			}
		}
		res.Events += len(events)
		if len(events) < pageSize {
			break
		}
		afterID = events[len(events)-1].ID
	}
	if res.Events == 0 {
		return res, nil
	}

	res.Key = a.config.ObjectKey(from, uuid.NewString())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.config.BucketName),
		Key:           aws.String(res.Key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("application/x-ndjson"),
		ContentLength: aws.Int64(int64(buf.Len())),
		Metadata: map[string]string{
			"event-count":   fmt.Sprint(res.Events),
			"upload-source": "pixelmart-event-archive",
		},
	})
	if err != nil {
		return res, fmt.Errorf("failed to upload %s: %w", res.Key, err)
	}
	log.Infof("[EventArchive] Uploaded %d events to s3://%s/%s", res.Events, a.config.BucketName, res.Key)
	return res, nil
}

// ArchivePending exports every completed day after the last archived one,
// oldest first, and records progress after each day.
func (a *Archiver) ArchivePending(ctx context.Context) ([]DayResult, error) {
	yesterday := clock.Today(a.clock).AddDate(0, 0, -1)

	next := yesterday
	last, err := a.repos.Setting.GetValue(lastDayKey)
	if err != nil {
		return nil, err
	}
	if last != "" {
		parsed, err := time.ParseInLocation("2006-01-02", last, yesterday.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", lastDayKey, last, err)
		}
		next = parsed.AddDate(0, 0, 1)
	}
	if earliest := yesterday.AddDate(0, 0, -(maxCatchUpDays - 1)); next.Before(earliest) {
		log.Warnf("[EventArchive] Skipping archive days before %s", earliest.Format("2006-01-02"))
		next = earliest
	}

	var done []DayResult
	for day := next; !day.After(yesterday); day = day.AddDate(0, 0, 1) {
		res, err := a.ExportDay(ctx, day)
		if err != nil {
			return done, err
		}
		if err := a.repos.Setting.SetValue(lastDayKey, res.Day); err != nil {
			return done, err
		}
		done = append(done, res)
	}
	return done, nil
}
