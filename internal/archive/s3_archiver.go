package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/example/wc-matomo-tracking/internal/infrastructure/store"
)

const contentType = "application/x-ndjson"

// ObjectPutter is the part of the S3 client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// EntryLister reads the entries that are about to be pruned.
type EntryLister interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]store.LogEntry, error)
}

// S3Archiver copies expiring audit entries to S3 as JSON lines.
type S3Archiver struct {
	client  ObjectPutter
	entries EntryLister
	bucket  string
	prefix  string
}

func NewS3Archiver(client ObjectPutter, entries EntryLister, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, entries: entries, bucket: bucket, prefix: prefix}
}

// Key returns the object key used for an archive cut at cutoff.
func (a *S3Archiver) Key(cutoff time.Time) string {
	return path.Join(a.prefix, "logs-"+cutoff.UTC().Format("20060102T150405Z")+".jsonl")
}

// Archive uploads every entry created before cutoff, oldest first. Nothing is
// written when there is nothing to archive.
func (a *S3Archiver) Archive(ctx context.Context, cutoff time.Time) (string, int, error) {
	entries, err := a.entries.ListBefore(ctx, cutoff, 0)
	if err != nil {
		return "", 0, fmt.Errorf("list entries to archive: %w", err)
	}
	if len(entries) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", 0, fmt.Errorf("encode entry %d: %w", e.ID, err)
		}
	}

	key := a.Key(cutoff)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, len(entries), nil
}
