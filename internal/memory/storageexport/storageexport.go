// Package storageexport uploads encrypted retention-purge snapshots to
// S3, adapted from the teacher's internal/storage S3Client down to the
// single upload path this system needs: a compliance record of each
// memory's already-sealed bytes, written just before the retention purge
// deletes it from the primary store.
package storageexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config names the S3 destination for retention-purge snapshots.
// AccessKey/SecretKey are only needed against a LocalStack-style endpoint
// in development; leave them empty in production to fall back to the SDK's
// default credential chain (IAM role, env vars, shared config).
type Config struct {
	Enabled   bool
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
}

// Client uploads snapshot objects to S3.
type Client struct {
	s3       *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewClient builds a Client from cfg. When cfg.AccessKey/SecretKey are set
// it pins a static credentials provider (for a LocalStack-style endpoint in
// development); otherwise it loads AWS credentials from the
// environment/instance profile the same way the rest of the AWS SDK
// default chain does.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &Client{
		s3:       client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

// Snapshot is one purged memory's compliance record: the sealed (still
// encrypted/compressed) bytes as they sat in the primary store, never
// the plaintext.
type Snapshot struct {
	MemoryID            string
	UserID              string
	SealedContent       []byte
	EncryptionAlgorithm string
	CreatedAt           time.Time
	PurgedAt            time.Time
}

type snapshotEnvelope struct {
	MemoryID            string    `json:"memory_id"`
	UserID              string    `json:"user_id"`
	SealedContentBase64 []byte    `json:"sealed_content"`
	EncryptionAlgorithm string    `json:"encryption_algorithm"`
	CreatedAt           time.Time `json:"created_at"`
	PurgedAt            time.Time `json:"purged_at"`
}

func marshalSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(snapshotEnvelope{
		MemoryID:            s.MemoryID,
		UserID:              s.UserID,
		SealedContentBase64: s.SealedContent,
		EncryptionAlgorithm: s.EncryptionAlgorithm,
		CreatedAt:           s.CreatedAt,
		PurgedAt:            s.PurgedAt,
	})
}

// key builds the object key a snapshot is written under: one object per
// purged memory, partitioned by user so a GDPR erasure can still find and
// remove any snapshot for that user.
func (c *Client) key(s Snapshot) string {
	return fmt.Sprintf("%s/%s/%s.json", c.prefix, s.UserID, s.MemoryID)
}

// Put uploads one retention-purge snapshot. The body is a minimal JSON
// envelope around the already-sealed content; nothing here ever touches
// plaintext.
func (c *Client) Put(ctx context.Context, snap Snapshot) error {
	body, err := marshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.key(snap)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", snap.MemoryID, err)
	}
	return nil
}

// DeleteUser removes every snapshot object stored under userID's prefix,
// so GDPR erasure reaches the S3 export path too.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	prefix := fmt.Sprintf("%s/%s/", c.prefix, userID)
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list snapshots for %s: %w", userID, err)
		}
		for _, obj := range page.Contents {
			if _, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    obj.Key,
			}); err != nil {
				return fmt.Errorf("delete snapshot %s: %w", aws.ToString(obj.Key), err)
			}
		}
	}
	return nil
}
