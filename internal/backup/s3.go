package backup

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/slyxzy/collab-code-editor/internal/config"
)

// S3BlobStore implements BlobStore against a single S3 bucket
type S3BlobStore struct {
	client *s3.S3
	bucket string
}

func NewS3BlobStore(cfg config.BackupConfig) (*S3BlobStore, error) {
	awsSession, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3BlobStore{
		client: s3.New(awsSession),
		bucket: cfg.Bucket,
	}, nil
}

func (s *S3BlobStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})

	return err
}

func (s *S3BlobStore) List(ctx context.Context, prefix string) ([]Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	var objects []Object

	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, item := range page.Contents {
			if item.Key == nil || item.LastModified == nil {
				continue
			}

			objects = append(objects, Object{
				Key:          *item.Key,
				LastModified: *item.LastModified,
			})
		}

		return true
	})

	if err != nil {
		return nil, err
	}

	return objects, nil
}

func (s *S3BlobStore) BatchDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	identifiers := make([]*s3.ObjectIdentifier, 0, len(keys))

	for _, key := range keys {
		identifiers = append(identifiers, &s3.ObjectIdentifier{Key: aws.String(key)})
	}

	_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3.Delete{Objects: identifiers},
	})

	return err
}
