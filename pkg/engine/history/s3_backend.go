package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/DrSkyle/scantrail/pkg/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Backend implements S3-based history storage.
type S3Backend struct {
	Bucket string
	Key    string
	Client *s3.Client
}

// NewS3Backend initializes an S3 backend.
func NewS3Backend(ctx context.Context, s3URL string) (*S3Backend, error) {
	loc, err := storage.ParseS3URL(s3URL)
	if err != nil {
		return nil, err
	}
	if loc.Prefix == "" {
		return nil, fmt.Errorf("invalid ledger url %q: missing object key", s3URL)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &S3Backend{
		Bucket: loc.Bucket,
		Key:    loc.Prefix,
		Client: s3.NewFromConfig(cfg),
	}, nil
}

// Append rewrites the whole object; S3 has no append.
func (b *S3Backend) Append(ctx context.Context, s RunSummary) error {
	existing, err := b.readAll(ctx)
	if err != nil {
		return err
	}

	existing = append(existing, s)

	var buf bytes.Buffer
	for _, entry := range existing {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteString("\n")
	}

	_, err = b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}

func (b *S3Backend) Load(ctx context.Context, n int) ([]RunSummary, error) {
	history, err := b.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return tail(history, n), nil
}

func (b *S3Backend) readAll(ctx context.Context) ([]RunSummary, error) {
	resp, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return []RunSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decode(bufio.NewScanner(bytes.NewReader(bodyBytes)))
}

// isNotFound matches a missing ledger object. A fresh ledger starts empty.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
