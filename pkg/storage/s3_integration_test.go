//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

// Requires Docker.
func TestS3Store_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start localstack")

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     "test",
				SecretAccessKey: "test",
				SessionToken:    "test",
			}, nil
		})),
	)
	require.NoError(t, err)

	store := NewS3Store(cfg, "scan-exports", func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	_, err = store.Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("scan-exports")})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "prowler/2024-02.csv", []byte("b")))
	require.NoError(t, store.Put(ctx, "prowler/2024-01.csv", []byte("a")))

	keys, err := store.List(ctx, "prowler/")
	require.NoError(t, err)
	assert.Equal(t, []string{"prowler/2024-01.csv", "prowler/2024-02.csv"}, keys)

	data, err := store.Get(ctx, "prowler/2024-01.csv")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}
