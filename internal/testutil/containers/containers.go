//go:build integration

// Package containers starts the backing services of the authn service in
// Docker for integration tests. Every helper terminates its container
// through t.Cleanup and returns a client config ready to connect:
//
//	cfg := containers.Postgres(t)
//	db, err := pgclient.NewClient(ctx, cfg)
//
// Files using this package must carry the integration build tag.
package containers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	mnclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/minio"
	pgclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/postgres"
	rdclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
)

const (
	PostgresImage = "docker.io/postgres:16-alpine"
	RedisImage    = "docker.io/redis:7-alpine"
	MinIOImage    = "docker.io/minio/minio:latest"
)

// Test-only credentials for ephemeral containers.
const (
	postgresDatabase = "authn_test"
	postgresUser     = "authn"
	postgresPassword = "authn-test-password"
	minioUser        = "minioadmin"
	minioPassword    = "minioadmin"
)

// Postgres starts PostgreSQL 16 and returns a config pointing at it.
func Postgres(t testing.TB) pgclient.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		PostgresImage,
		tcpostgres.WithDatabase(postgresDatabase),
		tcpostgres.WithUsername(postgresUser),
		tcpostgres.WithPassword(postgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "containers: failed to start postgres")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "containers: failed to get postgres connection string")

	return pgclient.Config{URI: uri, SSLMode: pgclient.SSLModeDisable, MaxConns: 4}
}

// Redis starts Redis 7 and returns a config pointing at it. prefix
// isolates keys when several tests share the container.
func Redis(t testing.TB, prefix string) rdclient.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, RedisImage)
	require.NoError(t, err, "containers: failed to start redis")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "containers: failed to get redis connection string")

	return rdclient.Config{URI: uri, KeyPrefix: prefix}
}

// MinIO starts MinIO and returns a config writing to bucket.
func MinIO(t testing.TB, bucket string) mnclient.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcminio.Run(ctx,
		MinIOImage,
		tcminio.WithUsername(minioUser),
		tcminio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "containers: failed to start minio")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err, "containers: failed to get minio endpoint")

	return mnclient.Config{
		Endpoint:  strings.TrimPrefix(endpoint, "http://"),
		AccessKey: minioUser,
		SecretKey: credentials.Secret(minioPassword),
		Region:    "us-east-1",
		Bucket:    bucket,
	}
}
