package minio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultRegion, cfg.Region)
	assert.Equal(t, DefaultBucket, cfg.Bucket)
	assert.False(t, cfg.UseSSL)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{Endpoint: "s3.local:9000", AccessKey: "ak"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRegion, cfg.Region)
	assert.Equal(t, DefaultBucket, cfg.Bucket)

	err := (&Config{AccessKey: "ak"}).Validate()
	assert.Equal(t, sserr.CodeValidationRequired, sserr.GetCode(err))

	err = (&Config{Endpoint: "s3.local:9000"}).Validate()
	assert.Equal(t, sserr.CodeValidationRequired, sserr.GetCode(err))
}

func TestConfig_SecretKeyRedacted(t *testing.T) {
	t.Parallel()
	cfg := Config{SecretKey: "s3cr3t"}
	assert.Equal(t, "[REDACTED]", cfg.SecretKey.String())
	assert.Equal(t, "s3cr3t", cfg.SecretKey.Value())
}
