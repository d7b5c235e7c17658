package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultKeyPrefix, cfg.KeyPrefix)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultKeyPrefix, cfg.KeyPrefix)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		code sserr.Code
	}{
		{"bad scheme", Config{URI: "http://localhost:6379"}, sserr.CodeValidationFormat},
		{"unparseable uri", Config{URI: "redis://%zz"}, sserr.CodeValidationFormat},
		{"port", Config{Port: 70000}, sserr.CodeValidationRange},
		{"db", Config{DB: -1}, sserr.CodeValidationRange},
		{"pool below idle", Config{PoolSize: 1, MinIdleConns: 4}, sserr.CodeValidationRange},
		{"negative timeout", Config{ReadTimeout: -1}, sserr.CodeValidationRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, sserr.GetCode(err))
		})
	}
}

func TestConfig_Validate_URI(t *testing.T) {
	t.Parallel()
	for _, uri := range []string{"redis://localhost:6379/0", "rediss://:pw@cache:6380/2"} {
		cfg := Config{URI: uri}
		assert.NoError(t, cfg.Validate(), uri)
	}
}
