package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// ===========================================================================
// Mock Implementation
// ===========================================================================

type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) TTL(ctx context.Context, key string) *redis.DurationCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.DurationCmd)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	called := m.Called(ctx, script, keys, args)
	return called.Get(0).(*redis.Cmd)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	return m.Called().Error(0)
}

func newCmd(val any, err error) *redis.Cmd {
	cmd := redis.NewCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newStatusCmd(val string, err error) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newStringCmd(val string, err error) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newIntCmd(val int64, err error) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newDurationCmd(val time.Duration, err error) *redis.DurationCmd {
	cmd := redis.NewDurationCmd(context.Background(), time.Second)
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// ===========================================================================
// Construction
// ===========================================================================

func TestNewFromClient(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	cfg := &Config{DB: 3, KeyPrefix: "authn:"}
	client := NewFromClient(m, cfg)
	assert.Equal(t, cfg, client.config)
	assert.Equal(t, 3, client.dbIndex)
	assert.NotNil(t, client.tracer)

	nilCfg := NewFromClient(m, nil)
	require.NotNil(t, nilCfg.config)
	assert.Equal(t, 0, nilCfg.dbIndex)
}

func TestClient_Key(t *testing.T) {
	t.Parallel()
	client := NewFromClient(new(mockCmdable), &Config{KeyPrefix: "authn:"})
	assert.Equal(t, "authn:attempt:42", client.Key("attempt", "42"))
	assert.Equal(t, "authn:x", client.Key("x"))
	assert.Equal(t, "authn:", client.Key())
}

// ===========================================================================
// Commands
// ===========================================================================

func TestClient_Set(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Set", mock.Anything, "authn:attempt:1", "{}", 10*time.Minute).Return(newStatusCmd("OK", nil)).Once()
	m.On("Set", mock.Anything, "authn:attempt:2", "{}", time.Duration(0)).Return(newStatusCmd("", errors.New("READONLY"))).Once()

	client := NewFromClient(m, nil)
	require.NoError(t, client.Set(context.Background(), "authn:attempt:1", "{}", 10*time.Minute))

	err := client.Set(context.Background(), "authn:attempt:2", "{}", 0)
	assert.Equal(t, sserr.CodeInternalDatabase, sserr.GetCode(err))
	m.AssertExpectations(t)
}

func TestClient_Get(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Get", mock.Anything, "hit").Return(newStringCmd("value", nil))
	m.On("Get", mock.Anything, "miss").Return(newStringCmd("", redis.Nil))
	m.On("Get", mock.Anything, "slow").Return(newStringCmd("", context.DeadlineExceeded))

	client := NewFromClient(m, nil)

	val, err := client.Get(context.Background(), "hit")
	require.NoError(t, err)
	assert.Equal(t, "value", val)

	_, err = client.Get(context.Background(), "miss")
	assert.ErrorIs(t, err, Nil)
	assert.Equal(t, sserr.CodeNotFoundResource, sserr.GetCode(err))

	_, err = client.Get(context.Background(), "slow")
	assert.Equal(t, sserr.CodeTimeoutDatabase, sserr.GetCode(err))
	assert.True(t, sserr.IsRetryable(err))
}

func TestClient_Del(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"a", "b"}).Return(newIntCmd(1, nil)).Once()
	m.On("Del", mock.Anything, []string{"c"}).Return(newIntCmd(0, errors.New("boom"))).Once()

	client := NewFromClient(m, nil)
	n, err := client.Del(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = client.Del(context.Background(), "c")
	assert.True(t, sserr.IsStorageFailure(err))
}

func TestClient_TTL(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("TTL", mock.Anything, "k").Return(newDurationCmd(90*time.Second, nil))

	d, err := NewFromClient(m, nil).TTL(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestClient_Eval(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Eval", mock.Anything, "return 1", []string{"a", "b"}, []any{"x"}).Return(newCmd(int64(1), nil))
	m.On("Eval", mock.Anything, "return nil", []string{"a"}, []any(nil)).Return(newCmd(nil, redis.Nil))
	m.On("Eval", mock.Anything, "error()", []string{"a"}, []any(nil)).Return(newCmd(nil, errors.New("ERR script")))

	client := NewFromClient(m, nil)

	val, err := client.Eval(context.Background(), "return 1", []string{"a", "b"}, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	_, err = client.Eval(context.Background(), "return nil", []string{"a"})
	assert.ErrorIs(t, err, Nil)
	assert.Equal(t, sserr.CodeNotFoundResource, sserr.GetCode(err))

	_, err = client.Eval(context.Background(), "error()", []string{"a"})
	assert.Equal(t, sserr.CodeInternalDatabase, sserr.GetCode(err))
}

// ===========================================================================
// Health / Close
// ===========================================================================

func TestClient_Health(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).Return(newStatusCmd("PONG", nil)).Once()
	m.On("Ping", mock.Anything).Return(newStatusCmd("", errors.New("connection refused"))).Once()

	client := NewFromClient(m, nil)
	require.NoError(t, client.Health(context.Background()))

	err := client.Health(context.Background())
	assert.Equal(t, sserr.CodeUnavailableDependency, sserr.GetCode(err))
}

func TestClient_Health_AppliesDefaultTimeout(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(newStatusCmd("PONG", nil))

	require.NoError(t, NewFromClient(m, nil).Health(context.Background()))
	m.AssertExpectations(t)
}

func TestClient_Close(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Close").Return(nil)
	require.NoError(t, NewFromClient(m, nil).Close())
	m.AssertExpectations(t)
}

func TestWrapError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, wrapError(nil, "x"))
	assert.Equal(t, sserr.CodeTimeoutDatabase, wrapError(context.DeadlineExceeded, "x").Code)
	assert.Equal(t, sserr.CodeInternalDatabase, wrapError(context.Canceled, "x").Code)
	assert.Equal(t, sserr.CodeInternalDatabase, wrapError(errors.New("x"), "x").Code)
}
