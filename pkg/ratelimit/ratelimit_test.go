package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bytebites/bytebites-core/internal/testutil"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryLimiter_Window(t *testing.T) {
	t.Parallel()

	now := epoch
	l := NewMemoryLimiter(Config{Limit: 3, Window: time.Minute}, func() time.Time { return now })
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, "login:a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3-i, d.Remaining)
		assert.Equal(t, epoch.Add(time.Minute), d.ResetAt)
	}

	d, err := l.Allow(ctx, "login:a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter(epoch.Add(30*time.Second)))

	other, err := l.Allow(ctx, "login:b")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	now = epoch.Add(time.Minute)
	d, err = l.Allow(ctx, "login:a")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "a new window starts at the reset instant")
}

func TestMemoryLimiter_Reset(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(Config{Limit: 1, Window: time.Hour}, nil)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	d, _ := l.Allow(ctx, "k")
	require.False(t, d.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	d, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_Disabled(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(Config{Limit: 0}, nil)
	for range 100 {
		d, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestMemoryLimiter_Capacity(t *testing.T) {
	t.Parallel()

	now := epoch
	l := NewMemoryLimiter(Config{Limit: 1, Window: time.Minute, MaxKeys: 2}, func() time.Time { return now })
	ctx := context.Background()

	for i := range 2 {
		_, err := l.Allow(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}
	_, err := l.Allow(ctx, "k2")
	testutil.AssertErrorCode(t, err, sserr.CodeUnavailable)

	now = epoch.Add(2 * time.Minute)
	_, err = l.Allow(ctx, "k2")
	assert.NoError(t, err, "expired windows are collected")
}

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	ret := m.Called(ctx, script, keys, args)
	return ret.Get(0), ret.Error(1)
}

func (m *mockRedis) Del(ctx context.Context, keys ...string) (int64, error) {
	ret := m.Called(ctx, keys)
	return ret.Get(0).(int64), ret.Error(1)
}

func TestRedisLimiter_Allow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		result    any
		allowed   bool
		remaining int
	}{
		{name: "first attempt", result: []any{int64(1), int64(60000)}, allowed: true, remaining: 9},
		{name: "last allowed", result: []any{int64(10), int64(1000)}, allowed: true, remaining: 0},
		{name: "over limit", result: []any{int64(11), int64(500)}, allowed: false, remaining: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := new(mockRedis)
			m.On("Eval", mock.Anything, allowScript, []string{"ratelimit:login:a@b.c"}, []any{int64(60000)}).
				Return(tt.result, nil)

			l := NewRedisLimiter(m, Config{Limit: 10, Window: time.Minute}, func() time.Time { return epoch })
			d, err := l.Allow(context.Background(), "login:a@b.c")
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.remaining, d.Remaining)
			ttl := tt.result.([]any)[1].(int64)
			assert.Equal(t, epoch.Add(time.Duration(ttl)*time.Millisecond), d.ResetAt)
			m.AssertExpectations(t)
		})
	}
}

func TestRedisLimiter_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result any
		err    error
		code   sserr.Code
	}{
		{name: "redis error passes through", err: sserr.New(sserr.CodeTimeoutDatabase, "slow"), code: sserr.CodeTimeoutDatabase},
		{name: "wrong shape", result: "OK", code: sserr.CodeInternal},
		{name: "non integer counter", result: []any{"1", int64(1)}, code: sserr.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := new(mockRedis)
			m.On("Eval", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.result, tt.err)

			_, err := NewRedisLimiter(m, Config{Limit: 1, Window: time.Second}, nil).Allow(context.Background(), "k")
			testutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestRedisLimiter_Reset(t *testing.T) {
	t.Parallel()

	m := new(mockRedis)
	m.On("Del", mock.Anything, []string{"ratelimit:k"}).Return(int64(1), nil).Once()
	m.On("Del", mock.Anything, []string{"ratelimit:broken"}).Return(int64(0), errors.New("down")).Once()

	l := NewRedisLimiter(m, Config{Limit: 1, Window: time.Second}, nil)
	require.NoError(t, l.Reset(context.Background(), "k"))
	assert.Error(t, l.Reset(context.Background(), "broken"))
	m.AssertExpectations(t)
}

func TestExceeded(t *testing.T) {
	t.Parallel()

	err := Exceeded(Decision{Limit: 10, ResetAt: epoch.Add(1500 * time.Millisecond)}, epoch)
	assert.Equal(t, sserr.CodeRateLimited, err.Code)
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus())
	assert.Equal(t, 10, err.Details["limit"])
	assert.Equal(t, 2, err.Details["retry_after"])
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&Config{Limit: 0}).Validate())
	assert.NoError(t, (&Config{Limit: 5, Window: time.Second}).Validate())
	assert.True(t, sserr.IsValidation((&Config{Limit: 5}).Validate()))
}
