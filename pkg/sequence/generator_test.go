package sequence

import (
	"context"
	"errors"
	"testing"

	"smallbiznis-tenancy/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	values map[string]int64
	err    error
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.values[key]++
	return redis.NewIntResult(f.values[key], nil)
}

func TestNextTenantCode(t *testing.T) {
	counter := &fakeCounter{values: map[string]int64{}}
	gen := &RedisGenerator{rdb: counter}

	code, err := gen.NextTenantCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T001", code)

	counter.values[rediskey.TenantCodeSequenceKey] = 999
	code, err = gen.NextTenantCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T1000", code)
}

func TestNextTenantCodeRedisError(t *testing.T) {
	gen := &RedisGenerator{rdb: &fakeCounter{err: errors.New("connection refused")}}

	_, err := gen.NextTenantCode(context.Background())
	require.ErrorContains(t, err, "connection refused")
}
