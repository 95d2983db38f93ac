package sequence

import (
	"context"
	"fmt"

	"smallbiznis-tenancy/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human readable codes that must be unique across
// every instance of the service.
type Generator interface {
	NextTenantCode(ctx context.Context) (string, error)
}

type incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

type RedisGenerator struct {
	rdb incrementer
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

// NextTenantCode returns T001, T002, ... Codes past T999 simply grow wider.
func (g *RedisGenerator) NextTenantCode(ctx context.Context) (string, error) {
	seq, err := g.rdb.Incr(ctx, rediskey.TenantCodeSequenceKey).Result()
	if err != nil {
		return "", fmt.Errorf("incr %s: %w", rediskey.TenantCodeSequenceKey, err)
	}
	return fmt.Sprintf("T%03d", seq), nil
}
