package gen

import (
	"fmt"

	"smallbiznis-tenancy/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewSnowflakeNode),
)

// NewSnowflakeNode returns the id generator for this process. Every replica
// needs its own SNOWFLAKE.NODE (0..1023) or ids may collide.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node %d: %w", cfg.Snowflake.Node, err)
	}

	zap.L().Info("snowflake node ready", zap.Int64("node", cfg.Snowflake.Node))
	return node, nil
}
