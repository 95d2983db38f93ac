package profiling

import (
	"context"

	"smallbiznis-tenancy/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("profiling", fx.Invoke(StartProfiling))

// ProfilerConfig returns the pyroscope settings for this process, or false
// when PYROSCOPE.ADDR is unset.
func ProfilerConfig(c *config.Config) (pyroscope.Config, bool) {
	if c.Pyroscope.Addr == "" {
		return pyroscope.Config{}, false
	}
	return pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"service_name": c.AppName,
			"env":          c.AppEnv,
		},
	}, true
}

// StartProfiling pushes continuous profiles while the app runs.
func StartProfiling(lc fx.Lifecycle, c *config.Config) {
	cfg, ok := ProfilerConfig(c)
	if !ok {
		zap.L().Debug("pyroscope disabled, PYROSCOPE.ADDR is empty")
		return
	}

	var profiler *pyroscope.Profiler
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("starting pyroscope", zap.String("app_name", cfg.ApplicationName), zap.String("pyroscope_addr", cfg.ServerAddress))
			p, err := pyroscope.Start(cfg)
			if err != nil {
				return err
			}
			profiler = p
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if profiler == nil {
				return nil
			}
			return profiler.Stop()
		},
	})
}
