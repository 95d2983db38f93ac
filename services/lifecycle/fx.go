package lifecycle

import (
	"smallbiznis-tenancy/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("lifecycle.service",
	fx.Provide(
		NewService,
	),
)

// WorkerModule registers the sweep handler and the daily scheduler. It needs
// the asynq server mux and client in the graph.
var WorkerModule = fx.Module("lifecycle.worker",
	Module,
	fx.Provide(NewScheduler),
	fx.Invoke(
		registerHandlers,
		StartScheduler,
	),
)

func registerHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.TenantLifecycleSweep, s.HandleSweepTask)
}
