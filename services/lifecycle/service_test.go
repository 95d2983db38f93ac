package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/db/pagination"
	"smallbiznis-tenancy/pkg/taskname"
	"smallbiznis-tenancy/services/tenant"
	"smallbiznis-tenancy/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var pageAll = pagination.Pagination{Limit: pagination.MaxLimit}

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	seen  map[string]bool
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	id := optionValue(opts, asynq.TaskIDOpt)
	if f.seen[id.(string)] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[id.(string)] = true
	f.tasks = append(f.tasks, t)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: id.(string), Type: t.Type()}, nil
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) any {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value()
		}
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *tenant.Service, *fakeEnqueuer) {
	t.Helper()

	db := testutil.NewTestDB(t, &tenant.Tenant{}, &tenant.Event{}, &SweepRun{})
	node := testutil.NewNode(t)
	tenants := tenant.NewService(tenant.ServiceParams{DB: db, Node: node, Config: &config.Config{}})
	enq := &fakeEnqueuer{seen: map[string]bool{}}

	return NewService(Params{DB: db, Node: node, Tenants: tenants, Enqueuer: enq}), tenants, enq
}

func daysFromNow(n int) *datatypes.Date {
	d := datatypes.Date(tenant.CivilDate(time.Now().UTC()).AddDate(0, 0, n))
	return &d
}

func create(t *testing.T, svc *tenant.Service, p tenant.CreateParams) *tenant.Tenant {
	t.Helper()
	tn, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	return tn
}

func TestSweepDeactivatesOnlyExpiredAutoDisable(t *testing.T) {
	svc, tenants, _ := newTestService(t)
	ctx := context.Background()

	due := create(t, tenants, tenant.CreateParams{Name: "Due", AutoDisable: true, ExpiresAt: daysFromNow(-2)})
	manual := create(t, tenants, tenant.CreateParams{Name: "Manual", ExpiresAt: daysFromNow(-2)})
	future := create(t, tenants, tenant.CreateParams{Name: "Future", AutoDisable: true, ExpiresAt: daysFromNow(2)})

	run, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, run.Status)
	require.Equal(t, 1, run.Matched)
	require.Equal(t, 1, run.Deactivated)

	got, err := tenants.Get(ctx, due.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.NotNil(t, got.DisabledAt)

	for _, id := range []string{manual.ID, future.ID} {
		got, err := tenants.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, got.IsActive)
	}

	events, err := tenants.Events(ctx, due.ID, pageAll)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, tenant.SourceSweep, events[0].Source)
	require.Equal(t, ExpiredReason, events[0].Reason)

	// nothing left to do on the second pass
	run, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, run.Matched)

	runs, err := svc.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		require.Equal(t, RunSuccess, r.Status)
		require.NotNil(t, r.CompletedAt)
	}
}

func TestEnqueueSweepIsOncePerDay(t *testing.T) {
	svc, tenants, enq := newTestService(t)
	ctx := context.Background()

	id, err := svc.EnqueueSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, taskname.TenantLifecycleSweep+":"+tenants.Now().Format(time.DateOnly), id)

	again, err := svc.EnqueueSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, id, again)

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.TenantLifecycleSweep, enq.tasks[0].Type())
	require.Equal(t, "critical", optionValue(enq.opts[0], asynq.QueueOpt))
}

func TestEnqueueSweepWithoutQueue(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.enqueuer = nil

	_, err := svc.EnqueueSweep(context.Background())
	require.Error(t, err)
}

func TestHandleSweepTask(t *testing.T) {
	svc, tenants, _ := newTestService(t)
	ctx := context.Background()
	due := create(t, tenants, tenant.CreateParams{Name: "Due", AutoDisable: true, ExpiresAt: daysFromNow(-3)})

	require.NoError(t, svc.HandleSweepTask(ctx, asynq.NewTask(taskname.TenantLifecycleSweep, []byte(`{"date":"2026-10-15"}`))))

	got, err := tenants.Get(ctx, due.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	err = svc.HandleSweepTask(ctx, asynq.NewTask(taskname.TenantLifecycleSweep, []byte(`{`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestNextRunTime(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	before := time.Date(2026, 10, 15, 0, 30, 0, 0, jakarta)
	require.Equal(t, time.Date(2026, 10, 15, 1, 0, 0, 0, jakarta), nextRunTime(before, 1, 0))

	exact := time.Date(2026, 10, 15, 1, 0, 0, 0, jakarta)
	require.Equal(t, time.Date(2026, 10, 16, 1, 0, 0, 0, jakarta), nextRunTime(exact, 1, 0))

	after := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2027, 1, 1, 1, 30, 0, 0, time.UTC), nextRunTime(after, 1, 30))
}
