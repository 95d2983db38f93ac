package taskname

const (
	// Tenant lifecycle tasks
	TenantLifecycleSweep = "tenant:lifecycle:sweep"
)
