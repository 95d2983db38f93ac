package lifecycle

import (
	"time"

	"gorm.io/datatypes"
)

type RunStatus string

var (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// SweepRun is the execution record of one expiry sweep.
type SweepRun struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Status      RunStatus      `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Matched     int            `gorm:"column:matched;not null" json:"matched"`
	Deactivated int            `gorm:"column:deactivated;not null" json:"deactivated"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SweepRun) TableName() string {
	return "lifecycle_sweep_runs"
}

// SweepPayload is the asynq payload of taskname.TenantLifecycleSweep.
type SweepPayload struct {
	Date string `json:"date"`
}
