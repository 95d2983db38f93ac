package tenant

import (
	"time"

	"gorm.io/datatypes"
)

// Isolated is implemented by records that own an isolated data namespace
// inside the shared database.
type Isolated interface {
	IsolationKey() string
}

// Tenant is one customer organization. Its data lives in the Postgres schema
// named by SchemaName; Domain rows map hostnames onto it.
type Tenant struct {
	ID          string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Name        string          `gorm:"column:name;type:varchar(100);not null"`
	SchemaName  string          `gorm:"column:schema_name;type:varchar(63);uniqueIndex;not null"`
	TenantCode  *string         `gorm:"column:tenant_code;type:varchar(50);uniqueIndex"`
	AccessPIN   *string         `gorm:"column:access_pin;type:varchar(128)"`
	CreatedOn   time.Time       `gorm:"column:created_on;autoCreateTime"`
	IsActive    bool            `gorm:"column:is_active;not null"`
	DisabledAt  *time.Time      `gorm:"column:disabled_at"`
	AutoDisable bool            `gorm:"column:auto_disable;not null"`
	ExpiresAt   *datatypes.Date `gorm:"column:expires_at"`
	IsPublic    bool            `gorm:"column:is_public;not null"`
}

func (m *Tenant) IsolationKey() string {
	return m.SchemaName
}

func (m *Tenant) String() string {
	return m.Name
}

// HasExpired reports whether ExpiresAt is set and the calendar date of now
// (in now's location) is strictly after it. The expiry day itself is still valid.
func (m *Tenant) HasExpired(now time.Time) bool {
	if m.ExpiresAt == nil {
		return false
	}
	return CivilDate(now).After(CivilDate(time.Time(*m.ExpiresAt)))
}

// Deactivate marks the tenant inactive and stamps DisabledAt. It reports
// false, changing nothing, when the tenant is already inactive.
func (m *Tenant) Deactivate(now time.Time) bool {
	if !m.IsActive {
		return false
	}
	m.IsActive = false
	m.DisabledAt = &now
	return true
}

// Activate marks the tenant active and clears DisabledAt.
func (m *Tenant) Activate() bool {
	if m.IsActive {
		return false
	}
	m.IsActive = true
	m.DisabledAt = nil
	return true
}

// CivilDate drops the clock part of t, keeping its year, month and day as seen
// in t's own location, and returns midnight UTC of that date.
func CivilDate(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// NewDate returns the calendar date y-m-d.
func NewDate(y int, m time.Month, d int) *datatypes.Date {
	date := datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return &date
}

type EventAction string

var (
	ActionDeactivated EventAction = "deactivated"
	ActionActivated   EventAction = "activated"
	ActionPINSet      EventAction = "pin_set"
	ActionPINCleared  EventAction = "pin_cleared"
)

type EventSource string

var (
	SourceLifecycle  EventSource = "lifecycle"
	SourceBulkAction EventSource = "bulk_action"
	SourceEdit       EventSource = "edit"
	SourceSweep      EventSource = "sweep"
)

// Event is an audit record of a tenant state change.
type Event struct {
	ID        string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	TenantID  string         `gorm:"column:tenant_id;type:varchar(32);index;not null"`
	Action    EventAction    `gorm:"column:action;type:varchar(32);not null"`
	Source    EventSource    `gorm:"column:source;type:varchar(32);not null"`
	Reason    string         `gorm:"column:reason;type:text"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Event) TableName() string {
	return "tenant_events"
}
