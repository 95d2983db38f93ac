package domain

import (
	"time"
)

// Domain binds one hostname to a tenant. Routing resolves an inbound Host
// header to the tenant's isolation key through this table.
type Domain struct {
	ID               string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	TenantID         string     `gorm:"column:tenant_id;type:varchar(32);index;not null" json:"tenant_id"`
	Hostname         string     `gorm:"column:domain;type:varchar(253);uniqueIndex;not null" json:"domain"`
	IsPrimary        bool       `gorm:"column:is_primary;not null;index" json:"is_primary"`
	VerificationCode string     `gorm:"column:verification_code;type:varchar(64)" json:"verification_code"`
	Verified         bool       `gorm:"column:verified;not null" json:"verified"`
	VerifiedAt       *time.Time `gorm:"column:verified_at" json:"verified_at,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *Domain) String() string {
	return m.Hostname
}
