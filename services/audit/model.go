package audit

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActionRoleChange     = "user.role_change"
	ActionMemberOverride = "member.override"
	ActionManualEntry    = "transaction.manual"
	ActionBulkUpload     = "transactions.bulk_upload"
)

// LogEntry is write-once; nothing updates or deletes it.
type LogEntry struct {
	ID           string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Action       string         `gorm:"column:action;type:varchar(64);index;not null" json:"action"`
	PerformedBy  string         `gorm:"column:performed_by;type:varchar(64);not null" json:"performedBy"`
	TargetUserID string         `gorm:"column:target_user_id;type:varchar(64);index" json:"targetUserId"`
	Details      datatypes.JSON `gorm:"column:details" json:"details"`
	IPAddress    string         `gorm:"column:ip_address;type:varchar(64)" json:"ipAddress"`
	UserAgent    string         `gorm:"column:user_agent;type:text" json:"userAgent"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (LogEntry) TableName() string {
	return "audit_logs"
}

// Actor is the administrator behind a mutation.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

type Entry struct {
	Action       string
	Actor        Actor
	TargetUserID string
	Details      any
}

// Change is the usual details payload: the record before and after.
type Change struct {
	Before any    `json:"before"`
	After  any    `json:"after"`
	Reason string `json:"reason,omitempty"`
}
