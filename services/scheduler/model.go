package scheduler

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Job is an execution record of a daily task.
type Job struct {
	ID           string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Name         string         `gorm:"column:name;type:varchar(100);index;not null" json:"name"`
	Status       string         `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"` // pending|running|success|failed
	ErrorMsg     string         `gorm:"column:error_msg;type:text" json:"errorMsg,omitempty"`
	ScheduledFor time.Time      `gorm:"column:scheduled_for;not null" json:"scheduledFor"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"startedAt"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completedAt"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func Models() []any {
	return []any{&Job{}}
}

type jobPayload struct {
	JobID        string    `json:"job_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}
