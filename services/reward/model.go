package reward

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeDiscount     Type = "discount"
	TypeFreeShipping Type = "free_shipping"
	TypeBirthdayGift Type = "birthday_gift"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusExpired:
		return true
	}
	return false
}

type Reward struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Code          string          `gorm:"column:code;type:varchar(32);index"`
	MemberID      string          `gorm:"column:member_id;type:varchar(32);index;not null"`
	RewardType    Type            `gorm:"column:reward_type;type:varchar(32);not null"`
	PointsCost    int64           `gorm:"column:points_cost;not null"`
	AmountOff     decimal.Decimal `gorm:"column:amount_off;type:decimal(12,2);not null"`
	Status        Status          `gorm:"column:status;type:varchar(16);index;not null"`
	TransactionID string          `gorm:"column:transaction_id;type:varchar(32)"`
	RedeemedAt    time.Time       `gorm:"column:redeemed_at;not null"`
	UsedAt        *time.Time      `gorm:"column:used_at"`
	ExpiresAt     time.Time       `gorm:"column:expires_at;index;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func Models() []any {
	return []any{&Reward{}}
}
