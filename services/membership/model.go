package membership

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Member struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID         string          `gorm:"column:user_id;type:varchar(64);uniqueIndex;not null"`
	Tier           Tier            `gorm:"column:tier;type:varchar(16);index;not null"`
	Points         int64           `gorm:"column:points;not null"`
	AnnualSpending decimal.Decimal `gorm:"column:annual_spending;type:decimal(12,2);not null"`
	BirthdayMonth  *int            `gorm:"column:birthday_month;index:idx_members_birthday"`
	BirthdayDay    *int            `gorm:"column:birthday_day;index:idx_members_birthday"`
	JoinedAt       time.Time       `gorm:"column:joined_at;not null"`
	LastTierUpdate time.Time       `gorm:"column:last_tier_update;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Member) Balance() Balance {
	return Balance{Points: m.Points, AnnualSpending: m.AnnualSpending, Tier: m.Tier}
}

// Transaction is an append-only ledger row.
type Transaction struct {
	ID          string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Code        string          `gorm:"column:code;type:varchar(32);index"`
	MemberID    string          `gorm:"column:member_id;type:varchar(32);not null;uniqueIndex:idx_transactions_order"`
	Type        TransactionType `gorm:"column:type;type:varchar(32);not null;uniqueIndex:idx_transactions_order"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Points      int64           `gorm:"column:points;not null"`
	Description string          `gorm:"column:description;type:text"`
	OrderID     *string         `gorm:"column:order_id;type:varchar(128);uniqueIndex:idx_transactions_order"`
	Metadata    datatypes.JSON  `gorm:"column:metadata"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (t *Transaction) Entry() Entry {
	return Entry{Type: t.Type, Amount: t.Amount, Points: t.Points}
}

// TransactionRequest is a ledger event before it is persisted.
type TransactionRequest struct {
	Type        TransactionType
	Amount      decimal.Decimal
	Points      int64
	Description string
	OrderID     string
	CreatedAt   *time.Time
	Metadata    map[string]any
}

func (r TransactionRequest) Entry() Entry {
	return Entry{Type: r.Type, Amount: r.Amount, Points: r.Points}
}

func Models() []any {
	return []any{&Member{}, &Transaction{}}
}
