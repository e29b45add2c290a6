package membership

import (
	"fmt"
	"strings"
	"time"

	"cesworld/pkg/errutil"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypePurchase       TransactionType = "purchase"
	TypeRedeem         TransactionType = "redeem"
	TypeBonus          TransactionType = "bonus"
	TypeBirthdayReward TransactionType = "birthday_reward"
	TypeRefund         TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeRedeem, TypeBonus, TypeBirthdayReward, TypeRefund:
		return true
	}
	return false
}

func ParseTransactionType(s string) (TransactionType, bool) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Balance is the part of a member the ledger rule reads and writes.
type Balance struct {
	Points         int64
	AnnualSpending decimal.Decimal
	Tier           Tier
}

// Entry is one ledger event. Amount is always stored as an absolute value;
// its direction follows from Type. Points is a signed delta trusted as given.
type Entry struct {
	Type   TransactionType
	Amount decimal.Decimal
	Points int64
}

func (e Entry) Validate() error {
	var details []errutil.Detail

	if !e.Type.Valid() {
		details = append(details, errutil.Detail{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", e.Type)})
	}
	if e.Amount.IsNegative() {
		details = append(details, errutil.Detail{Field: "amount", Message: "must not be negative"})
	} else if !e.Amount.Equal(e.Amount.Round(2)) {
		details = append(details, errutil.Detail{Field: "amount", Message: "must have at most 2 fraction digits"})
	}

	switch e.Type {
	case TypePurchase, TypeRefund:
		if !e.Amount.IsPositive() {
			details = append(details, errutil.Detail{Field: "amount", Message: "must be greater than zero"})
		}
	case TypeRedeem:
		if e.Points > 0 {
			details = append(details, errutil.Detail{Field: "points", Message: "redeem points must not be positive"})
		}
	}

	if len(details) > 0 {
		return errutil.ValidationFailed(details[0].Field+": "+details[0].Message, nil, errutil.WithDetails(details...))
	}
	return nil
}

// SpendingDelta is the signed effect of the entry on annual spending.
func (e Entry) SpendingDelta() decimal.Decimal {
	switch e.Type {
	case TypePurchase:
		return e.Amount
	case TypeRefund:
		return e.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// Delta is the combined effect of one or more entries.
type Delta struct {
	Points   int64
	Spending decimal.Decimal
}

func Aggregate(entries []Entry) Delta {
	d := Delta{Spending: decimal.Zero}
	for _, e := range entries {
		d.Points += e.Points
		d.Spending = d.Spending.Add(e.SpendingDelta())
	}
	return d
}

type Outcome struct {
	Balance     Balance
	TierChanged bool
}

func Apply(b Balance, e Entry) Outcome {
	return ApplyDelta(b, Delta{Points: e.Points, Spending: e.SpendingDelta()})
}

// ApplyDelta adds d to b, floors both balances at zero and re-derives the tier.
func ApplyDelta(b Balance, d Delta) Outcome {
	points := b.Points + d.Points
	if points < 0 {
		points = 0
	}

	spending := b.AnnualSpending.Add(d.Spending)
	if spending.IsNegative() {
		spending = decimal.Zero
	}

	tier := TierFor(spending)
	return Outcome{
		Balance:     Balance{Points: points, AnnualSpending: spending, Tier: tier},
		TierChanged: tier != b.Tier,
	}
}

// Stamp writes the outcome onto m. LastTierUpdate moves only when the tier did.
func Stamp(m *Member, out Outcome, now time.Time) {
	m.Points = out.Balance.Points
	m.AnnualSpending = out.Balance.AnnualSpending
	m.Tier = out.Balance.Tier
	if out.TierChanged {
		m.LastTierUpdate = now
	}
}
