package membership

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierMember  Tier = "member"
	TierPlus    Tier = "plus"
	TierPremier Tier = "premier"
)

var (
	PlusThreshold    = decimal.RequireFromString("500.00")
	PremierThreshold = decimal.RequireFromString("1000.00")
)

// TierFor maps cumulative annual spending to a tier. Lower bounds are
// inclusive: 500.00 is plus and 1000.00 is premier.
func TierFor(spending decimal.Decimal) Tier {
	switch {
	case spending.GreaterThanOrEqual(PremierThreshold):
		return TierPremier
	case spending.GreaterThanOrEqual(PlusThreshold):
		return TierPlus
	default:
		return TierMember
	}
}

func (t Tier) Valid() bool {
	switch t {
	case TierMember, TierPlus, TierPremier:
		return true
	}
	return false
}

func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}
