package reward

import (
	"strings"

	"cesworld/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Item is what a reward type costs and what it is worth at checkout.
type Item struct {
	Type       Type            `json:"rewardType"`
	PointsCost int64           `json:"pointsCost"`
	AmountOff  decimal.Decimal `json:"amountOff"`
}

type Catalog map[Type]Item

func DefaultCatalog() Catalog {
	return Catalog{
		TypeDiscount:     {Type: TypeDiscount, PointsCost: 500, AmountOff: decimal.RequireFromString("5.00")},
		TypeFreeShipping: {Type: TypeFreeShipping, PointsCost: 300, AmountOff: decimal.Zero},
		TypeBirthdayGift: {Type: TypeBirthdayGift, PointsCost: 200, AmountOff: decimal.RequireFromString("10.00")},
	}
}

// NewCatalog overlays configured prices on the defaults. Unknown reward types
// and unparsable amounts are ignored.
func NewCatalog(cfg *config.Config) Catalog {
	catalog := DefaultCatalog()
	for name, item := range cfg.Membership.Rewards {
		typ := Type(strings.ToLower(name))
		current, ok := catalog[typ]
		if !ok {
			zap.L().Warn("ignoring unknown reward type in config", zap.String("reward_type", name))
			continue
		}
		if item.PointsCost > 0 {
			current.PointsCost = item.PointsCost
		}
		if item.AmountOff != "" {
			amount, err := decimal.NewFromString(item.AmountOff)
			if err != nil || amount.IsNegative() {
				zap.L().Warn("ignoring invalid reward amount", zap.String("reward_type", name), zap.String("amount_off", item.AmountOff))
			} else {
				current.AmountOff = amount.Round(2)
			}
		}
		catalog[typ] = current
	}
	return catalog
}

func (c Catalog) Lookup(typ Type) (Item, bool) {
	item, ok := c[typ]
	return item, ok
}
