package membership

import (
	"context"
	"fmt"
	"time"

	"cesworld/pkg/celengine"
	"cesworld/pkg/db/option"
	"cesworld/pkg/db/pagination"
	"cesworld/pkg/errutil"
	"cesworld/pkg/featureflags"

	"go.uber.org/zap"
)

const defaultBirthdayRule = "true"

type BirthdayResult struct {
	Granted int `json:"granted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// birthdayDays lists the birthday days celebrated on date. Members born on
// Feb 29 celebrate on Feb 28 in non-leap years.
func birthdayDays(date time.Time) []int {
	days := []int{date.Day()}
	if date.Month() == time.February && date.Day() == 28 && !isLeap(date.Year()) {
		days = append(days, 29)
	}
	return days
}

func yearsSince(joined, now time.Time) int {
	years := now.Year() - joined.Year()
	if now.Month() < joined.Month() || (now.Month() == joined.Month() && now.Day() < joined.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

func birthdayAttributes(m *Member, now time.Time) map[string]any {
	spending, _ := m.AnnualSpending.Float64()
	return map[string]any{
		"member": map[string]any{
			"tier":            string(m.Tier),
			"points":          m.Points,
			"annual_spending": spending,
			"years":           int64(yearsSince(m.JoinedAt, now)),
		},
	}
}

func birthdayOrderID(year int) string {
	return fmt.Sprintf("birthday-%d", year)
}

// RunBirthdayRewards grants the birthday bonus to every member whose birthday
// is on now's date and who passes the configured rule. The order reference
// birthday-YYYY keeps it to one grant per member per year.
func (s *Service) RunBirthdayRewards(ctx context.Context, now time.Time) (BirthdayResult, error) {
	var result BirthdayResult
	zapLog := logger(ctx).With(zap.Time("date", now))

	if !s.flags.IsEnabled(ctx, featureflags.BirthdayRewards, true) {
		zapLog.Info("birthday rewards disabled by feature flag")
		return result, nil
	}

	points := s.cfg.Membership.BirthdayPoints
	if points <= 0 {
		zapLog.Warn("birthday points not configured, nothing to grant")
		return result, nil
	}

	rule := s.cfg.Membership.BirthdayRule
	if rule == "" {
		rule = defaultBirthdayRule
	}

	month := int(now.Month())
	page := pagination.Pagination{Limit: pagination.MaxLimit}
	for {
		rows, err := s.member.Find(ctx, &Member{},
			option.ApplyOperator(option.Condition{Field: "birthday_month", Operator: option.EQ, Value: month}),
			option.ApplyOperator(option.Condition{Field: "birthday_day", Operator: option.IN, Value: birthdayDays(now)}),
			option.ApplyPagination(page),
		)
		if err != nil {
			zapLog.Error("failed to list birthday members", zap.Error(err))
			return result, err
		}

		members, info := pagination.Page(rows, page, func(m *Member) string { return m.ID })
		for _, m := range members {
			s.grantBirthday(ctx, m, now, rule, points, &result)
		}

		if !info.HasMore {
			break
		}
		page.Cursor = info.NextCursor
	}

	zapLog.Info("birthday rewards finished",
		zap.Int("granted", result.Granted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) grantBirthday(ctx context.Context, m *Member, now time.Time, rule string, points int64, result *BirthdayResult) {
	zapLog := logger(ctx).With(zap.String("member_id", m.ID))

	eligible, err := celengine.Evaluate(rule, birthdayAttributes(m, now))
	if err != nil {
		zapLog.Error("failed to evaluate birthday rule", zap.String("rule", rule), zap.Error(err))
		result.Failed++
		return
	}
	if !eligible {
		result.Skipped++
		return
	}

	_, _, err = s.ApplyTransaction(ctx, &Member{ID: m.ID}, TransactionRequest{
		Type:        TypeBirthdayReward,
		Points:      points,
		Description: fmt.Sprintf("Birthday reward %d", now.Year()),
		OrderID:     birthdayOrderID(now.Year()),
	})
	switch {
	case err == nil:
		result.Granted++
	case errutil.Is(err, errutil.StatusConflict):
		result.Skipped++
	default:
		zapLog.Error("failed to grant birthday reward", zap.Error(err))
		result.Failed++
	}
}
