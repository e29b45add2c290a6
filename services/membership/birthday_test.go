package membership

import (
	"context"
	"testing"
	"time"

	"cesworld/pkg/featureflags"

	"github.com/stretchr/testify/require"
)

func TestBirthdayDays(t *testing.T) {
	require.Equal(t, []int{28, 29}, birthdayDays(time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, []int{28}, birthdayDays(time.Date(2028, 2, 28, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, []int{29}, birthdayDays(time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, []int{18}, birthdayDays(testNow))
}

func TestYearsSince(t *testing.T) {
	joined := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 1, yearsSince(joined, testNow))
	require.Equal(t, 2, yearsSince(joined, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 0, yearsSince(testNow, joined))

	leap := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 1, yearsSince(leap, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 0, yearsSince(leap, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 4, yearsSince(time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestRunBirthdayRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Membership.BirthdayRule = "member.points >= 10"

	today := f.seedMember(t, "today", 20, "0.00")
	tomorrow := f.seedMember(t, "tomorrow", 20, "0.00")
	ineligible := f.seedMember(t, "ineligible", 0, "0.00")
	for userID, day := range map[string]int{"today": 18, "tomorrow": 19, "ineligible": 18} {
		_, err := f.service.UpdateBirthday(ctx, userID, intPtr(10), intPtr(day))
		require.NoError(t, err)
	}

	result, err := f.service.RunBirthdayRewards(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, BirthdayResult{Granted: 1, Skipped: 1}, result)
	require.Equal(t, int64(120), f.reload(t, today.ID).Points)
	require.Equal(t, int64(20), f.reload(t, tomorrow.ID).Points)
	require.Equal(t, int64(0), f.reload(t, ineligible.ID).Points)

	// second run the same year is a no-op
	result, err = f.service.RunBirthdayRewards(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, BirthdayResult{Skipped: 2}, result)
	require.Equal(t, int64(120), f.reload(t, today.ID).Points)

	txns, err := f.service.transaction.Find(ctx, &Transaction{MemberID: today.ID, Type: TypeBirthdayReward})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, "birthday-2026", *txns[0].OrderID)
}

func TestRunBirthdayRewardsLeapDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leap := f.seedMember(t, "leap", 0, "0.00")
	_, err := f.service.UpdateBirthday(ctx, "leap", intPtr(2), intPtr(29))
	require.NoError(t, err)

	result, err := f.service.RunBirthdayRewards(ctx, time.Date(2027, 2, 28, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, result.Granted)
	require.Equal(t, int64(100), f.reload(t, leap.ID).Points)
}

func TestRunBirthdayRewardsDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedMember(t, "today", 0, "0.00")
	_, err := f.service.UpdateBirthday(ctx, "today", intPtr(10), intPtr(18))
	require.NoError(t, err)

	f.flags[featureflags.BirthdayRewards] = false
	result, err := f.service.RunBirthdayRewards(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, BirthdayResult{}, result)
}

func TestRunBirthdayRewardsBadRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Membership.BirthdayRule = "member.points >"
	f.seedMember(t, "today", 0, "0.00")
	_, err := f.service.UpdateBirthday(ctx, "today", intPtr(10), intPtr(18))
	require.NoError(t, err)

	result, err := f.service.RunBirthdayRewards(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, BirthdayResult{Failed: 1}, result)
}

func TestRunBirthdayRewardsOnJoinAnniversary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Membership.BirthdayRule = "member.years >= 1"

	m := f.seedMember(t, "veteran", 0, "0.00")
	_, err := f.service.UpdateBirthday(ctx, "veteran", intPtr(3), intPtr(1))
	require.NoError(t, err)
	require.NoError(t, f.service.member.Update(ctx, m.ID, map[string]any{
		"joined_at": time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}))

	result, err := f.service.RunBirthdayRewards(ctx, time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, BirthdayResult{Granted: 1}, result)
	require.Equal(t, int64(100), f.reload(t, m.ID).Points)
}
