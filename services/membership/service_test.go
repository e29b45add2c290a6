package membership

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cesworld/pkg/db/pagination"
	"cesworld/pkg/errutil"
	"cesworld/services/audit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEnrollIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, created, err := f.service.Enroll(ctx, "user-1", intPtr(2), intPtr(29))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, TierMember, m.Tier)
	require.Equal(t, int64(0), m.Points)
	require.True(t, m.AnnualSpending.IsZero())
	require.True(t, m.JoinedAt.Equal(testNow))

	again, created, err := f.service.Enroll(ctx, "user-1", nil, nil)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, m.ID, again.ID)
	require.Equal(t, 29, *again.BirthdayDay)
}

func TestEnrollValidatesBirthday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.service.Enroll(ctx, "user-1", intPtr(13), intPtr(1))
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, _, err = f.service.Enroll(ctx, "user-1", nil, intPtr(10))
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	// no month length check
	m, _, err := f.service.Enroll(ctx, "user-1", intPtr(2), intPtr(31))
	require.NoError(t, err)
	require.Equal(t, 31, *m.BirthdayDay)
}

func TestUpdateBirthday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedMember(t, "user-1", 0, "0.00")

	m, err := f.service.UpdateBirthday(ctx, "user-1", intPtr(7), intPtr(4))
	require.NoError(t, err)
	require.Equal(t, 7, *m.BirthdayMonth)

	stored, err := f.service.GetMemberByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 4, *stored.BirthdayDay)

	_, err = f.service.UpdateBirthday(ctx, "nobody", intPtr(7), intPtr(4))
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestPurchaseCrossingIntoPlus(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedMember(t, "user-1", 0, "450.00")

	m, txn, err := f.service.ApplyTransaction(context.Background(), &Member{ID: seeded.ID}, TransactionRequest{
		Type:   TypePurchase,
		Amount: dec("75.00"),
		Points: 75,
	})
	require.NoError(t, err)
	require.Equal(t, TypePurchase, txn.Type)
	require.Equal(t, int64(75), txn.Points)
	require.Equal(t, "TXN-0001", txn.Code)

	stored := f.reload(t, m.ID)
	require.True(t, stored.AnnualSpending.Equal(dec("525.00")), stored.AnnualSpending.String())
	require.Equal(t, TierPlus, stored.Tier)
	require.Equal(t, int64(75), stored.Points)
	require.True(t, stored.LastTierUpdate.Equal(testNow))

	rows, _, err := f.service.ListTransactions(context.Background(), m.ID, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestLastTierUpdateUnchangedWithinTier(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedMember(t, "user-1", 0, "100.00")
	before := f.reload(t, seeded.ID).LastTierUpdate

	f.service.now = func() time.Time { return testNow.Add(time.Hour) }
	_, _, err := f.service.ApplyTransaction(context.Background(), &Member{ID: seeded.ID}, TransactionRequest{
		Type: TypePurchase, Amount: dec("10.00"), Points: 10,
	})
	require.NoError(t, err)
	require.True(t, f.reload(t, seeded.ID).LastTierUpdate.Equal(before))
}

func TestRedeemClampsPoints(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedMember(t, "user-1", 50, "0.00")

	_, _, err := f.service.ApplyTransaction(context.Background(), &Member{ID: seeded.ID}, TransactionRequest{
		Type: TypeRedeem, Points: -100,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), f.reload(t, seeded.ID).Points)
}

func TestRefundClampsSpending(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedMember(t, "user-1", 10, "1000.00")
	require.Equal(t, TierPremier, seeded.Tier)

	_, _, err := f.service.ApplyTransaction(context.Background(), &Member{ID: seeded.ID}, TransactionRequest{
		Type: TypeRefund, Amount: dec("1200.00"),
	})
	require.NoError(t, err)

	stored := f.reload(t, seeded.ID)
	require.True(t, stored.AnnualSpending.IsZero())
	require.Equal(t, "0.00", stored.AnnualSpending.StringFixed(2))
	require.Equal(t, TierMember, stored.Tier)
}

func TestApplyTransactionRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := f.seedMember(t, "user-1", 0, "0.00")

	_, _, err := f.service.ApplyTransaction(ctx, &Member{ID: "missing"}, TransactionRequest{Type: TypeBonus, Points: 1})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, _, err = f.service.ApplyTransaction(ctx, &Member{ID: seeded.ID}, TransactionRequest{Type: TypePurchase, Amount: dec("-1.00")})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	req := TransactionRequest{Type: TypePurchase, Amount: dec("20.00"), Points: 20, OrderID: "ORD-1"}
	_, _, err = f.service.ApplyTransaction(ctx, &Member{ID: seeded.ID}, req)
	require.NoError(t, err)
	_, _, err = f.service.ApplyTransaction(ctx, &Member{ID: seeded.ID}, req)
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	// a refund of the same order is a different event
	_, _, err = f.service.ApplyTransaction(ctx, &Member{ID: seeded.ID}, TransactionRequest{
		Type: TypeRefund, Amount: dec("20.00"), Points: -20, OrderID: "ORD-1",
	})
	require.NoError(t, err)

	stored := f.reload(t, seeded.ID)
	require.True(t, stored.AnnualSpending.IsZero())
	require.Equal(t, int64(0), stored.Points)
}

func TestSequenceFallback(t *testing.T) {
	f := newFixture(t)
	f.seq.err = errBoom
	seeded := f.seedMember(t, "user-1", 0, "0.00")

	_, txn, err := f.service.ApplyTransaction(context.Background(), &Member{ID: seeded.ID}, TransactionRequest{Type: TypeBonus, Points: 5})
	require.NoError(t, err)
	require.Regexp(t, `^TXN-[0-9a-z]+$`, txn.Code)
}

func TestRecordManualTransactionAudits(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedMember(t, "user-1", 0, "0.00")
	actor := audit.Actor{UserID: "admin-1", IPAddress: "10.0.0.1"}

	_, _, err := f.service.RecordManualTransaction(context.Background(), actor, seeded.ID, TransactionRequest{
		Type: TypeBonus, Points: 40, Description: "goodwill",
	})
	require.NoError(t, err)
	require.Equal(t, []string{audit.ActionManualEntry}, f.recorder.actions())
	require.Equal(t, "user-1", f.recorder.entries[0].TargetUserID)
	require.Equal(t, actor, f.recorder.entries[0].Actor)
}

func TestOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := f.seedMember(t, "user-1", 10, "200.00")
	actor := audit.Actor{UserID: "admin-1"}

	spending := dec("750.00")
	m, err := f.service.Override(ctx, actor, seeded.ID, OverrideRequest{AnnualSpending: &spending, Reason: "store credit migration"})
	require.NoError(t, err)
	require.Equal(t, TierPlus, m.Tier)
	require.True(t, f.reload(t, seeded.ID).LastTierUpdate.Equal(testNow))

	premier := TierPremier
	points := int64(0)
	m, err = f.service.Override(ctx, actor, seeded.ID, OverrideRequest{Tier: &premier, Points: &points})
	require.NoError(t, err)
	require.Equal(t, TierPremier, m.Tier)

	stored := f.reload(t, seeded.ID)
	require.Equal(t, TierPremier, stored.Tier)
	require.Equal(t, int64(0), stored.Points)
	require.True(t, stored.AnnualSpending.Equal(dec("750.00")))

	require.Equal(t, []string{audit.ActionMemberOverride, audit.ActionMemberOverride}, f.recorder.actions())
	change, ok := f.recorder.entries[0].Details.(audit.Change)
	require.True(t, ok)
	require.Equal(t, "store credit migration", change.Reason)
	require.Equal(t, TierMember, change.Before.(memberSnapshot).Tier)
	require.Equal(t, TierPlus, change.After.(memberSnapshot).Tier)
}

func TestOverrideValidation(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedMember(t, "user-1", 10, "200.00")
	ctx := context.Background()

	_, err := f.service.Override(ctx, audit.Actor{}, seeded.ID, OverrideRequest{})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	negative := int64(-1)
	_, err = f.service.Override(ctx, audit.Actor{}, seeded.ID, OverrideRequest{Points: &negative})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	gold := Tier("gold")
	_, err = f.service.Override(ctx, audit.Actor{}, seeded.ID, OverrideRequest{Tier: &gold})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	points := int64(5)
	_, err = f.service.Override(ctx, audit.Actor{}, "missing", OverrideRequest{Points: &points})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
	require.Empty(t, f.recorder.actions())
}

func TestListMembersPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		spending := "0.00"
		if i%2 == 0 {
			spending = "600.00"
		}
		f.seedMember(t, fmt.Sprintf("user-%d", i), 0, spending)
	}

	page1, info, err := f.service.ListMembers(ctx, MemberFilter{Pagination: pagination.Pagination{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.True(t, info.HasMore)

	page2, info, err := f.service.ListMembers(ctx, MemberFilter{Pagination: pagination.Pagination{Limit: 2, Cursor: info.NextCursor}})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Greater(t, page1[1].ID, page2[0].ID)

	page3, info, err := f.service.ListMembers(ctx, MemberFilter{Pagination: pagination.Pagination{Limit: 2, Cursor: info.NextCursor}})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.False(t, info.HasMore)

	plus, _, err := f.service.ListMembers(ctx, MemberFilter{Tier: "plus"})
	require.NoError(t, err)
	require.Len(t, plus, 3)

	_, _, err = f.service.ListMembers(ctx, MemberFilter{Tier: "gold"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestDecimalRoundTrip(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedMember(t, "user-1", 0, "0.00")

	_, _, err := f.service.ApplyTransaction(context.Background(), &Member{ID: seeded.ID}, TransactionRequest{
		Type: TypePurchase, Amount: decimal.RequireFromString("19.99"), Points: 19,
	})
	require.NoError(t, err)
	require.Equal(t, "19.99", f.reload(t, seeded.ID).AnnualSpending.StringFixed(2))
}
