package reward

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"cesworld/pkg/config"
	"cesworld/pkg/db/pagination"
	"cesworld/pkg/errutil"
	"cesworld/pkg/featureflags"
	"cesworld/services/audit"
	"cesworld/services/membership"
	"cesworld/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

type sequenceMock struct {
	mu sync.Mutex
	n  int
}

func (m *sequenceMock) next(prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return fmt.Sprintf("%s-%04d", prefix, m.n), nil
}

func (m *sequenceMock) NextTransactionCode(ctx context.Context) (string, error) {
	return m.next("TXN")
}

func (m *sequenceMock) NextRewardCode(ctx context.Context) (string, error) {
	return m.next("RWD")
}

type nopRecorder struct{}

func (nopRecorder) Record(ctx context.Context, e audit.Entry) {}

type fixture struct {
	service *Service
	members *membership.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, append(membership.Models(), Models()...)...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Membership.Rewards = map[string]config.RewardCatalogItem{
		"free_shipping": {PointsCost: 250},
	}
	seq := &sequenceMock{}

	members := membership.NewService(membership.ServiceParams{
		DB:     db,
		Node:   node,
		Config: cfg,
		Seq:    seq,
		Audit:  nopRecorder{},
		Flags:  featureflags.Static{},
	})
	s := NewService(Params{DB: db, Node: node, Config: cfg, Seq: seq, Members: members})
	s.now = func() time.Time { return testNow }
	return &fixture{service: s, members: members}
}

func (f *fixture) enroll(t *testing.T, userID string, points int64, birthdayMonth int) *membership.Member {
	t.Helper()
	ctx := context.Background()
	m, _, err := f.members.Enroll(ctx, userID, &birthdayMonth, nil)
	require.NoError(t, err)
	if points > 0 {
		m, _, err = f.members.ApplyTransaction(ctx, &membership.Member{ID: m.ID}, membership.TransactionRequest{
			Type: membership.TypeBonus, Points: points, Description: "seed",
		})
		require.NoError(t, err)
	}
	return m
}

func TestCatalogOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Membership.Rewards = map[string]config.RewardCatalogItem{
		"discount":      {PointsCost: 600, AmountOff: "7.5"},
		"gift_card":     {PointsCost: 1},
		"Free_Shipping": {AmountOff: "-1"},
	}
	c := NewCatalog(cfg)
	require.Len(t, c, 3)
	require.Equal(t, int64(600), c[TypeDiscount].PointsCost)
	require.Equal(t, "7.50", c[TypeDiscount].AmountOff.StringFixed(2))
	require.Equal(t, int64(300), c[TypeFreeShipping].PointsCost)
	require.True(t, c[TypeFreeShipping].AmountOff.IsZero())
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "user-1", 600, 3)

	r, m, err := f.service.Redeem(ctx, "user-1", TypeDiscount)
	require.NoError(t, err)
	require.Equal(t, StatusActive, r.Status)
	require.Equal(t, int64(500), r.PointsCost)
	require.Equal(t, "5.00", r.AmountOff.StringFixed(2))
	require.True(t, r.ExpiresAt.Equal(testNow.Add(90*24*time.Hour)))
	require.NotEmpty(t, r.TransactionID)
	require.Equal(t, int64(100), m.Points)

	_, _, err = f.service.Redeem(ctx, "user-1", TypeDiscount)
	require.True(t, errutil.Is(err, errutil.StatusInsufficientPoints))

	reloaded, err := f.members.GetMemberByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), reloaded.Points)

	txns, _, err := f.members.ListTransactions(ctx, reloaded.ID, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	require.Equal(t, membership.TypeRedeem, txns[0].Type)
	require.Equal(t, int64(-500), txns[0].Points)
}

func TestRedeemRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "march", 1000, 3)
	f.enroll(t, "october", 1000, 10)

	_, _, err := f.service.Redeem(ctx, "march", Type("gift_card"))
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, _, err = f.service.Redeem(ctx, "nobody", TypeDiscount)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, _, err = f.service.Redeem(ctx, "march", TypeBirthdayGift)
	require.True(t, errutil.Is(err, errutil.StatusUnprocessableEntity))

	r, _, err := f.service.Redeem(ctx, "october", TypeBirthdayGift)
	require.NoError(t, err)
	require.Equal(t, "10.00", r.AmountOff.StringFixed(2))

	r, m, err := f.service.Redeem(ctx, "october", TypeFreeShipping)
	require.NoError(t, err)
	require.Equal(t, int64(250), r.PointsCost)
	require.Equal(t, int64(550), m.Points)
}

func TestUseAndExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "user-1", 2000, 3)
	f.enroll(t, "user-2", 0, 3)

	first, _, err := f.service.Redeem(ctx, "user-1", TypeDiscount)
	require.NoError(t, err)
	second, _, err := f.service.Redeem(ctx, "user-1", TypeDiscount)
	require.NoError(t, err)
	third, _, err := f.service.Redeem(ctx, "user-1", TypeFreeShipping)
	require.NoError(t, err)

	_, err = f.service.Use(ctx, "user-2", first.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	used, err := f.service.Use(ctx, "user-1", first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusUsed, used.Status)
	require.NotNil(t, used.UsedAt)

	_, err = f.service.Use(ctx, "user-1", first.ID)
	require.True(t, errutil.Is(err, errutil.StatusRewardNotActive))

	// past expiry the reward flips to expired on use
	f.service.now = func() time.Time { return testNow.Add(91 * 24 * time.Hour) }
	_, err = f.service.Use(ctx, "user-1", second.ID)
	require.True(t, errutil.Is(err, errutil.StatusRewardNotActive))

	n, err := f.service.ExpireDue(ctx, testNow.Add(91*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	rows, _, err := f.service.List(ctx, "user-1", Filter{Status: "expired"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	ids := []string{rows[0].ID, rows[1].ID}
	require.ElementsMatch(t, []string{second.ID, third.ID}, ids)

	_, _, err = f.service.List(ctx, "user-1", Filter{Status: "lost"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestRewardEndpoints(t *testing.T) {
	f := newFixture(t)
	api := testutil.NewAPI(t, testutil.Roles{})
	registerRoutes(api.Routes, NewHandler(f.service))
	f.enroll(t, "user-1", 700, 3)

	w := api.Do(t, testutil.Request{
		Method: http.MethodPost, Path: "/v1/membership/me/rewards", UserID: "user-1",
		Body: map[string]string{"rewardType": "discount"},
	})
	testutil.StatusIs(t, http.StatusCreated, w)

	var redeemed struct {
		Reward RewardResponse            `json:"reward"`
		Member membership.MemberResponse `json:"member"`
	}
	testutil.Decode(t, w, &redeemed)
	require.Equal(t, "5.00", redeemed.Reward.AmountOff)
	require.Equal(t, int64(200), redeemed.Member.Points)

	w = api.Do(t, testutil.Request{
		Method: http.MethodPost, Path: "/v1/membership/me/rewards", UserID: "user-1",
		Body: map[string]string{"rewardType": "discount"},
	})
	testutil.StatusIs(t, http.StatusUnprocessableEntity, w)
	require.Equal(t, "insufficient_points", testutil.ErrorCode(t, w))

	w = api.Do(t, testutil.Request{
		Method: http.MethodPost, Path: "/v1/membership/me/rewards/" + redeemed.Reward.ID + "/use", UserID: "user-1",
	})
	testutil.StatusIs(t, http.StatusOK, w)

	w = api.Do(t, testutil.Request{
		Method: http.MethodPost, Path: "/v1/membership/me/rewards/" + redeemed.Reward.ID + "/use", UserID: "user-1",
	})
	testutil.StatusIs(t, http.StatusConflict, w)
	require.Equal(t, "reward_not_active", testutil.ErrorCode(t, w))

	w = api.Do(t, testutil.Request{Method: http.MethodGet, Path: "/v1/membership/me/rewards?status=used", UserID: "user-1"})
	testutil.StatusIs(t, http.StatusOK, w)
	var list struct {
		Data []RewardResponse `json:"data"`
	}
	testutil.Decode(t, w, &list)
	require.Len(t, list.Data, 1)
}
