package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cesworld/pkg/config"
	"cesworld/pkg/featureflags"
	"cesworld/services/audit"
	"cesworld/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

type sequenceMock struct {
	mu  sync.Mutex
	n   int
	err error
}

func (m *sequenceMock) next(prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.n++
	return fmt.Sprintf("%s-%04d", prefix, m.n), nil
}

func (m *sequenceMock) NextTransactionCode(ctx context.Context) (string, error) {
	return m.next("TXN")
}

func (m *sequenceMock) NextRewardCode(ctx context.Context) (string, error) {
	return m.next("RWD")
}

type recorderMock struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *recorderMock) Record(ctx context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *recorderMock) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type archiveMock struct {
	objects map[string][]byte
	err     error
}

func (m *archiveMock) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.objects[bucket+"/"+key] = body
	return nil
}

type fixture struct {
	service  *Service
	seq      *sequenceMock
	recorder *recorderMock
	archive  *archiveMock
	flags    featureflags.Static
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Membership.ImportMaxRows = 100
	cfg.Membership.ImportArchiveBucket = "membership-imports"
	cfg.Membership.BirthdayPoints = 100

	f := &fixture{
		seq:      &sequenceMock{},
		recorder: &recorderMock{},
		archive:  &archiveMock{objects: map[string][]byte{}},
		flags:    featureflags.Static{},
		cfg:      cfg,
	}
	f.service = NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Config:  cfg,
		Seq:     f.seq,
		Audit:   f.recorder,
		Archive: f.archive,
		Flags:   f.flags,
	})
	f.service.now = func() time.Time { return testNow }
	return f
}

// seedMember enrolls userID and forces its balances.
func (f *fixture) seedMember(t *testing.T, userID string, points int64, spending string) *Member {
	t.Helper()
	ctx := context.Background()

	m, created, err := f.service.Enroll(ctx, userID, nil, nil)
	require.NoError(t, err)
	require.True(t, created)

	amount := decimal.RequireFromString(spending)
	m.Points = points
	m.AnnualSpending = amount
	m.Tier = TierFor(amount)
	require.NoError(t, f.service.member.Update(ctx, m.ID, map[string]any{
		"points":           points,
		"annual_spending":  amount,
		"tier":             m.Tier,
		"last_tier_update": testNow.Add(-48 * time.Hour),
	}))
	m.LastTierUpdate = testNow.Add(-48 * time.Hour)
	return m
}

func (f *fixture) reload(t *testing.T, memberID string) *Member {
	t.Helper()
	m, err := f.service.GetMember(context.Background(), memberID)
	require.NoError(t, err)
	return m
}

var errBoom = errors.New("boom")

func intPtr(v int) *int { return &v }
