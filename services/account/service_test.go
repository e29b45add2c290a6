package account

import (
	"context"
	"net/http"
	"testing"

	"cesworld/pkg/errutil"
	"cesworld/services/audit"
	"cesworld/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type recorderMock struct {
	entries []audit.Entry
}

func (m *recorderMock) Record(ctx context.Context, e audit.Entry) {
	m.entries = append(m.entries, e)
}

func newTestService(t *testing.T) (*Service, *recorderMock) {
	t.Helper()
	rec := &recorderMock{}
	s := NewService(Params{DB: testutil.NewTestDB(t, Models()...), Audit: rec})

	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, &User{ID: "admin-1", Email: "admin@cesworld.test", Role: RoleAdmin}))
	require.NoError(t, s.Upsert(ctx, &User{ID: "user-1", Email: "user@cesworld.test"}))
	return s, rec
}

func TestRoleOf(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	role, err := s.RoleOf(ctx, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "admin", role)

	role, err = s.RoleOf(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "customer", role)

	role, err = s.RoleOf(ctx, "ghost")
	require.NoError(t, err)
	require.Equal(t, "", role)
}

func TestUpsertKeepsRole(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &User{ID: "admin-1", Email: "root@cesworld.test", Name: "Root"}))
	u, err := s.Get(ctx, "admin-1")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, u.Role)
	require.Equal(t, "root@cesworld.test", u.Email)
}

func TestChangeRole(t *testing.T) {
	s, rec := newTestService(t)
	ctx := context.Background()
	actor := audit.Actor{UserID: "admin-1"}

	u, err := s.ChangeRole(ctx, actor, "user-1", " Designer ")
	require.NoError(t, err)
	require.Equal(t, RoleDesigner, u.Role)
	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.ActionRoleChange, rec.entries[0].Action)
	require.Equal(t, audit.Change{Before: RoleCustomer, After: RoleDesigner}, rec.entries[0].Details)

	// unchanged role is not audited
	_, err = s.ChangeRole(ctx, actor, "user-1", "designer")
	require.NoError(t, err)
	require.Len(t, rec.entries, 1)

	_, err = s.ChangeRole(ctx, actor, "user-1", "owner")
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = s.ChangeRole(ctx, actor, "ghost", "admin")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestChangeRoleEndpoint(t *testing.T) {
	s, rec := newTestService(t)
	api := testutil.NewAPI(t, s)
	registerRoutes(api.Routes, NewHandler(s))

	// the token carries no role, so the gate falls back to the stored one
	w := api.Do(t, testutil.Request{
		Method: http.MethodPatch, Path: "/v1/admin/users/admin-1/role", UserID: "user-1",
		Body: map[string]string{"role": "customer"},
	})
	testutil.StatusIs(t, http.StatusForbidden, w)

	w = api.Do(t, testutil.Request{
		Method: http.MethodPatch, Path: "/v1/admin/users/user-1/role", UserID: "admin-1",
		Body: map[string]string{"role": "admin"},
	})
	testutil.StatusIs(t, http.StatusOK, w)

	var u User
	testutil.Decode(t, w, &u)
	require.Equal(t, RoleAdmin, u.Role)
	require.Equal(t, "admin-1", rec.entries[0].Actor.UserID)

	// promoted user now passes the gate
	w = api.Do(t, testutil.Request{Method: http.MethodGet, Path: "/v1/admin/users/admin-1", UserID: "user-1"})
	testutil.StatusIs(t, http.StatusOK, w)

	w = api.Do(t, testutil.Request{
		Method: http.MethodPatch, Path: "/v1/admin/users/user-1/role", UserID: "admin-1",
		Body: map[string]string{},
	})
	testutil.StatusIs(t, http.StatusBadRequest, w)
}
