package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cesworld/pkg/access"
	"cesworld/pkg/auth"
	"cesworld/pkg/config"
	"cesworld/pkg/httpapi"
	"cesworld/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// Roles is a fixed user to role table.
type Roles map[string]string

func (r Roles) RoleOf(ctx context.Context, userID string) (string, error) {
	return r[userID], nil
}

// API is a gin engine wired with the production middleware and route groups.
type API struct {
	Engine *gin.Engine
	Routes *httpapi.Routes
	Tokens *auth.Tokens
}

func NewAPI(t *testing.T, lookup middleware.RoleLookup) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Session.Secret = "test-secret"
	cfg.Session.Issuer = "cesworld"
	cfg.Session.Expiry = time.Hour
	tokens := auth.NewTokens(cfg)

	enforcer, err := access.New(cfg)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(middleware.Error(), middleware.Authenticate(tokens))

	return &API{
		Engine: engine,
		Routes: httpapi.NewRoutes(httpapi.RoutesParams{Engine: engine, Lookup: lookup, Enforcer: enforcer}),
		Tokens: tokens,
	}
}

// Request describes one call; an empty UserID sends no session. Chunked
// sends the body without a Content-Length.
type Request struct {
	Method      string
	Path        string
	UserID      string
	Role        string
	Body        any
	ContentType string
	Chunked     bool
}

func (a *API) Do(t *testing.T, r Request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch b := r.Body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = strings.NewReader(string(raw))
		if r.ContentType == "" {
			r.ContentType = "application/json"
		}
	}

	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Chunked {
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if r.UserID != "" {
		token, err := a.Tokens.Issue(r.UserID, r.Role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.Engine.ServeHTTP(w, req)
	return w
}

// Decode unmarshals the response body into out.
func Decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

// ErrorCode returns error.code from an error response.
func ErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Decode(t, w, &body)
	return body.Error.Code
}

// StatusIs fails with the body when the status code differs.
func StatusIs(t *testing.T, want int, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, w.Code, w.Body.String())
	if want == http.StatusNoContent {
		require.Empty(t, w.Body.String())
	}
}
