package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:            http.StatusBadRequest,
		StatusValidationFailed:      http.StatusBadRequest,
		StatusUnauthorized:          http.StatusUnauthorized,
		StatusForbidden:             http.StatusForbidden,
		StatusNotFound:              http.StatusNotFound,
		StatusInsufficientPoints:    http.StatusUnprocessableEntity,
		StatusPermissionCheckFailed: http.StatusInternalServerError,
		StatusInternal:              http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
}

func TestWrappedBaseError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("resolve role: %w", PermissionCheckFailed("permission check failed", cause))

	be, ok := As(err)
	require.True(t, ok)
	require.Equal(t, StatusPermissionCheckFailed, be.Code)
	require.ErrorIs(t, err, cause)
	require.True(t, Is(err, StatusPermissionCheckFailed))
	require.False(t, Is(err, StatusForbidden))

	body := be.JSON().(map[string]any)["error"].(map[string]any)
	require.Equal(t, "permission check failed", body["message"])
}
