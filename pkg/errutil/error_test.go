package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseErrorWrapsCause(t *testing.T) {
	cause := errors.New("row missing")
	err := NotFound("tenant not found", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusNotFound, StatusOf(err))
	require.Equal(t, "[not_found] tenant not found: row missing", err.Error())
}

func TestStatusOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("update tenant: %w", ValidationFailed("name is required", nil))
	require.Equal(t, StatusValidationFailed, StatusOf(err))
	require.Equal(t, StatusInternal, StatusOf(errors.New("plain")))
}

func TestJSONHidesCause(t *testing.T) {
	err := Internal("failed to list tenants", errors.New("dial tcp: refused"), WithDetails(Detail{Field: "q", Message: "ignored"}))

	var base BaseError
	require.True(t, errors.As(err, &base))
	body := base.JSON().(map[string]any)["error"].(map[string]any)
	require.Equal(t, "failed to list tenants", body["message"])
	require.Len(t, body["details"], 1)
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusConflict, StatusConflict.HTTPStatus())
	require.Equal(t, http.StatusUnprocessableEntity, StatusValidationFailed.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, CoreStatus("bogus").HTTPStatus())
}
