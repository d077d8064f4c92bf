package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	httperrors "github.com/dropDatabas3/userrelay/internal/http/errors"
)

func jsonReq(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestReadJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, ReadJSON(httptest.NewRecorder(), jsonReq(`{"Email":"a@x.com","n":1}`), &v))
	require.Equal(t, "a@x.com", v["Email"])

	r := jsonReq(`{}`)
	r.Header.Set("Content-Type", "text/plain")
	require.ErrorIs(t, ReadJSON(httptest.NewRecorder(), r, &v), httperrors.ErrUnsupportedMediaType)

	err := ReadJSON(httptest.NewRecorder(), jsonReq(``), &v)
	require.Equal(t, "INVALID_JSON", httperrors.FromError(err).Code)

	err = ReadJSON(httptest.NewRecorder(), jsonReq(`{"a":`), &v)
	require.Equal(t, "INVALID_JSON", httperrors.FromError(err).Code)

	big := `{"a":"` + strings.Repeat("x", int(MaxBodyBytes)) + `"}`
	err = ReadJSON(httptest.NewRecorder(), jsonReq(big), &v)
	require.Equal(t, http.StatusRequestEntityTooLarge, httperrors.FromError(err).HTTPStatus)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", ClientIP(r))
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(r))
}
