package requestinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	surfer "github.com/avct/uasurfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func TestMiddleware_AttachesInfo(t *testing.T) {
	e, err := New("")
	require.NoError(t, err)

	var got *RequestInfo
	h := e.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("User-Agent", chromeMac)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "203.0.113.9", got.Geo.IP)
	assert.Empty(t, got.Geo.CountryISO)
	assert.Equal(t, "Chrome", got.UA.Browser)
	assert.Equal(t, "Desktop", got.UA.Device)
	assert.False(t, got.UA.IsBot)
	assert.NotEmpty(t, got.Fields())
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "17", versionString(surfer.Version{Major: 17}))
	assert.Equal(t, "17.3", versionString(surfer.Version{Major: 17, Minor: 3}))
	assert.Equal(t, "17.0.1", versionString(surfer.Version{Major: 17, Patch: 1}))
	assert.Empty(t, versionString(surfer.Version{}))
}

func TestNilInfoHasNoFields(t *testing.T) {
	var ri *RequestInfo
	assert.Nil(t, ri.Fields())
	assert.Nil(t, FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
