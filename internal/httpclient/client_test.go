package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInjectsBaseHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.BaseHeaders = map[string]string{"Authorization": "Bearer test-token"}
	client := New(opts)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestNewAppliesTimeout(t *testing.T) {
	client := New(DefaultOptions())
	assert.Equal(t, DefaultOptions().Timeout, client.Timeout)
}
