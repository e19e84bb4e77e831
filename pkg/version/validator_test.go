package version

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, known map[string]bool, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if known[r.URL.Path] {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestValidateFound(t *testing.T) {
	var hits atomic.Int32
	server := newRegistry(t, map[string]bool{
		"/v2/namespaces/graviteeio/repositories/am-gateway/tags/4.10.0": true,
	}, &hits)

	v := NewValidator(Options{BaseURL: server.URL, Namespace: "graviteeio"})

	require.NoError(t, v.Validate(context.Background(), "4.10.0", "am-gateway"))
	require.NoError(t, v.Validate(context.Background(), "4.10.0", "am-gateway"))
	assert.Equal(t, int32(1), hits.Load(), "confirmed tags are cached")
}

func TestValidateMissingTag(t *testing.T) {
	var hits atomic.Int32
	server := newRegistry(t, nil, &hits)

	v := NewValidator(Options{BaseURL: server.URL, Namespace: "graviteeio"})
	err := v.Validate(context.Background(), "9.9.9", "am-management-api")

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "am-management-api", nf.Artifact)
	assert.Contains(t, err.Error(), "graviteeio/am-management-api:9.9.9")
	assert.Contains(t, err.Error(), "https://hub.docker.com/r/graviteeio/am-management-api/tags")
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestValidateFailsClosedOnTransportError(t *testing.T) {
	var hits atomic.Int32
	server := newRegistry(t, nil, &hits)
	url := server.URL
	server.Close()

	v := NewValidator(Options{BaseURL: url, Namespace: "graviteeio"})
	err := v.Validate(context.Background(), "4.10.0", "am-gateway")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Reason, "registry lookup failed")
}

func TestValidateAllStopsAtFirstMissing(t *testing.T) {
	var hits atomic.Int32
	server := newRegistry(t, map[string]bool{
		"/v2/namespaces/graviteeio/repositories/am-management-api/tags/4.10.0": true,
	}, &hits)

	v := NewValidator(Options{BaseURL: server.URL, Namespace: "graviteeio"})
	err := v.ValidateAll(context.Background(), "4.10.0", "am-management-api", "am-gateway", "am-management-ui")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "am-gateway", nf.Artifact)
	assert.Equal(t, int32(2), hits.Load())
}
