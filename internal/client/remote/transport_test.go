package remote

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClientWithCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}), 0o600))

	t.Run("trusted", func(t *testing.T) {
		c, err := NewHTTPClientWithCA(5*time.Second, caFile)
		require.NoError(t, err)
		resp, err := c.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("untrusted without CA", func(t *testing.T) {
		c, err := NewHTTPClientWithCA(5*time.Second, "")
		require.NoError(t, err)
		_, err = c.Get(srv.URL)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewHTTPClientWithCA(time.Second, filepath.Join(t.TempDir(), "nope.crt"))
		assert.Error(t, err)
	})

	t.Run("not PEM", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.crt")
		require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o600))
		_, err := NewHTTPClientWithCA(time.Second, bad)
		assert.ErrorContains(t, err, "parse CA")
	})
}
