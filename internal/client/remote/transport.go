package remote

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// NewHTTPClient returns an http.Client with a bounded timeout and a
// transport that refuses anything older than TLS 1.2.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// NewHTTPClientWithCA is NewHTTPClient that additionally trusts the PEM
// certificates in caFile, e.g. a development CA for a local proxy. An empty
// caFile is the same as NewHTTPClient.
func NewHTTPClientWithCA(timeout time.Duration, caFile string) (*http.Client, error) {
	c := NewHTTPClient(timeout)
	if caFile == "" {
		return c, nil
	}

	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("failed to parse CA cert")
	}
	c.Transport.(*http.Transport).TLSClientConfig.RootCAs = pool
	return c, nil
}
