package http

import (
	"bytes"
	"encoding/pem"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// testServerCA returns the pem-encoded certificate of a running TLS test
// server.
func testServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, err)
	return buf.String()
}
