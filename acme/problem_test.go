package acme

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProblemValidDocument(t *testing.T) {
	body := []byte(`{"type":"urn:ietf:params:acme:error:badNonce","detail":"JWS has an invalid anti-replay nonce","status":400}`)
	p := ParseProblem(400, body)
	require.Equal(t, ProblemBadNonce, p.Type)
	require.Equal(t, 400, p.Status)

	err := &ProtocolError{URL: "https://example.com/acme", Problem: p}
	require.True(t, err.BadNonce())
	require.False(t, err.RateLimited())
}

func TestParseProblemFallsBackToRawBody(t *testing.T) {
	body := []byte("internal server error")
	p := ParseProblem(500, body)
	require.Equal(t, "", p.Type)
	require.Equal(t, "internal server error", p.Detail)
	require.Equal(t, 500, p.Status)
}

func TestParseProblemDefaultsStatusFromArgument(t *testing.T) {
	body := []byte(`{"type":"urn:ietf:params:acme:error:malformed","detail":"bad request"}`)
	p := ParseProblem(400, body)
	require.Equal(t, 400, p.Status)
}
