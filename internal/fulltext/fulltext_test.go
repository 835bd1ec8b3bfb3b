package fulltext

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fainderql/queryengine/internal/fulltext/bleveindex"
)

func newBackend(t *testing.T) *bleveindex.Backend {
	t.Helper()
	b, err := bleveindex.New()
	require.NoError(t, err)
	require.NoError(t, b.Index([]bleveindex.Document{
		{ID: 1, Fields: map[string]string{"title": "economic indicators for germany"}},
		{ID: 2, Fields: map[string]string{"title": "climate data for france"}},
	}))
	return b
}

func TestInProcessConnector_Evaluate(t *testing.T) {
	conn := NewInProcessConnector(newBackend(t))
	defer conn.Close()

	result, err := conn.Evaluate(context.Background(), "germany", nil, false)
	require.NoError(t, err)
	assert.Len(t, result.Docs, 1)
}

func TestRPCConnector_EvaluateOverTheWire(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", newBackend(t))
	require.NoError(t, err)
	defer srv.Close()
	go srv.Serve()

	addr := srv.Addr().String()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client := NewRPCConnector(RPCConfig{
		Host:           host,
		Port:           port,
		DialTimeout:    time.Second,
		RequestTimeout: time.Second,
	})

	result, err := client.Evaluate(context.Background(), "germany", nil, false)
	require.NoError(t, err)
	require.Len(t, result.Docs, 1)
	assert.EqualValues(t, 1, result.Docs[0])
}

func TestRPCConnector_UnreachableBackendDegradesToEmptyResult(t *testing.T) {
	client := NewRPCConnector(RPCConfig{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens on port 1
		DialTimeout:    50 * time.Millisecond,
		RequestTimeout: 50 * time.Millisecond,
	})

	result, err := client.Evaluate(context.Background(), "germany", nil, false)
	require.NoError(t, err)
	assert.Empty(t, result.Docs)
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := newCircuitBreaker(2, time.Minute)
	failing := func() error { return assertErr }

	assert.Error(t, cb.execute(failing))
	assert.Error(t, cb.execute(failing))

	// Circuit should now be open: execute returns errCircuitOpen without
	// calling fn.
	called := false
	err := cb.execute(func() error { called = true; return nil })
	assert.Equal(t, errCircuitOpen, err)
	assert.False(t, called)
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
