package fulltext

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/qerrors"
)

// RPCConfig configures an RPCConnector, mirroring
// internal/config.FullTextConfig.
type RPCConfig struct {
	Host           string
	Port           int
	DialTimeout    time.Duration
	RequestTimeout time.Duration

	CircuitMaxFailures    int
	CircuitResetTimeout   time.Duration
}

// RPCConnector is a JSON-RPC 2.0 client over TCP, grounded on the
// teacher's internal/daemon.Client: no persistent connection is kept
// between calls (lazy connect per request), and a request-id counter
// disambiguates concurrent in-flight calls.
type RPCConnector struct {
	addr        string
	dialTimeout time.Duration
	reqTimeout  time.Duration
	requestID   atomic.Uint64
	breaker     *circuitBreaker
}

// NewRPCConnector returns a connector that dials addr on demand.
func NewRPCConnector(cfg RPCConfig) *RPCConnector {
	return &RPCConnector{
		addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		dialTimeout: cfg.DialTimeout,
		reqTimeout:  cfg.RequestTimeout,
		breaker:     newCircuitBreaker(cfg.CircuitMaxFailures, cfg.CircuitResetTimeout),
	}
}

func (c *RPCConnector) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}

func (c *RPCConnector) dial(ctx context.Context) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(c.reqTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *RPCConnector) call(ctx context.Context, method string, params any, out any) error {
	return c.breaker.execute(func() error {
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		req := Request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID()}
		if err := json.NewEncoder(conn).Encode(req); err != nil {
			return fmt.Errorf("fulltext: send request: %w", err)
		}

		var resp Response
		if err := json.NewDecoder(conn).Decode(&resp); err != nil {
			return fmt.Errorf("fulltext: receive response: %w", err)
		}
		if resp.Error != nil {
			return fmt.Errorf("fulltext: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		if out == nil {
			return nil
		}
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return fmt.Errorf("fulltext: marshal result: %w", err)
		}
		return json.Unmarshal(raw, out)
	})
}

// Evaluate implements Connector. Any RPC-layer failure (dial error,
// circuit open, malformed response) is treated as transient per
// spec.md §7 and degrades to an empty EvalResult rather than
// propagating — the caller sees zero matches, not a query failure.
func (c *RPCConnector) Evaluate(ctx context.Context, query string, docFilter *idspace.Set[idspace.DocId], highlight bool) (EvalResult, error) {
	params := EvaluateParams{Query: query, Highlight: highlight}
	if docFilter != nil {
		params.HasFilter = true
		for _, d := range docFilter.ToSlice() {
			params.DocFilter = append(params.DocFilter, uint32(d))
		}
	}

	var wire EvaluateResult
	if err := c.call(ctx, MethodEvaluate, params, &wire); err != nil {
		return EvalResult{}, nil
	}

	result := EvalResult{
		Scores:     make(map[idspace.DocId]float64, len(wire.Scores)),
		Highlights: make(map[idspace.DocId]map[string]string, len(wire.Highlights)),
	}
	for _, d := range wire.Docs {
		result.Docs = append(result.Docs, idspace.DocId(d))
	}
	for d, s := range wire.Scores {
		result.Scores[idspace.DocId(d)] = s
	}
	for d, h := range wire.Highlights {
		result.Highlights[idspace.DocId(d)] = h
	}
	return result, nil
}

// RecreateIndex implements Connector. Unlike Evaluate, a failure here
// surfaces as an IndexingError: index rebuilds are an explicit control
// call, not a query-path operation that should degrade silently.
func (c *RPCConnector) RecreateIndex(ctx context.Context) error {
	if err := c.call(ctx, MethodRecreateIndex, nil, nil); err != nil {
		return qerrors.Indexing("recreate_index failed", err)
	}
	return nil
}

// Close is a no-op: RPCConnector holds no persistent connection.
func (c *RPCConnector) Close() error { return nil }

var _ Connector = (*RPCConnector)(nil)
