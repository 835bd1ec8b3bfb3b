package fulltext

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/fainderql/queryengine/internal/fulltext/bleveindex"
	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/qerrors"
)

// Server serves a bleveindex.Backend over the JSON-RPC 2.0 protocol
// RPCConnector speaks, used in tests to exercise the RPC path end to end
// without a separate process.
type Server struct {
	backend  *bleveindex.Backend
	listener net.Listener
}

// NewServer starts listening on addr ("host:port", or "host:0" for an
// ephemeral port) and returns the server. Call Serve to accept
// connections and Addr to discover the bound port.
func NewServer(addr string, backend *bleveindex.Backend) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("fulltext: listen: %w", err)
	}
	return &Server{backend: backend, listener: ln}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed. Intended to be
// run in its own goroutine.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return
	}

	resp := s.dispatch(req)
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) dispatch(req Request) Response {
	ctx := context.Background()

	switch req.Method {
	case MethodPing:
		return newSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodEvaluate:
		raw, err := json.Marshal(req.Params)
		if err != nil {
			return newErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		var params EvaluateParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return newErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}

		var filter *idspace.Set[idspace.DocId]
		if params.HasFilter {
			f := idspace.NewSet[idspace.DocId]()
			for _, d := range params.DocFilter {
				f.Add(idspace.DocId(d))
			}
			filter = &f
		}

		result, err := s.backend.Evaluate(ctx, params.Query, filter, params.Highlight)
		if err != nil {
			return newErrorResponse(req.ID, ErrCodeInternalError, err.Error())
		}
		return newSuccessResponse(req.ID, toWireResult(result))

	case MethodRecreateIndex:
		if err := s.backend.RecreateIndex(ctx); err != nil {
			return newErrorResponse(req.ID, ErrCodeInternalError, err.Error())
		}
		return newSuccessResponse(req.ID, nil)

	default:
		return newErrorResponse(req.ID, ErrCodeMethodNotFound, "unknown method: "+req.Method)
	}
}

func toWireResult(r bleveindex.EvalResult) EvaluateResult {
	wire := EvaluateResult{
		Scores:     make(map[uint32]float64, len(r.Scores)),
		Highlights: make(map[uint32]map[string]string, len(r.Highlights)),
	}
	for _, d := range r.Docs {
		wire.Docs = append(wire.Docs, uint32(d))
	}
	for d, sc := range r.Scores {
		wire.Scores[uint32(d)] = sc
	}
	for d, h := range r.Highlights {
		wire.Highlights[uint32(d)] = h
	}
	return wire
}

// InProcessConnector adapts a bleveindex.Backend directly to the
// Connector interface, bypassing the network entirely. No configuration
// option selects it: pkg/fainderql.Open always builds an RPCConnector.
type InProcessConnector struct {
	backend *bleveindex.Backend
}

// NewInProcessConnector wraps backend as a Connector.
func NewInProcessConnector(backend *bleveindex.Backend) *InProcessConnector {
	return &InProcessConnector{backend: backend}
}

func (c *InProcessConnector) Evaluate(ctx context.Context, query string, docFilter *idspace.Set[idspace.DocId], highlight bool) (EvalResult, error) {
	r, err := c.backend.Evaluate(ctx, query, docFilter, highlight)
	if err != nil {
		return EvalResult{}, nil
	}
	return EvalResult{Docs: r.Docs, Scores: r.Scores, Highlights: r.Highlights}, nil
}

func (c *InProcessConnector) RecreateIndex(ctx context.Context) error {
	if err := c.backend.RecreateIndex(ctx); err != nil {
		return qerrors.Indexing("recreate_index failed", err)
	}
	return nil
}

func (c *InProcessConnector) Close() error {
	return c.backend.Close()
}

var _ Connector = (*InProcessConnector)(nil)
