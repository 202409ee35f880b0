// Package mcp serves budget, spend, cache and battle views to MCP clients
// over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/models"
)

// BudgetReporter reports the current budget status.
type BudgetReporter interface {
	Status(ctx context.Context) models.BudgetStatus
}

// SpendReporter aggregates ledger spend.
type SpendReporter interface {
	Summary(ctx context.Context, since time.Time, environment string) ([]models.SpendSummary, error)
}

// CacheReporter provides cache statistics without coupling to a backend.
type CacheReporter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// BattleStore reads archived battles.
type BattleStore interface {
	Get(ctx context.Context, id string) (*models.Battle, error)
	List(ctx context.Context, opts models.ArchiveQueryOpts) ([]models.Battle, error)
}

// Deps are the views exposed as tools. Any of them may be nil.
type Deps struct {
	Budget      BudgetReporter
	Spend       SpendReporter
	Cache       CacheReporter
	Battles     BattleStore
	Environment string
	Version     string
	Logger      *zap.Logger
}

// Server is a minimal MCP server speaking line-delimited JSON-RPC 2.0.
type Server struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{deps: deps, logger: deps.Logger.Named("mcp"), now: time.Now}
}

// Run reads requests from r line by line and writes responses to w until r
// is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, errorFor(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != jsonrpcVersion {
			s.write(w, errorFor(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\""))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultFor(req, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "skirmish", Version: s.deps.Version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return resultFor(req, map[string]any{})
	case "tools/list":
		return resultFor(req, ToolsListResult{Tools: toolDefinitions()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return errorFor(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorFor(req.ID, CodeInvalidParams, "invalid params")
	}

	t, ok := toolByName(params.Name)
	if !ok {
		return resultFor(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return resultFor(req, t.handle(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
