package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
	"github.com/stackfolio/portfolio-rag/internal/service"
	"github.com/stackfolio/portfolio-rag/internal/worker"
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes tools for external AI agents to ask about projects and drive ingestion.
type Server struct {
	projects  port.ProjectStore
	processor *service.ProcessingService
	rag       *service.RAGService
	pool      *worker.Pool
	port      string
}

// NewServer creates a new MCP server.
func NewServer(projects port.ProjectStore, processor *service.ProcessingService, rag *service.RAGService, pool *worker.Pool, port string) *Server {
	return &Server{
		projects:  projects,
		processor: processor,
		rag:       rag,
		pool:      pool,
		port:      port,
	}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Start begins the MCP server on the configured port.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)

	slog.Info("MCP server starting", "port", s.port)
	return http.ListenAndServe(":"+s.port, mux)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, -32700, "parse error")
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), req.Params)
	case "initialize":
		result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "portfolio-rag",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	default:
		writeError(w, req.ID, -32601, "method not found")
		return
	}

	if err != nil {
		writeError(w, req.ID, -32603, err.Error())
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial endpoint message
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	w.(http.Flusher).Flush()

	// Keep connection alive
	<-r.Context().Done()
}

func (s *Server) listTools() map[string]interface{} {
	tools := []Tool{
		{
			Name:        "ask_project",
			Description: "Ask a question about a portfolio project, answered from its indexed repository",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"project_id": {"type": "string", "description": "Project ID"},
					"question": {"type": "string", "description": "Question about the project"}
				},
				"required": ["project_id", "question"]
			}`),
		},
		{
			Name:        "project_status",
			Description: "Report the repository processing state of a project",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"project_id": {"type": "string", "description": "Project ID"}
				},
				"required": ["project_id"]
			}`),
		},
		{
			Name:        "process_project",
			Description: "Queue repository ingestion for a project",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"project_id": {"type": "string", "description": "Project ID"},
					"force": {"type": "boolean", "description": "Reprocess even if already completed"}
				},
				"required": ["project_id"]
			}`),
		},
	}
	return map[string]interface{}{"tools": tools}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	switch req.Name {
	case "ask_project":
		var args struct {
			ProjectID string `json:"project_id"`
			Question  string `json:"question"`
		}
		json.Unmarshal(req.Arguments, &args)

		if _, err := s.projects.GetProject(ctx, args.ProjectID); err != nil {
			return nil, err
		}
		answer := s.rag.Ask(ctx, args.ProjectID, args.Question, nil)
		return textResult(answer), nil

	case "project_status":
		var args struct {
			ProjectID string `json:"project_id"`
		}
		json.Unmarshal(req.Arguments, &args)

		if _, err := s.projects.GetProject(ctx, args.ProjectID); err != nil {
			return nil, err
		}
		rec, numChunks, err := s.processor.Status(ctx, args.ProjectID)
		if errors.Is(err, port.ErrRecordNotFound) {
			return textResult("state=pending progress=0% (never processed)"), nil
		}
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("state=%s progress=%d%% attempts=%d", rec.State, rec.Progress, rec.Attempts)
		if rec.State == domain.StateCompleted {
			text += fmt.Sprintf(" chunks=%d", numChunks)
		}
		if rec.LastError != "" {
			text += fmt.Sprintf(" last_error=%q", rec.LastError)
		}
		return textResult(text), nil

	case "process_project":
		var args struct {
			ProjectID string `json:"project_id"`
			Force     bool   `json:"force"`
		}
		json.Unmarshal(req.Arguments, &args)

		if _, err := s.projects.GetProject(ctx, args.ProjectID); err != nil {
			return nil, err
		}
		projectID, force := args.ProjectID, args.Force
		jobID, err := s.pool.Submit(projectID, func(jobCtx context.Context) {
			if err := s.processor.Process(jobCtx, projectID, force); err != nil {
				slog.Error("processing failed", "project_id", projectID, "error", err)
			}
		})
		if errors.Is(err, worker.ErrBusy) {
			return textResult("processing already in progress"), nil
		}
		if err != nil {
			return nil, err
		}
		return textResult(fmt.Sprintf("processing started (job %s)", jobID)), nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Name)
	}
}

func textResult(text string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	}
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
