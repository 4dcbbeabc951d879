package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the bridge actions as MCP tools so conversational
// agents can drive the pipeline over stdio or SSE.
type MCPServer struct {
	bridge    Bridge
	mcpServer *server.MCPServer
}

func NewMCPServer(b Bridge, version string) *MCPServer {
	s := &MCPServer{
		bridge:    b,
		mcpServer: server.NewMCPServer("dealflow", version),
	}
	s.registerTools()
	return s
}

// ServeStdio serves MCP on stdin/stdout.
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on the given port.
func (s *MCPServer) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *MCPServer) registerTools() {
	agentArgs := []mcp.ToolOption{
		mcp.WithString("agent_id", mcp.Description("Stable identifier of the agent performing the action")),
		mcp.WithString("agent_name", mcp.Description("Display name of the agent performing the action")),
		mcp.WithString("conversation_id", mcp.Description("ID of the conversation that triggered the action")),
		mcp.WithString("step_name", mcp.Description("Workflow step that triggered the action")),
	}

	moveTool := mcp.NewTool(string(ActionMoveStage),
		append([]mcp.ToolOption{
			mcp.WithDescription("Move a deal to another stage. Stage can be a role (proposal, win, loss) or a stage name. Closing a deal (win or loss) requires a reason from the configured catalog."),
			mcp.WithString("deal_id", mcp.Required(), mcp.Description("ID of the deal to move")),
			mcp.WithString("stage", mcp.Required(), mcp.Description("Target stage role or name")),
			mcp.WithString("reason", mcp.Description("Close reason, required for win/loss stages")),
		}, agentArgs...)...,
	)
	s.mcpServer.AddTool(moveTool, s.handle(func(r *Request, args map[string]any) {
		r.DealID, _ = args["deal_id"].(string)
		r.Stage, _ = args["stage"].(string)
		r.Reason, _ = args["reason"].(string)
	}, ActionMoveStage))

	createTool := mcp.NewTool(string(ActionCreateDeal),
		append([]mcp.ToolOption{
			mcp.WithDescription("Create a new deal. It enters the pipeline's first stage unless a stage is given."),
			mcp.WithString("lead_name", mcp.Required(), mcp.Description("Name of the lead or company")),
			mcp.WithNumber("value", mcp.Description("Deal value")),
			mcp.WithString("stage", mcp.Description("Initial stage role or name")),
			mcp.WithString("pipeline_id", mcp.Description("Pipeline ID, optional when only one pipeline exists")),
		}, agentArgs...)...,
	)
	s.mcpServer.AddTool(createTool, s.handle(func(r *Request, args map[string]any) {
		r.LeadName, _ = args["lead_name"].(string)
		r.Value = floatArg(args, "value")
		r.Stage, _ = args["stage"].(string)
		r.PipelineID, _ = args["pipeline_id"].(string)
	}, ActionCreateDeal))

	valueTool := mcp.NewTool(string(ActionUpdateValue),
		append([]mcp.ToolOption{
			mcp.WithDescription("Set a deal's value."),
			mcp.WithString("deal_id", mcp.Required(), mcp.Description("ID of the deal")),
			mcp.WithNumber("value", mcp.Required(), mcp.Description("New deal value")),
		}, agentArgs...)...,
	)
	s.mcpServer.AddTool(valueTool, s.handle(func(r *Request, args map[string]any) {
		r.DealID, _ = args["deal_id"].(string)
		r.Value = floatArg(args, "value")
	}, ActionUpdateValue))

	noteTool := mcp.NewTool(string(ActionAddNote),
		append([]mcp.ToolOption{
			mcp.WithDescription("Append a note to a deal."),
			mcp.WithString("deal_id", mcp.Required(), mcp.Description("ID of the deal")),
			mcp.WithString("note", mcp.Required(), mcp.Description("Note text")),
		}, agentArgs...)...,
	)
	s.mcpServer.AddTool(noteTool, s.handle(func(r *Request, args map[string]any) {
		r.DealID, _ = args["deal_id"].(string)
		r.Note, _ = args["note"].(string)
	}, ActionAddNote))

	taskTool := mcp.NewTool(string(ActionScheduleTask),
		append([]mcp.ToolOption{
			mcp.WithDescription("Schedule a follow-up task on a deal."),
			mcp.WithString("deal_id", mcp.Required(), mcp.Description("ID of the deal")),
			mcp.WithString("task_title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("due_at", mcp.Required(), mcp.Description("Due timestamp, RFC3339")),
		}, agentArgs...)...,
	)
	s.mcpServer.AddTool(taskTool, s.handle(func(r *Request, args map[string]any) {
		r.DealID, _ = args["deal_id"].(string)
		r.TaskTitle, _ = args["task_title"].(string)
		r.DueAt, _ = args["due_at"].(string)
	}, ActionScheduleTask))
}

// handle builds a tool handler that decodes the shared agent attribution
// args, lets bind fill the action-specific ones, and returns the bridge
// Result as JSON text. Failures are Results too, never protocol errors.
func (s *MCPServer) handle(bind func(*Request, map[string]any), action Action) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		req := Request{Action: action}
		req.AgentID, _ = args["agent_id"].(string)
		req.AgentName, _ = args["agent_name"].(string)
		req.ConversationID, _ = args["conversation_id"].(string)
		req.StepName, _ = args["step_name"].(string)
		bind(&req, args)

		res := s.bridge.Execute(ctx, req)
		data, err := json.Marshal(res)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}
