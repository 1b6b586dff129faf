package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/decision"
)

func registerTools(s *server.MCPServer, deps Dependencies, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("plan",
			mcp.WithDescription("Define the mission: the project being worked on and the ordered steps. Announces the plan to the human operator."),
			mcp.WithString("project",
				mcp.Required(),
				mcp.Description("Short name of the project or task"),
			),
			mcp.WithArray("steps",
				mcp.Required(),
				mcp.Description("Ordered list of steps the mission consists of"),
			),
		),
		planHandler(deps, log),
	)

	s.AddTool(
		mcp.NewTool("log",
			mcp.WithDescription("Report progress to the human operator. Optionally marks a mission step complete."),
			mcp.WithString("level",
				mcp.Required(),
				mcp.Description("One of: info, success, warning, error"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The status message"),
			),
			mcp.WithNumber("step_index",
				mcp.Description("1-based step to mark complete (optional)"),
			),
		),
		logHandler(deps, log),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription(
				"Hand a decision to the human operator and wait for their answer. "+
					"Use mode=async to get a request_id back immediately and poll with ask_result instead of waiting.",
			),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("The question to ask the human"),
			),
			mcp.WithArray("options",
				mcp.Description("Suggested answers; the human can also reply with free text"),
			),
			mcp.WithString("mode",
				mcp.Description("sync (default) waits for the answer; async returns a request_id"),
			),
			mcp.WithNumber("timeout",
				mcp.Description("Seconds to wait in sync mode before giving up (optional)"),
			),
		),
		askHandler(deps, log),
	)

	s.AddTool(
		mcp.NewTool("ask_result",
			mcp.WithDescription("Poll the result of an async ask by request_id."),
			mcp.WithString("request_id",
				mcp.Required(),
				mcp.Description("The request id returned by ask in async mode"),
			),
		),
		askResultHandler(deps, log),
	)

	log.Info("registered MCP tools", zap.Int("count", 4))
}

func planHandler(deps Dependencies, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		steps, err := stringSliceArg(req, "steps")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(steps) == 0 {
			return mcp.NewToolResultError("steps must not be empty"), nil
		}

		m, err := deps.Missions.Create(ctx, project, steps)
		if err != nil {
			log.Error("failed to create mission", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create mission: %v", err)), nil
		}

		lines := []string{fmt.Sprintf("Plan started: %s (%d steps)", m.Project, len(m.Steps)), "Steps:"}
		for i, step := range m.Steps {
			lines = append(lines, fmt.Sprintf("%d) %s", i+1, step))
		}
		if err := deps.Announcer.Announce(ctx, strings.Join(lines, "\n")); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to announce plan: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf(`{"mission_id": %q}`, m.ID)), nil
	}
}

func logHandler(deps Dependencies, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		level, err := req.RequireString("level")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		switch level {
		case "info", "success", "warning", "error":
		default:
			return mcp.NewToolResultError("level must be one of: info, success, warning, error"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if step, ok := intArg(req, "step_index"); ok {
			if summary, done := deps.Missions.CompleteStep(ctx, step); done {
				message = message + "\n" + summary
			}
		}

		log.Info("agent status", zap.String("level", level), zap.String("message", message))
		deps.Missions.AppendLog(ctx, strings.ToUpper(level)+": "+message)

		if err := deps.Announcer.Announce(ctx, message); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to deliver status: %v", err)), nil
		}
		return mcp.NewToolResultText("logged"), nil
	}
}

func askHandler(deps Dependencies, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		options, err := stringSliceArg(req, "options")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if req.GetString("mode", "sync") == "async" {
			id, err := deps.Decisions.AskAsync(ctx, question, options)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf(`{"request_id": %q, "status": "pending"}`, id)), nil
		}

		var timeout time.Duration
		if args := req.GetArguments(); args != nil {
			if secs, ok := args["timeout"].(float64); ok && secs > 0 {
				timeout = time.Duration(secs * float64(time.Second))
			}
		}

		answer, err := deps.Decisions.AskSync(ctx, question, options, timeout)
		if err != nil {
			log.Warn("ask failed", zap.String("question", question), zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(answer), nil
	}
}

func askResultHandler(deps Dependencies, _ *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		requestID, err := req.RequireString("request_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		answer, status := deps.Decisions.Poll(requestID)
		switch status {
		case decision.StatusPending:
			return mcp.NewToolResultText(fmt.Sprintf(`{"request_id": %q, "status": "pending"}`, requestID)), nil
		case decision.StatusAnswered:
			result, _ := json.Marshal(map[string]string{
				"request_id": requestID,
				"status":     "answered",
				"answer":     answer,
			})
			return mcp.NewToolResultText(string(result)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown request_id %q", requestID)), nil
		}
	}
}

// stringSliceArg extracts an optional array argument as []string. The MCP
// client sends JSON arrays, so elements arrive as interface{} values.
func stringSliceArg(req mcp.CallToolRequest, key string) ([]string, error) {
	args := req.GetArguments()
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// intArg extracts an optional number argument. JSON numbers decode to
// float64.
func intArg(req mcp.CallToolRequest, key string) (int, bool) {
	args := req.GetArguments()
	raw, ok := args[key]
	if !ok {
		return 0, false
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
