package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/decision"
	"github.com/stdhuman/stdhuman/internal/mission"
)

type fakeChannel struct {
	prompts  []string
	messages []string
}

func (f *fakeChannel) DeliverPrompt(ctx context.Context, question string, options []string) error {
	f.prompts = append(f.prompts, question)
	return nil
}

func (f *fakeChannel) Announce(ctx context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func testDeps(t *testing.T) (Dependencies, *fakeChannel) {
	t.Helper()
	log := logger.Default()
	channel := &fakeChannel{}
	deps := Dependencies{
		Missions:  mission.NewManager(mission.NewMemoryStore(), nil, log),
		Decisions: decision.NewService(decision.NewSlot(), channel, nil, time.Minute, log),
		Announcer: channel,
	}
	return deps, channel
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestPlanTool(t *testing.T) {
	deps, channel := testDeps(t)
	handler := planHandler(deps, logger.Default())

	result, err := handler(context.Background(), callRequest(map[string]any{
		"project": "refit",
		"steps":   []interface{}{"survey", "rewrite"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "mission_id")

	require.Len(t, channel.messages, 1)
	assert.Contains(t, channel.messages[0], "Plan started: refit (2 steps)")

	m := deps.Missions.Current()
	require.NotNil(t, m)
	assert.Equal(t, "refit", m.Project)
}

func TestPlanToolValidation(t *testing.T) {
	deps, _ := testDeps(t)
	handler := planHandler(deps, logger.Default())

	result, err := handler(context.Background(), callRequest(map[string]any{"project": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = handler(context.Background(), callRequest(map[string]any{
		"project": "x",
		"steps":   []interface{}{1, 2},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestLogToolCompletesStep(t *testing.T) {
	deps, channel := testDeps(t)
	_, err := deps.Missions.Create(context.Background(), "refit", []string{"survey", "rewrite"})
	require.NoError(t, err)

	handler := logHandler(deps, logger.Default())
	result, err := handler(context.Background(), callRequest(map[string]any{
		"level":      "success",
		"message":    "survey finished",
		"step_index": float64(1),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	last := channel.messages[len(channel.messages)-1]
	assert.Contains(t, last, "survey finished")
	assert.Contains(t, last, "Step 1/2 complete: survey")
	assert.Contains(t, deps.Missions.LastStatus(), "SUCCESS:")
}

func TestAskToolAsyncLifecycle(t *testing.T) {
	deps, _ := testDeps(t)
	ask := askHandler(deps, logger.Default())
	poll := askResultHandler(deps, logger.Default())
	ctx := context.Background()

	result, err := ask(ctx, callRequest(map[string]any{
		"question": "Which color?",
		"options":  []interface{}{"Red", "Blue"},
		"mode":     "async",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	created := resultText(t, result)
	assert.Contains(t, created, "pending")

	// Second concurrent ask conflicts.
	result, err = ask(ctx, callRequest(map[string]any{
		"question": "Another?",
		"mode":     "async",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	require.True(t, deps.Decisions.ResolveReply(ctx, "1"))

	var payload struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(created), &payload))

	result, err = poll(ctx, callRequest(map[string]any{"request_id": payload.RequestID}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"answer":"Red"`)
}

func TestAskResultUnknownID(t *testing.T) {
	deps, _ := testDeps(t)
	poll := askResultHandler(deps, logger.Default())

	result, err := poll(context.Background(), callRequest(map[string]any{"request_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAskToolSyncTimeout(t *testing.T) {
	deps, _ := testDeps(t)
	ask := askHandler(deps, logger.Default())

	result, err := ask(context.Background(), callRequest(map[string]any{
		"question": "Proceed?",
		"timeout":  0.05,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "timeout")
}
