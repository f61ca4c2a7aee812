package prompts

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func promptByName(t *testing.T, name string) *PromptDefinition {
	t.Helper()
	for _, p := range NewRegistry(zap.NewNop()).GetPrompts() {
		if p.Prompt.Name == name {
			return p
		}
	}
	t.Fatalf("prompt %s not registered", name)
	return nil
}

func TestGetPrompts(t *testing.T) {
	prompts := NewRegistry(zap.NewNop()).GetPrompts()
	require.Len(t, prompts, 4)

	for _, p := range prompts {
		require.NotNil(t, p.Prompt)
		assert.NotEmpty(t, p.Prompt.Name)
		assert.NotEmpty(t, p.Prompt.Description, p.Prompt.Name)
		assert.NotNil(t, p.Handler, p.Prompt.Name)
	}
}

func TestInvestigateErrorRatioPrompt(t *testing.T) {
	p := promptByName(t, "investigate_error_ratio")

	result, err := p.Handler(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{Arguments: map[string]string{"file_path": "app.log"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	text, ok := result.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `error_to_id_ratio with file_path "app.log"`)
	assert.Contains(t, text.Text, "predict_error_ratio")
}

func TestInvestigateErrorRatioPrompt_RequiresFile(t *testing.T) {
	p := promptByName(t, "investigate_error_ratio")

	_, err := p.Handler(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{Arguments: map[string]string{}},
	})
	assert.Error(t, err)
}

func TestTraceSessionPrompt(t *testing.T) {
	p := promptByName(t, "trace_session")

	result, err := p.Handler(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{Arguments: map[string]string{
			"file_path":  "app.log",
			"session_id": "sess-42",
		}},
	})
	require.NoError(t, err)

	text := result.Messages[0].Content.(*mcp.TextContent).Text
	assert.Contains(t, text, "Trace session sess-42 in app.log")
}

func TestReviewAlertsPrompt_DefaultLimit(t *testing.T) {
	p := promptByName(t, "review_alerts")

	result, err := p.Handler(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{},
	})
	require.NoError(t, err)

	text := result.Messages[0].Content.(*mcp.TextContent).Text
	assert.Contains(t, text, "get_alert_history with limit 10")
}
