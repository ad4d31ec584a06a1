package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentrun/agentrun/internal/agent"
	"github.com/agentrun/agentrun/internal/toolcall"
	"github.com/agentrun/agentrun/internal/toolselect"
	"github.com/agentrun/agentrun/pkg/models"
)

// ModelsByTier maps a classify.Tier to the model name passed through to
// the routing layer as CompletionRequest.Model, letting a trivial-tier
// cycle land on a cheap/local model and a complex one on a stronger model
// without the reasoning package knowing provider model IDs itself.
type ModelsByTier map[models.Tier]string

// RouterAdapter implements AIRouter on top of an agent.LLMProvider,
// draining its streaming-channel contract into the single aggregated
// CompletionResponse the reactive loop needs. See CompletionResponse's
// doc comment and DESIGN.md for why the reasoning package itself stays
// synchronous rather than adopting the channel shape.
//
// Any agent.LLMProvider works here, including *routing.Router (the
// teacher's multi-provider dispatcher) and a single wrapped provider or
// *agent.FailoverOrchestrator, whichever internal/gateway's Server
// selected for the deployment.
type RouterAdapter struct {
	router agent.LLMProvider
	models ModelsByTier
}

// NewRouterAdapter wraps router for use as a reasoning.AIRouter.
func NewRouterAdapter(router agent.LLMProvider, models ModelsByTier) *RouterAdapter {
	return &RouterAdapter{router: router, models: models}
}

func (a *RouterAdapter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	areq := &agent.CompletionRequest{
		Model:    a.models[req.Tier],
		System:   req.SystemPrompt,
		Messages: toAgentMessages(req.Messages),
		Tools:    toAgentTools(req.Tools),
	}

	stream, err := a.router.Complete(ctx, areq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("route completion: %w", err)
	}

	var out CompletionResponse
	for chunk := range stream {
		if chunk.Error != nil {
			return CompletionResponse{}, chunk.Error
		}
		out.Text += chunk.Text
		if chunk.ToolCall != nil {
			out.UsedNativeTools = true
			out.NativeCalls = append(out.NativeCalls, toolcall.NativeToolCall{
				ID:        chunk.ToolCall.ID,
				Name:      chunk.ToolCall.Name,
				Arguments: string(chunk.ToolCall.Input),
			})
		}
		if chunk.Done {
			out.InputTokens = chunk.InputTokens
			out.OutputTokens = chunk.OutputTokens
			out.FinishReason = "stop"
		}
	}
	out.Provider = a.router.Name()
	out.Model = areq.Model
	return out, nil
}

func toAgentMessages(msgs []Message) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, agent.CompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func toAgentTools(defs []toolselect.ToolDefinition) []agent.Tool {
	out := make([]agent.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, definitionTool{def: d})
	}
	return out
}

// definitionTool adapts a toolselect.ToolDefinition (a plain descriptor,
// with no schema or executor of its own) into the agent.Tool shape the
// provider/toolconv packages expect for native function-calling. Execute
// is never called on it: tool execution always goes through
// ToolExecutor.Execute instead, so it only needs to satisfy the interface.
type definitionTool struct {
	def toolselect.ToolDefinition
}

func (t definitionTool) Name() string        { return t.def.ID }
func (t definitionTool) Description() string { return t.def.Description }

func (t definitionTool) Schema() json.RawMessage {
	props := make(map[string]any, len(t.def.Required)+len(t.def.Optional))
	for _, p := range t.def.Required {
		props[p] = map[string]any{"type": "string"}
	}
	for _, p := range t.def.Optional {
		props[p] = map[string]any{"type": "string"}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   t.def.Required,
	}
	b, _ := json.Marshal(schema)
	return b
}

func (t definitionTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("definitionTool %q is schema-only; execution goes through reasoning.ToolExecutor", t.def.ID)
}
