package gateway

import (
	"context"
	"fmt"

	"github.com/agentrun/agentrun/internal/reasoning"
	"github.com/agentrun/agentrun/pkg/models"
)

// EnsureReasoningStack lazily builds and caches the server's
// ReasoningStack, wiring the §4.7-§4.21 domain cluster over the same
// LLM provider/router, tool registry and channel registry the rest of
// the gateway uses, then starts its scheduler. Call sites: the serve
// command, after the base server and its runtime are up, and the
// standalone "agentrun reasoning run" CLI command.
func (s *Server) EnsureReasoningStack(ctx context.Context) (*ReasoningStack, error) {
	s.runtimeMu.Lock()
	defer s.runtimeMu.Unlock()

	if s.reasoningStack != nil {
		return s.reasoningStack, nil
	}

	if s.runtime == nil {
		return nil, fmt.Errorf("reasoning stack requires the agent runtime to be initialized first")
	}

	provider, model, err := s.newProvider()
	if err != nil {
		return nil, fmt.Errorf("build reasoning router: %w", err)
	}

	router := reasoning.NewRouterAdapter(provider, reasoning.ModelsByTier{
		models.TierTrivial:  model,
		models.TierSimple:   model,
		models.TierModerate: model,
		models.TierComplex:  model,
		models.TierCritical: model,
	})

	stack := BuildReasoningStack(router, s.runtime.ToolRegistry(), s.channels)
	stack.Start(ctx)

	s.reasoningStack = stack
	return stack, nil
}

// ReasoningStack returns the previously built reasoning stack, or nil if
// EnsureReasoningStack has not been called yet.
func (s *Server) ReasoningStack() *ReasoningStack {
	s.runtimeMu.Lock()
	defer s.runtimeMu.Unlock()
	return s.reasoningStack
}
