package agentloop

import (
	"context"

	"github.com/movinture/latent-logic/unifiedllm"
)

// ScratchFrameworkName identifies records produced by ScratchLoop.
const ScratchFrameworkName = "scratch"

// ScratchLoop is the hand-written agent loop: one blocking completion per
// turn, both tool-call encodings accepted on every turn, tools executed
// sequentially in request order.
type ScratchLoop struct {
	client Completer
}

// NewScratchLoop returns a ScratchLoop that completes through client.
func NewScratchLoop(client Completer) *ScratchLoop {
	return &ScratchLoop{client: client}
}

// Name returns "scratch".
func (l *ScratchLoop) Name() string { return ScratchFrameworkName }

// Run drives one conversation to a terminal answer or the turn budget.
func (l *ScratchLoop) Run(ctx context.Context, rc *RunContext, model string, prompt Prompt, tools *ToolRegistry, maxTurns int) (*AgentRunRecord, error) {
	rc = rc.withDefaults()
	maxTurns = normalizeMaxTurns(maxTurns)
	s := newRunState(rc, ScratchFrameworkName, model, prompt, tools,
		BuildSystemPrompt(ScratchFrameworkName, true, tools))

	for {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, err)
		}

		resp, err := l.client.Complete(ctx, s.request())
		if err != nil {
			return s.fail(ctx, err)
		}

		enc := ResolveEncoding(resp.Message, unifiedllm.ToolCallModeAuto, rc.NewID)
		s.recordAssistant(resp.Text(), enc, resp.Usage)
		if !enc.HasCalls() {
			return s.complete(resp.Text()), nil
		}
		if s.rec.Turns >= maxTurns {
			return s.exhausted(maxTurns)
		}

		results := make([]ToolResult, 0, len(enc.Calls))
		for _, inv := range enc.Calls {
			results = append(results, s.execute(ctx, inv))
		}
		s.appendResults(results)
	}
}
