package agentloop

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/movinture/latent-logic/unifiedllm"
)

// DefaultMaxTurns is used when Run is called with maxTurns <= 0.
const DefaultMaxTurns = 8

// Framework is one interchangeable implementation of the agent loop.
//
// Run always returns a record once the run has started. On a turn-budget
// overrun it is returned with a *TooManyTurnsError and status incomplete;
// on a provider failure or cancellation with a non-nil error and status
// error. Tool failures never surface as errors.
type Framework interface {
	Name() string
	Run(ctx context.Context, rc *RunContext, model string, prompt Prompt, tools *ToolRegistry, maxTurns int) (*AgentRunRecord, error)
}

// Completer is the blocking half of *unifiedllm.Client.
type Completer interface {
	Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// Streamer is the streaming half of *unifiedllm.Client.
type Streamer interface {
	Stream(ctx context.Context, req unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error)
}

// runState is the accumulator of one run: the conversation, the record
// being built, and the hooks from the RunContext.
type runState struct {
	rc        *RunContext
	framework string
	model     string
	prompt    Prompt
	tools     *ToolRegistry
	conv      *Conversation
	rec       *AgentRunRecord
	logger    *zap.Logger
}

func newRunState(rc *RunContext, framework, model string, prompt Prompt, tools *ToolRegistry, systemPrompt string) *runState {
	s := &runState{
		rc:        rc,
		framework: framework,
		model:     model,
		prompt:    prompt,
		tools:     tools,
		conv:      NewConversation(systemPrompt, prompt.Text),
		logger: rc.Logger.With(
			zap.String("framework", framework),
			zap.String("model", model),
			zap.String("prompt_id", prompt.ID),
		),
	}
	s.rec = &AgentRunRecord{
		RunGroup:      rc.RunGroup,
		Framework:     framework,
		Model:         model,
		PromptID:      prompt.ID,
		PromptVersion: prompt.Version,
		PromptType:    prompt.Type,
		ToolCalls:     []ToolInvocation{},
		ToolResults:   []ToolResult{},
		StartedAt:     rc.Now(),
	}
	s.emit(EventRunStart, nil)
	return s
}

func (s *runState) emit(kind EventKind, data map[string]interface{}) {
	s.rc.emit(kind, s.framework, s.model, s.prompt.ID, data)
}

func (s *runState) request() unifiedllm.Request {
	req := unifiedllm.Request{
		Model:       s.model,
		Messages:    s.conv.ToLLMMessages(),
		ToolDefs:    s.tools.ToUnifiedLLMToolDefs(),
		Temperature: s.rc.Temperature,
	}
	if len(req.ToolDefs) > 0 {
		req.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
	}
	return req
}

// recordAssistant counts one assistant response and appends it with its
// invocations.
func (s *runState) recordAssistant(text string, enc ToolCallEncoding, usage unifiedllm.Usage) {
	s.rec.Turns++
	s.rec.Usage = s.rec.Usage.Add(usage)
	s.conv.AppendAssistant(text, enc.Calls)
	s.rec.ToolCalls = append(s.rec.ToolCalls, enc.Calls...)
	s.emit(EventAssistantMessage, map[string]interface{}{
		"turn":       s.rec.Turns,
		"encoding":   enc.Tag.String(),
		"tool_calls": len(enc.Calls),
	})
}

// execute runs one invocation through the registry. Unknown tools and
// executor errors become error results fed back to the model.
func (s *runState) execute(ctx context.Context, inv ToolInvocation) ToolResult {
	s.emit(EventToolCallStart, map[string]interface{}{
		"tool_name": inv.Name,
		"call_id":   inv.CallID,
		"encoding":  string(inv.Encoding),
	})

	result := ToolResult{CallID: inv.CallID, Name: inv.Name}
	registered := s.tools.Get(inv.Name)
	if registered == nil {
		err := &UnknownToolError{Tool: inv.Name}
		s.logger.Warn("unknown tool requested", zap.String("tool", inv.Name))
		result.Error = err.Error()
	} else if err := registered.ValidateArguments(inv.Arguments); err != nil {
		s.logger.Warn("tool arguments rejected", zap.String("tool", inv.Name), zap.Error(err))
		result.Error = err.Error()
	} else if out, err := registered.Executor(ctx, inv.Arguments); err != nil {
		terr := &ToolExecutionError{Tool: inv.Name, Cause: err}
		s.logger.Warn("tool execution failed", zap.String("tool", inv.Name), zap.Error(err))
		result.Error = terr.Error()
	} else {
		result.Output = TruncateToolOutput(out, inv.Name, s.rc.ToolOutputLimits)
	}

	data := map[string]interface{}{"call_id": inv.CallID}
	if result.IsError() {
		data["error"] = result.Error
	} else {
		data["output_chars"] = len(result.Output)
	}
	s.emit(EventToolCallEnd, data)
	return result
}

// appendResults feeds results back in request order.
func (s *runState) appendResults(results []ToolResult) {
	for _, r := range results {
		fed := r.Output
		if r.IsError() {
			fed = r.Error
		}
		s.conv.AppendToolResult(r, fed)
		s.rec.ToolResults = append(s.rec.ToolResults, r)
	}
	if s.rc.LoopWindow > 0 && DetectLoop(s.rec.ToolCalls, s.rc.LoopWindow) {
		s.logger.Info("repeating tool call pattern", zap.Int("window", s.rc.LoopWindow))
		s.emit(EventLoopDetected, map[string]interface{}{"window": s.rc.LoopWindow})
	}
}

func (s *runState) finish(status RunStatus) *AgentRunRecord {
	s.rec.Status = status
	s.rec.Conversation = s.conv.Messages()
	s.rec.FinishedAt = s.rc.Now()
	s.rec.ElapsedSeconds = s.rec.FinishedAt.Sub(s.rec.StartedAt).Seconds()
	s.emit(EventRunEnd, map[string]interface{}{
		"status":     string(status),
		"turns":      s.rec.Turns,
		"tool_calls": len(s.rec.ToolCalls),
	})
	return s.rec
}

// complete terminates the run with a final answer.
func (s *runState) complete(finalText string) *AgentRunRecord {
	s.rec.FinalText = finalText
	s.logger.Debug("run complete", zap.Int("turns", s.rec.Turns), zap.Int("tool_calls", len(s.rec.ToolCalls)))
	return s.finish(StatusComplete)
}

// exhausted terminates a run whose last permitted response still asked
// for tools. Those invocations are recorded but not executed.
func (s *runState) exhausted(limit int) (*AgentRunRecord, error) {
	err := &TooManyTurnsError{Limit: limit}
	s.rec.Error = &RunError{Kind: "turn_limit", Message: err.Error()}
	s.logger.Info("turn budget exhausted", zap.Int("max_turns", limit))
	s.emit(EventTurnLimit, map[string]interface{}{"max_turns": limit})
	return s.finish(StatusIncomplete), err
}

// fail terminates the run on a provider failure or cancellation. When the
// run's own context is done the context error is wrapped instead of being
// reported as a ProviderError.
func (s *runState) fail(ctx context.Context, err error) (*AgentRunRecord, error) {
	if ctx.Err() != nil {
		err = fmt.Errorf("run abandoned at turn %d: %w", s.rec.Turns+1, ctx.Err())
	} else {
		err = &ProviderError{Model: s.model, Turn: s.rec.Turns + 1, Cause: err}
	}
	s.rec.Error = &RunError{Kind: unifiedllm.ErrorKind(err), Message: err.Error()}
	s.logger.Warn("run failed", zap.String("kind", s.rec.Error.Kind), zap.Error(err))
	s.emit(EventError, map[string]interface{}{"kind": s.rec.Error.Kind, "error": err.Error()})
	return s.finish(StatusError), err
}

func normalizeMaxTurns(maxTurns int) int {
	if maxTurns <= 0 {
		return DefaultMaxTurns
	}
	return maxTurns
}
