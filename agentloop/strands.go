package agentloop

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/movinture/latent-logic/unifiedllm"
)

// StrandsFrameworkName identifies records produced by StrandsLoop.
const StrandsFrameworkName = "strands"

// StopReason ends one event-loop cycle.
type StopReason string

const (
	StopToolUse   StopReason = "tool_use"
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

// StrandsLoop is the event-loop agent: each cycle streams one response,
// assembles it into content blocks, and continues while the stop reason is
// tool_use. Tool calls within one cycle run concurrently.
type StrandsLoop struct {
	client      Streamer
	maxParallel int
}

// StrandsOption configures a StrandsLoop.
type StrandsOption func(*StrandsLoop)

// WithMaxParallelTools bounds concurrent tool executions within one cycle.
func WithMaxParallelTools(n int) StrandsOption {
	return func(l *StrandsLoop) {
		if n > 0 {
			l.maxParallel = n
		}
	}
}

// NewStrandsLoop returns a StrandsLoop that streams through client.
func NewStrandsLoop(client Streamer, opts ...StrandsOption) *StrandsLoop {
	l := &StrandsLoop{client: client, maxParallel: 4}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns "strands".
func (l *StrandsLoop) Name() string { return StrandsFrameworkName }

// Run drives one conversation through event-loop cycles.
func (l *StrandsLoop) Run(ctx context.Context, rc *RunContext, model string, prompt Prompt, tools *ToolRegistry, maxTurns int) (*AgentRunRecord, error) {
	rc = rc.withDefaults()
	maxTurns = normalizeMaxTurns(maxTurns)

	mode := rc.ToolCallMode
	if mode == "" {
		mode = unifiedllm.ToolCallModeFor(model)
	}
	inline := inlineModel(l.client, model, mode)
	if inline && mode == unifiedllm.ToolCallModeStructured {
		mode = unifiedllm.ToolCallModeAuto
	}

	s := newRunState(rc, StrandsFrameworkName, model, prompt, tools,
		BuildSystemPrompt(StrandsFrameworkName, inline, tools))

	for {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, err)
		}

		cycle, err := l.streamCycle(ctx, s.request())
		if err != nil {
			return s.fail(ctx, err)
		}

		msg := cycle.message()
		stop, enc := cycle.stopReason(msg, mode, rc.NewID)
		s.recordAssistant(msg.TextContent(), enc, cycle.usage)

		switch stop {
		case StopToolUse:
			if s.rec.Turns >= maxTurns {
				return s.exhausted(maxTurns)
			}
			s.appendResults(l.executeTools(ctx, s, enc.Calls))
		case StopMaxTokens:
			s.logger.Info("response truncated at max tokens", zap.Int("turn", s.rec.Turns))
			return s.complete(msg.TextContent()), nil
		default:
			return s.complete(msg.TextContent()), nil
		}
	}
}

// executeTools runs calls concurrently and returns results in request order.
func (l *StrandsLoop) executeTools(ctx context.Context, s *runState, calls []ToolInvocation) []ToolResult {
	results := make([]ToolResult, len(calls))
	if len(calls) == 1 {
		results[0] = s.execute(ctx, calls[0])
		return results
	}
	var g errgroup.Group
	g.SetLimit(l.maxParallel)
	for i, inv := range calls {
		g.Go(func() error {
			results[i] = s.execute(ctx, inv)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type blockKind int

const (
	blockText blockKind = iota
	blockToolUse
)

// contentBlock is one assembled piece of a streamed response.
type contentBlock struct {
	kind blockKind
	text strings.Builder
	id   string
	name string
	args strings.Builder
}

// cycleResult is a fully consumed stream.
type cycleResult struct {
	blocks []*contentBlock
	finish unifiedllm.FinishReason
	usage  unifiedllm.Usage
}

func (l *StrandsLoop) streamCycle(ctx context.Context, req unifiedllm.Request) (*cycleResult, error) {
	events, err := l.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	cycle := &cycleResult{finish: unifiedllm.FinishReason{Reason: "stop"}}
	var current *contentBlock
	byID := map[string]*contentBlock{}

	for ev := range events {
		switch ev.Type {
		case unifiedllm.TextStart:
			current = cycle.add(blockText)
		case unifiedllm.TextDelta:
			if current == nil || current.kind != blockText {
				current = cycle.add(blockText)
			}
			current.text.WriteString(ev.Delta)
		case unifiedllm.TextEnd:
			current = nil
		case unifiedllm.ToolCallStart:
			current = cycle.add(blockToolUse)
			if ev.ToolCall != nil {
				current.id = ev.ToolCall.ID
				current.name = ev.ToolCall.Name
				byID[current.id] = current
			}
		case unifiedllm.ToolCallDelta:
			target := current
			if ev.ToolCall != nil {
				if b, ok := byID[ev.ToolCall.ID]; ok {
					target = b
				}
			}
			if target != nil && target.kind == blockToolUse {
				target.args.WriteString(ev.Delta)
			}
		case unifiedllm.ToolCallEnd:
			current = nil
		case unifiedllm.StreamFinish:
			if ev.FinishReason != nil {
				cycle.finish = *ev.FinishReason
			}
			if ev.Usage != nil {
				cycle.usage = *ev.Usage
			}
		case unifiedllm.StreamError:
			// Drain so the producer can exit.
			go func() {
				for range events {
				}
			}()
			if ev.Error == nil {
				return nil, &unifiedllm.StreamErrorType{SDKError: unifiedllm.SDKError{Message: "stream failed"}}
			}
			return nil, ev.Error
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cycle, nil
}

func (c *cycleResult) add(kind blockKind) *contentBlock {
	b := &contentBlock{kind: kind}
	c.blocks = append(c.blocks, b)
	return b
}

// message folds the blocks into one assistant message.
func (c *cycleResult) message() unifiedllm.Message {
	msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
	var text strings.Builder
	for _, b := range c.blocks {
		if b.kind == blockText {
			text.WriteString(b.text.String())
		}
	}
	if text.Len() > 0 {
		msg.Content = append(msg.Content, unifiedllm.TextPart(text.String()))
	}
	for _, b := range c.blocks {
		if b.kind != blockToolUse {
			continue
		}
		args := json.RawMessage(b.args.String())
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		msg.Content = append(msg.Content, unifiedllm.ToolCallPart(b.id, b.name, args))
	}
	return msg
}

// stopReason maps the finish reason and blocks to a cycle stop reason. A
// final JSON text block is converted to a tool_use block when mode allows.
func (c *cycleResult) stopReason(msg unifiedllm.Message, mode unifiedllm.ToolCallMode, newID CallIDFunc) (StopReason, ToolCallEncoding) {
	if c.finish.Reason == "length" {
		return StopMaxTokens, ToolCallEncoding{Tag: EncodingNone}
	}
	enc := ResolveEncoding(msg, mode, newID)
	if enc.HasCalls() {
		return StopToolUse, enc
	}
	return StopEndTurn, enc
}
