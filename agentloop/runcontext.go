package agentloop

import (
	"time"

	"go.uber.org/zap"

	"github.com/movinture/latent-logic/unifiedllm"
)

// RunContext carries everything a single run needs besides its inputs.
// Each unit gets its own; nothing in it is shared mutable state.
type RunContext struct {
	RunGroup string
	Logger   *zap.Logger
	Events   EventSink
	Now      func() time.Time
	NewID    CallIDFunc

	// ToolCallMode overrides the catalog mode for the strands loop.
	ToolCallMode unifiedllm.ToolCallMode
	// ToolOutputLimits maps tool name to the character budget of fed-back output.
	ToolOutputLimits map[string]int
	// LoopWindow is the number of recent invocations checked for repetition.
	// Zero selects DefaultLoopWindow; a negative value disables detection.
	LoopWindow int
	// Temperature is sent on every completion request when set.
	Temperature *float64
}

// NewRunContext returns a RunContext with defaults for every hook.
func NewRunContext(runGroup string, logger *zap.Logger) *RunContext {
	rc := &RunContext{RunGroup: runGroup, Logger: logger}
	return rc.withDefaults()
}

func (rc *RunContext) withDefaults() *RunContext {
	out := RunContext{}
	if rc != nil {
		out = *rc
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.Events == nil {
		out.Events = nopSink{}
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.NewID == nil {
		out.NewID = DefaultCallID
	}
	if out.LoopWindow == 0 {
		out.LoopWindow = DefaultLoopWindow
	}
	return &out
}

func (rc *RunContext) emit(kind EventKind, framework, model, promptID string, data map[string]interface{}) {
	rc.Events.Emit(RunEvent{
		Kind:      kind,
		Timestamp: rc.Now(),
		RunGroup:  rc.RunGroup,
		Framework: framework,
		Model:     model,
		PromptID:  promptID,
		Data:      data,
	})
}
