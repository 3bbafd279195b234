package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/tool"
)

// toolOutcome is the result of one requested invocation.
type toolOutcome struct {
	response core.FunctionResponse
	executed bool // the tool was found and returned without error
}

// executeCalls runs calls sequentially in model order. Each call yields
// exactly one function response; failures become textual results.
func executeCalls(ctx context.Context, reg *tool.Registry, calls []core.FunctionCall, logger logging.Logger) []toolOutcome {
	ctx = tool.ContextWithLogger(ctx, logger)
	out := make([]toolOutcome, 0, len(calls))
	for _, fc := range calls {
		out = append(out, executeCall(ctx, reg, fc, logger))
	}
	return out
}

func executeCall(ctx context.Context, reg *tool.Registry, fc core.FunctionCall, logger logging.Logger) toolOutcome {
	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name}

	impl, ok := reg.Get(fc.Name)
	if !ok {
		logger.Warn("agent.tool.not_found", "tool", fc.Name, "call_id", fc.ID)
		resp.Error = fmt.Sprintf("Tool %s not found", fc.Name)
		return toolOutcome{response: resp}
	}

	start := time.Now()
	result, err := callTool(ctx, impl, fc.Arguments)
	logger.Info("agent.tool.executed",
		"tool", fc.Name,
		"call_id", fc.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)
	if err != nil {
		resp.Error = fmt.Sprintf("Error executing %s: %v", fc.Name, err)
		return toolOutcome{response: resp}
	}
	resp.Response = result
	return toolOutcome{response: resp, executed: true}
}

// callTool decodes the JSON arguments and invokes the tool, converting a
// panic into an error.
func callTool(ctx context.Context, impl tool.Tool, args string) (result string, err error) {
	argMap := map[string]any{}
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return impl.Call(ctx, argMap)
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
