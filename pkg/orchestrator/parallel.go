package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/halim/aria/pkg/conversation"
	"github.com/halim/aria/pkg/provider"
)

// executeTools runs the requested tool calls concurrently and returns one
// result per call, in the original request order regardless of completion
// order. A tool failure becomes an error-flagged result for the model; it
// never fails the turn.
func (o *Orchestrator) executeTools(ctx context.Context, calls []provider.ToolCall) []conversation.Message {
	results := make([]conversation.Message, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(index int, call provider.ToolCall) {
			defer wg.Done()
			results[index] = o.executeTool(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) executeTool(ctx context.Context, call provider.ToolCall) conversation.Message {
	if o.registry == nil {
		return conversation.ToolResult(call.ID, "tool execution is disabled", true)
	}

	toolCtx := ctx
	if o.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, o.cfg.ToolTimeout)
		defer cancel()
	}

	start := time.Now()
	content, err := o.registry.Execute(toolCtx, call.Name, call.Arguments)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	log.Debug().
		Str("tool", call.Name).
		Str("call_id", call.ID).
		Str("status", status).
		Dur("duration", duration).
		Msg("tool executed")
	if o.metrics != nil {
		o.metrics.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
		o.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(duration.Seconds())
	}

	if err != nil {
		return conversation.ToolResult(call.ID, err.Error(), true)
	}
	return conversation.ToolResult(call.ID, content, false)
}
