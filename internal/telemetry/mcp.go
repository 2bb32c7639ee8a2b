package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"sap-mcp-sse/internal/tools"
)

// ToolRegistryWrapper wraps a tool registry to add telemetry
type ToolRegistryWrapper struct {
	*tools.Registry
	metrics *Metrics
}

// NewToolRegistryWrapper creates a new telemetry-aware tool registry wrapper
func NewToolRegistryWrapper(registry *tools.Registry, metrics *Metrics) *ToolRegistryWrapper {
	return &ToolRegistryWrapper{
		Registry: registry,
		metrics:  metrics,
	}
}

// Call times the underlying call. Unknown tool names are folded into a single
// label value.
func (w *ToolRegistryWrapper) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	start := time.Now()
	result, err := w.Registry.Call(ctx, name, args)

	label := name
	if _, resolveErr := w.Registry.Resolve(name); resolveErr != nil {
		label = "unknown"
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	w.metrics.RecordToolExecution(label, status, time.Since(start))

	return result, err
}
