package toolprovider

import (
	"context"
	"time"
)

// MockProvider is a development-mode stand-in for the sandboxed code
// runner: it answers ListTools from a fixed catalog and echoes every
// CallTool back as its result, so a gateway can be exercised end to end
// without a running runner. Mirrors the teacher's NewMockDiscovery —
// same role (let Initialize succeed in a bare dev loop), same shape
// (construct over a fixed, caller-supplied catalog).
type MockProvider struct {
	catalog []ToolDescriptor
}

// NewMockProvider constructs a MockProvider over a fixed tool catalog.
func NewMockProvider(catalog []ToolDescriptor) *MockProvider {
	return &MockProvider{catalog: catalog}
}

func (m *MockProvider) ListTools(_ context.Context) ([]ToolDescriptor, error) {
	return m.catalog, nil
}

func (m *MockProvider) CallTool(_ context.Context, toolID string, args map[string]interface{}) (CallResult, error) {
	return CallResult{
		Result:     map[string]interface{}{"tool": toolID, "args": args, "mock": true},
		DurationMs: time.Millisecond.Milliseconds(),
	}, nil
}
