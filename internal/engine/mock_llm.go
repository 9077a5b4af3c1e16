package engine

import (
	"context"
	"sync"
	"time"

	"github.com/refundworks/refundflow/internal/llm"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

// MockRefiner is a scriptable SemanticRefiner for tests. Responses are keyed
// by row ID; unkeyed rows fall back to Default. Err, when set, fails every
// call.
type MockRefiner struct {
	mu        sync.Mutex
	Responses map[string]llm.Response
	Default   llm.Response
	Err       error
	Calls     []string
}

// NewMockRefiner creates a mock that confirms every candidate at the given
// confidence.
func NewMockRefiner(confidence int) *MockRefiner {
	return &MockRefiner{
		Responses: make(map[string]llm.Response),
		Default: llm.Response{
			Decision:   string(model.DecisionAddToClaim),
			Confidence: confidence,
		},
	}
}

func (m *MockRefiner) Refine(_ context.Context, row *model.TransactionRow, candidate model.ClassificationResult, _ *model.VendorProfile) (llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, row.ID)

	if m.Err != nil {
		return llm.Response{}, m.Err
	}
	if resp, ok := m.Responses[row.ID]; ok {
		return resp, nil
	}

	resp := m.Default
	if resp.Decision == "" {
		resp.Decision = string(candidate.Decision)
	}
	return resp, nil
}

func (m *MockRefiner) RetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func (m *MockRefiner) Close() error { return nil }

// CallCount returns how many times Refine ran.
func (m *MockRefiner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
