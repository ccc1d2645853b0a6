package llm

import (
	"context"
	"sync"
)

// MockTextGenerator is a test double with injectable behavior.
type MockTextGenerator struct {
	GenerateFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
	ModelName    string

	mu            sync.Mutex
	generateCalls int
	requests      []*GenerateRequest
}

func (m *MockTextGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	m.mu.Lock()
	m.generateCalls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &GenerateResult{Text: "", FinishReason: FinishReasonStop}, nil
}

func (m *MockTextGenerator) Model() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return "mock-model"
}

// GenerateCalls returns the number of Generate invocations.
func (m *MockTextGenerator) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// Requests returns a copy of every request seen so far.
func (m *MockTextGenerator) Requests() []*GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ TextGenerator = (*MockTextGenerator)(nil)
