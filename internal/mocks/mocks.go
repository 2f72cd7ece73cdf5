// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close is not recorded; the mock holds no resources.
func (m *MockLLMClient) Close() error {
	return nil
}

// -- Window Source Mock --

// MockWindowSource mocks the schemas.WindowSource interface.
type MockWindowSource struct {
	mock.Mock
}

func (m *MockWindowSource) ListWindows(ctx context.Context) ([]schemas.WindowSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.WindowSnapshot), args.Error(1)
}

func (m *MockWindowSource) Window(ctx context.Context, id uint64) (schemas.WindowSnapshot, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(schemas.WindowSnapshot), args.Bool(1), args.Error(2)
}

// -- Capability Registry Mock --

// MockCapabilityRegistry mocks the schemas.CapabilityRegistry interface.
type MockCapabilityRegistry struct {
	mock.Mock
}

func (m *MockCapabilityRegistry) ListAll() []schemas.Capability {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]schemas.Capability)
}

func (m *MockCapabilityRegistry) Has(id string) bool {
	return m.Called(id).Bool(0)
}
