package logger

import "github.com/stretchr/testify/mock"

// MockLogger is a testify mock implementing Interface, for use in component
// tests that assert on specific log calls.
type MockLogger struct {
	mock.Mock
}

// NewMockLogger creates a new mock logger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Debug(msg string, fields ...any) { m.Called(msg, fields) }
func (m *MockLogger) Info(msg string, fields ...any)  { m.Called(msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...any)  { m.Called(msg, fields) }
func (m *MockLogger) Error(msg string, fields ...any) { m.Called(msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...any) { m.Called(msg, fields) }
func (m *MockLogger) Sync() error {
	args := m.Called()
	return args.Error(0)
}
