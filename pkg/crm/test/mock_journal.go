package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// MockJournal is a mock implementation of the port.Journal interface.
type MockJournal struct {
	mock.Mock
}

// BeginRun mocks the BeginRun method.
func (m *MockJournal) BeginRun(ctx context.Context, report *model.Report) error {
	return m.Called(ctx, report).Error(0)
}

// RecordStage mocks the RecordStage method.
func (m *MockJournal) RecordStage(ctx context.Context, runID string, stage string, result *model.ImportResult) error {
	return m.Called(ctx, runID, stage, result).Error(0)
}

// FinishRun mocks the FinishRun method.
func (m *MockJournal) FinishRun(ctx context.Context, report *model.Report) error {
	return m.Called(ctx, report).Error(0)
}

// Close mocks the Close method.
func (m *MockJournal) Close() error {
	return m.Called().Error(0)
}

// MockContactFinder is a mock implementation of the port.ContactFinder interface.
type MockContactFinder struct {
	mock.Mock
}

// FindContactByEmail mocks the FindContactByEmail method.
func (m *MockContactFinder) FindContactByEmail(ctx context.Context, email string) (string, bool, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Bool(1), args.Error(2)
}

var (
	_ port.Journal       = (*MockJournal)(nil)
	_ port.ContactFinder = (*MockContactFinder)(nil)
)
