package handlers_test

import (
	"context"

	"github.com/apgms/apgms/internal/core/domain"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/rpt"
	"github.com/stretchr/testify/mock"
)

// --- Mock GateService ---
type MockGateService struct {
	mock.Mock
}

func (m *MockGateService) GetPeriod(ctx context.Context, key domain.PeriodKey) (*domain.Period, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Period), args.Error(1)
}

func (m *MockGateService) Transition(ctx context.Context, req dto.GateTransitionRequest) (*domain.TransitionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransitionResult), args.Error(1)
}

var _ portssvc.GateSvcFacade = (*MockGateService)(nil)

// --- Mock RPTService ---
type MockRPTService struct {
	mock.Mock
}

func (m *MockRPTService) Issue(ctx context.Context, req dto.RPTIssueRequest) (*dto.RPTIssueResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.RPTIssueResponse), args.Error(1)
}

func (m *MockRPTService) Verify(ctx context.Context, token string) (*rpt.Token, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rpt.Token), args.Error(1)
}

func (m *MockRPTService) Release(ctx context.Context, nonce string) error {
	args := m.Called(ctx, nonce)
	return args.Error(0)
}

func (m *MockRPTService) VerifyDetached(ctx context.Context, req dto.RPTVerifyRequest) (*dto.RPTVerifyResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.RPTVerifyResponse), args.Error(1)
}

var _ portssvc.RPTSvcFacade = (*MockRPTService)(nil)

// --- Mock AuditService ---
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) Bundle(ctx context.Context, abn, periodID string) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, abn, periodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEvent), args.Error(1)
}

func (m *MockAuditService) VerifyScope(ctx context.Context, scope domain.AuditScope) (*domain.ChainReport, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChainReport), args.Error(1)
}

var _ portssvc.AuditSvc = (*MockAuditService)(nil)
