package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/handlers"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type RPTAuditHandlerTestSuite struct {
	suite.Suite
	router           *gin.Engine
	mockRPTService   *MockRPTService
	mockAuditService *MockAuditService
}

func TestRPTAuditHandlers(t *testing.T) {
	suite.Run(t, new(RPTAuditHandlerTestSuite))
}

func (suite *RPTAuditHandlerTestSuite) SetupTest() {
	suite.router = gin.New()
	suite.mockRPTService = new(MockRPTService)
	suite.mockAuditService = new(MockAuditService)

	rg := suite.router.Group("/")
	handlers.RegisterRPTRoutes(rg, suite.mockRPTService)
	handlers.RegisterAuditRoutes(rg, suite.mockAuditService)
}

func (suite *RPTAuditHandlerTestSuite) TestVerifyDetached_OK() {
	req := dto.RPTVerifyRequest{KeyID: "0011223344556677", PayloadC14N: `{"a":1}`, SignatureB64: "c2ln"}
	suite.mockRPTService.On("VerifyDetached", mock.Anything, req).
		Return(&dto.RPTVerifyResponse{OK: true, PayloadSHA256: "beef"}, nil).Once()

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rpt/verify", jsonBody(req)))

	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"ok":true,"payload_sha256":"beef"}`, w.Body.String())
}

func (suite *RPTAuditHandlerTestSuite) TestVerifyDetached_BadSignature() {
	suite.mockRPTService.On("VerifyDetached", mock.Anything, mock.Anything).
		Return(nil, apperrors.New(apperrors.CodeRPTSignatureInvalid, "signature does not verify")).Once()

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rpt/verify", jsonBody(gin.H{
		"payload_c14n": `{"a":1}`, "signature_b64": "c2ln",
	})))

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.JSONEq(`{"error":"RPT_SIGNATURE_INVALID","detail":"signature does not verify"}`, w.Body.String())
}

func (suite *RPTAuditHandlerTestSuite) TestVerifyDetached_MissingFields() {
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rpt/verify", jsonBody(gin.H{"kid": "x"})))
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockRPTService.AssertNotCalled(suite.T(), "VerifyDetached", mock.Anything, mock.Anything)
}

func (suite *RPTAuditHandlerTestSuite) TestInternalErrorsHideDetail() {
	suite.mockRPTService.On("Issue", mock.Anything, mock.Anything).
		Return(nil, apperrors.Wrap(apperrors.CodeInternal, "pool exhausted on host db-1", nil)).Once()

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rpt/issue", jsonBody(gin.H{
		"abn": testABN, "tax_type": "GST", "period_id": testPeriod,
		"rail_id": "EFT", "destination_id": "ATO", "reference": "R",
	})))

	suite.Equal(http.StatusInternalServerError, w.Code)
	suite.JSONEq(`{"error":"INTERNAL"}`, w.Body.String())
}

func (suite *RPTAuditHandlerTestSuite) TestInternalErrorsQuoteRequestID() {
	router := gin.New()
	router.Use(middleware.StructuredLoggingMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil))))
	handlers.RegisterRPTRoutes(router.Group("/"), suite.mockRPTService)
	suite.mockRPTService.On("Issue", mock.Anything, mock.Anything).
		Return(nil, apperrors.Wrap(apperrors.CodeInternal, "pool exhausted on host db-1", nil)).Once()

	req := httptest.NewRequest(http.MethodPost, "/rpt/issue", jsonBody(gin.H{
		"abn": testABN, "tax_type": "GST", "period_id": testPeriod,
		"rail_id": "EFT", "destination_id": "ATO", "reference": "R",
	}))
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	suite.Equal(http.StatusInternalServerError, w.Code)
	suite.JSONEq(`{"error":"INTERNAL","detail":"reference req-42"}`, w.Body.String())
	suite.Equal("req-42", w.Header().Get(middleware.HeaderRequestID))
}

func (suite *RPTAuditHandlerTestSuite) TestAuditBundle() {
	events := []domain.AuditEvent{
		{ID: 1, Scope: domain.ScopeBASGate, ABN: testABN, PeriodID: testPeriod, HashThis: "a"},
		{ID: 2, Scope: domain.ScopeLedger, ABN: testABN, PeriodID: testPeriod, HashThis: "b"},
	}
	suite.mockAuditService.On("Bundle", mock.Anything, testABN, testPeriod).Return(events, nil).Once()

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit/bundle/"+testPeriod+"?abn="+testABN, nil))

	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"scope":"bas_gate"`)
}

func (suite *RPTAuditHandlerTestSuite) TestAuditBundle_EmptyIsArray() {
	suite.mockAuditService.On("Bundle", mock.Anything, "", "2000-01").Return(nil, nil).Once()

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit/bundle/2000-01", nil))

	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("[]", w.Body.String())
}

func (suite *RPTAuditHandlerTestSuite) TestAuditVerifyScope() {
	suite.mockAuditService.On("VerifyScope", mock.Anything, domain.ScopeEgress).
		Return(&domain.ChainReport{Valid: true, Length: 3, Tail: "ff"}, nil).Once()

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit/verify/egress", nil))
	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"valid":true,"length":3,"tail":"ff"}`, w.Body.String())

	w = httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit/verify/payroll", nil))
	suite.Equal(http.StatusBadRequest, w.Code)
}
