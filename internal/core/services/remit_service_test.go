package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/core/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/stretchr/testify/suite"
)

// poolTransactor stands in for a pool with no spare connection: any
// transaction outside the remit session fails.
type poolTransactor struct{}

func (poolTransactor) WithinTx(context.Context, func(context.Context, portsrepo.Repositories) error) error {
	return apperrors.New(apperrors.CodeTimeout, "no free connection")
}

type RemitServiceTestSuite struct {
	coreSuite
}

func TestRemitService(t *testing.T) {
	suite.Run(t, new(RemitServiceTestSuite))
}

func (suite *RemitServiceTestSuite) remit(token, actor string) (*dto.RemitResponse, error) {
	return suite.svc.Remit.Remit(suite.ctx, dto.RemitRequest{
		PeriodID:       testPeriod,
		RPT:            token,
		Actor:          actor,
		IdempotencyKey: "idem-" + actor,
	})
}

func (suite *RemitServiceTestSuite) balance(k domain.PeriodKey) int64 {
	snap, err := suite.svc.Ledger.Snapshot(suite.ctx, k)
	suite.Require().NoError(err)
	return snap.BalanceCents
}

func (suite *RemitServiceTestSuite) TestHappyPath() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	resp, err := suite.remit(issued.Token, "B")
	suite.Require().NoError(err)
	suite.True(resp.OK)
	suite.Equal(string(domain.StateRemitted), resp.Status)
	suite.Regexp(`^SBX-`, resp.BankReference)
	suite.Len(resp.ReceiptHash, 64)

	suite.Equal(int64(0), suite.balance(k))
	entries, err := suite.svc.Ledger.Entries(suite.ctx, k)
	suite.Require().NoError(err)
	last := entries[len(entries)-1]
	suite.Equal(int64(-123_456), last.AmountCents)
	suite.Equal(resp.ReceiptHash, last.BankReceiptHash)

	period, err := suite.svc.Gate.GetPeriod(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(domain.StateRemitted, period.State)
	suite.Equal(resp.Hash, period.HashThis)
	suite.Equal("B", period.LastActor)

	token, err := suite.provider.Reader.RPT.LatestToken(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(domain.RPTConsumed, token.Status)

	for _, scope := range []domain.AuditScope{domain.ScopeLedger, domain.ScopeBASGate, domain.ScopeEgress, domain.ScopeRPT} {
		report, err := suite.svc.Audit.VerifyScope(suite.ctx, scope)
		suite.Require().NoError(err)
		suite.True(report.Valid, scope)
	}
	ledger, err := suite.svc.Ledger.Verify(suite.ctx, k)
	suite.Require().NoError(err)
	suite.True(ledger.Valid)
	suite.Equal(1, suite.sandbox.Calls())
}

func (suite *RemitServiceTestSuite) TestCommitRunsOnLockSession() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	provider := suite.provider
	provider.Transactor = poolTransactor{}
	svc := services.NewServiceContainer(suite.cfg, provider, suite.keyring, suite.kill, services.WithClock(suite.clock))

	resp, err := svc.Remit.Remit(suite.ctx, dto.RemitRequest{
		PeriodID:       testPeriod,
		RPT:            issued.Token,
		Actor:          "B",
		IdempotencyKey: "idem-B",
	})
	suite.Require().NoError(err)
	suite.True(resp.OK)
	suite.Equal(int64(0), suite.balance(k))
	suite.Equal(1, suite.sandbox.Calls())
}

func (suite *RemitServiceTestSuite) TestEmptyActorRejectedBeforeEgress() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	for _, actor := range []string{"", "  "} {
		_, err := suite.remit(issued.Token, actor)
		suite.True(apperrors.Is(err, apperrors.CodeInvalidPayload), "actor %q", actor)
	}
	suite.Equal(0, suite.sandbox.Calls())
	suite.Equal(int64(123_456), suite.balance(k))

	resp, err := suite.remit(issued.Token, "B")
	suite.Require().NoError(err)
	suite.True(resp.OK)
}

func (suite *RemitServiceTestSuite) TestTokenCannotBePaidTwice() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	_, err := suite.remit(issued.Token, "B")
	suite.Require().NoError(err)

	_, err = suite.remit(issued.Token, "C")
	suite.True(apperrors.Is(err, apperrors.CodeRPTReplayed))
	suite.Equal(apperrors.CodeInvalidSignature, apperrors.From(err).FailureCause())
	suite.Equal(1, suite.sandbox.Calls())
	suite.Equal(int64(0), suite.balance(k))
}

func (suite *RemitServiceTestSuite) TestSeparationOfDutiesReleasesNonce() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	_, err := suite.remit(issued.Token, "A")
	suite.True(apperrors.Is(err, apperrors.CodeSeparationOfDuties))
	suite.Equal(0, suite.sandbox.Calls())
	suite.Equal(int64(123_456), suite.balance(k))

	_, err = suite.remit(issued.Token, "B")
	suite.NoError(err)
}

func (suite *RemitServiceTestSuite) TestKillSwitchReleasesNonce() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	suite.kill.Engage()
	_, err := suite.remit(issued.Token, "B")
	suite.True(apperrors.Is(err, apperrors.CodeKillSwitch))
	suite.Equal(apperrors.CodeKillSwitch, apperrors.From(err).FailureCause())
	suite.Equal(int64(123_456), suite.balance(k))

	period, err := suite.svc.Gate.GetPeriod(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(domain.StateRPTIssued, period.State)

	suite.kill.Release()
	_, err = suite.remit(issued.Token, "B")
	suite.NoError(err)
}

func (suite *RemitServiceTestSuite) TestUpstreamFailureLeavesLedgerUntouched() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	suite.sandbox.FailWith = apperrors.New(apperrors.CodeUpstreamError, "bank unavailable")
	_, err := suite.remit(issued.Token, "B")
	suite.True(apperrors.Is(err, apperrors.CodeUpstreamError))

	entries, err := suite.svc.Ledger.Entries(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Len(entries, 3)
	report, err := suite.svc.Audit.VerifyScope(suite.ctx, domain.ScopeEgress)
	suite.Require().NoError(err)
	suite.Equal(0, report.Length)
}

func (suite *RemitServiceTestSuite) TestRequestMustMatchClaims() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 123_456)

	_, err := suite.svc.Remit.Remit(suite.ctx, dto.RemitRequest{PeriodID: "2025-08", RPT: issued.Token, Actor: "B"})
	suite.True(apperrors.Is(err, apperrors.CodeInvalidPayload))

	_, err = suite.svc.Remit.Remit(suite.ctx, dto.RemitRequest{PeriodID: testPeriod, RPT: issued.Token, Actor: "B", TaxType: "PAYGW"})
	suite.True(apperrors.Is(err, apperrors.CodeInvalidPayload))

	_, err = suite.remit(issued.Token, "B")
	suite.NoError(err, "mismatches release the nonce")
}

func (suite *RemitServiceTestSuite) TestInsufficientBalance() {
	k := gstKey()
	suite.seedIssued(k)
	issued := suite.issue(k, 200_000)

	_, err := suite.remit(issued.Token, "B")
	suite.True(apperrors.Is(err, apperrors.CodeLedgerUnderflow))
	suite.Equal(0, suite.sandbox.Calls())
}

func (suite *RemitServiceTestSuite) TestConcurrentRemitsDebitOnce() {
	k := gstKey()
	suite.seedIssued(k)
	tokens := []string{suite.issue(k, 123_456).Token, suite.issue(k, 123_456).Token}

	var wg sync.WaitGroup
	errs := make([]error, len(tokens))
	for i, tok := range tokens {
		wg.Add(1)
		go func(i int, tok string) {
			defer wg.Done()
			_, errs[i] = suite.remit(tok, "B")
		}(i, tok)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		suite.True(apperrors.Is(err, apperrors.CodeGateNotReady), err.Error())
	}
	suite.Equal(1, ok)
	suite.Equal(1, suite.sandbox.Calls())
	suite.Equal(int64(0), suite.balance(k))
}
