package services_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/rpt"
	"github.com/stretchr/testify/suite"
)

type RPTServiceTestSuite struct {
	coreSuite
}

func TestRPTService(t *testing.T) {
	suite.Run(t, new(RPTServiceTestSuite))
}

func (suite *RPTServiceTestSuite) TestIssueBindsLedgerEvidence() {
	k := gstKey()
	suite.seedIssued(k)
	resp := suite.issue(k, 123_456)

	token, err := rpt.Decode(resp.Token)
	suite.Require().NoError(err)
	claims := token.Claims

	period, err := suite.svc.Gate.GetPeriod(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(k.ABN, claims.EntityID)
	suite.Equal(k.PeriodID, claims.PeriodID)
	suite.Equal(int64(123_456), claims.AmountCents)
	suite.Equal(period.MerkleRoot, claims.MerkleRoot)
	suite.Equal(period.RunningBalanceHash, claims.RunningBalanceHash)
	suite.Equal(int64(50_000), claims.AnomalyVector["anomaly_score_ppm"])
	suite.Equal(int64(800_000), claims.Thresholds["anomaly_ceiling_ppm"])
	suite.Equal(suite.clock.Now().Add(600*time.Second).Unix(), claims.ExpiryTS)
	suite.Equal(resp.Nonce, claims.Nonce)

	want, err := claims.Canonical()
	suite.Require().NoError(err)
	suite.Equal(string(want), resp.PayloadC14N)
	suite.Equal(canonical.SHA256Hex(want), resp.PayloadSHA256)

	events, err := suite.svc.Audit.VerifyScope(suite.ctx, domain.ScopeRPT)
	suite.Require().NoError(err)
	suite.True(events.Valid)
	suite.Equal(1, events.Length)
}

func (suite *RPTServiceTestSuite) TestIssueDefaultsAmountToLiability() {
	k := gstKey()
	suite.seedIssued(k)
	resp := suite.issue(k, 0)
	suite.Equal(int64(123_456), resp.AmountCents)
}

func (suite *RPTServiceTestSuite) TestIssueRequiresRPTIssuedState() {
	k := gstKey()
	suite.seedReconciling(k)
	_, err := suite.svc.RPT.Issue(suite.ctx, dto.RPTIssueRequest{
		PeriodRef:       refOf(k),
		RemittanceInput: dto.RemittanceInput{RailID: "EFT", DestinationID: "ATO-PRN-1", Reference: "R"},
		Actor:           "A",
	})
	suite.True(apperrors.Is(err, apperrors.CodeGateNotReady))

	_, err = suite.svc.RPT.Issue(suite.ctx, dto.RPTIssueRequest{
		PeriodRef:       dto.PeriodRef{ABN: testABN, TaxType: "GST", PeriodID: "2099-01"},
		RemittanceInput: dto.RemittanceInput{RailID: "EFT", DestinationID: "ATO-PRN-1", Reference: "R"},
	})
	suite.True(apperrors.Is(err, apperrors.CodeGateNotReady))
}

func (suite *RPTServiceTestSuite) TestIssueRejectsPastExpiry() {
	k := gstKey()
	suite.seedIssued(k)
	_, err := suite.svc.RPT.Issue(suite.ctx, dto.RPTIssueRequest{
		PeriodRef: refOf(k),
		RemittanceInput: dto.RemittanceInput{
			RailID: "EFT", DestinationID: "ATO-PRN-1", Reference: "R",
			ExpiryTS: suite.clock.Now().Unix(),
		},
	})
	suite.True(apperrors.Is(err, apperrors.CodeInvalidPayload))
}

func (suite *RPTServiceTestSuite) TestVerifyConsumesNonceOnce() {
	k := gstKey()
	suite.seedIssued(k)
	resp := suite.issue(k, 123_456)

	token, err := suite.svc.RPT.Verify(suite.ctx, resp.Token)
	suite.Require().NoError(err)
	suite.Equal(resp.Nonce, token.Claims.Nonce)

	_, err = suite.svc.RPT.Verify(suite.ctx, resp.Token)
	suite.True(apperrors.Is(err, apperrors.CodeRPTReplayed))

	suite.Require().NoError(suite.svc.RPT.Release(suite.ctx, resp.Nonce))
	_, err = suite.svc.RPT.Verify(suite.ctx, resp.Token)
	suite.NoError(err)
}

func (suite *RPTServiceTestSuite) TestVerifyHonoursGrace() {
	k := gstKey()
	suite.seedIssued(k)
	first := suite.issue(k, 123_456)
	second := suite.issue(k, 123_456)

	suite.clock.Advance(600*time.Second + rpt.DefaultGrace)
	_, err := suite.svc.RPT.Verify(suite.ctx, first.Token)
	suite.NoError(err, "expiry plus grace is still accepted")

	suite.clock.Advance(time.Second)
	_, err = suite.svc.RPT.Verify(suite.ctx, second.Token)
	suite.True(apperrors.Is(err, apperrors.CodeRPTExpired))
}

func (suite *RPTServiceTestSuite) TestSweepKeepsNonceThroughGrace() {
	k := gstKey()
	suite.seedIssued(k)
	resp := suite.issue(k, 123_456)

	_, err := suite.svc.RPT.Verify(suite.ctx, resp.Token)
	suite.Require().NoError(err)

	suite.clock.Advance(605 * time.Second)
	_, swept, err := suite.svc.Idempotency.Sweep(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(swept)

	_, err = suite.svc.RPT.Verify(suite.ctx, resp.Token)
	suite.True(apperrors.Is(err, apperrors.CodeRPTReplayed))

	suite.clock.Advance(rpt.DefaultGrace)
	_, swept, err = suite.svc.Idempotency.Sweep(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(int64(1), swept)
	_, err = suite.svc.RPT.Verify(suite.ctx, resp.Token)
	suite.True(apperrors.Is(err, apperrors.CodeRPTExpired))
}

func (suite *RPTServiceTestSuite) TestVerifyRejectsTampering() {
	k := gstKey()
	suite.seedIssued(k)
	resp := suite.issue(k, 123_456)

	_, err := suite.svc.RPT.Verify(suite.ctx, resp.Token[:len(resp.Token)-4]+"AAAA")
	suite.Error(err)

	_, err = suite.svc.RPT.Verify(suite.ctx, "not-a-token")
	suite.True(apperrors.Is(err, apperrors.CodeRPTMalformed))
}

func (suite *RPTServiceTestSuite) TestVerifyDetached() {
	k := gstKey()
	suite.seedIssued(k)
	resp := suite.issue(k, 123_456)

	out, err := suite.svc.RPT.VerifyDetached(suite.ctx, dto.RPTVerifyRequest{
		PayloadC14N:  resp.PayloadC14N,
		SignatureB64: resp.SignatureB64,
	})
	suite.Require().NoError(err)
	suite.True(out.OK)
	suite.Equal(resp.PayloadSHA256, out.PayloadSHA256)

	out, err = suite.svc.RPT.VerifyDetached(suite.ctx, dto.RPTVerifyRequest{
		KeyID:        resp.KeyID,
		PayloadC14N:  resp.PayloadC14N,
		SignatureB64: resp.SignatureB64,
		PubkeyB64:    resp.PubkeyB64,
	})
	suite.Require().NoError(err)
	suite.True(out.OK)
}

func (suite *RPTServiceTestSuite) TestVerifyDetachedFailures() {
	k := gstKey()
	suite.seedIssued(k)
	resp := suite.issue(k, 123_456)

	_, err := suite.svc.RPT.VerifyDetached(suite.ctx, dto.RPTVerifyRequest{
		PayloadC14N:  resp.PayloadC14N + " ",
		SignatureB64: resp.SignatureB64,
	})
	suite.True(apperrors.Is(err, apperrors.CodeRPTMalformed), "non canonical payload")

	tampered := []byte(resp.PayloadC14N)
	tampered[len(tampered)-3] ^= 0x01
	_, err = suite.svc.RPT.VerifyDetached(suite.ctx, dto.RPTVerifyRequest{
		PayloadC14N:  canonicalOrSelf(tampered),
		SignatureB64: resp.SignatureB64,
	})
	suite.Error(err)

	stranger := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)).Public().(ed25519.PublicKey)
	_, err = suite.svc.RPT.VerifyDetached(suite.ctx, dto.RPTVerifyRequest{
		PayloadC14N:  resp.PayloadC14N,
		SignatureB64: resp.SignatureB64,
		PubkeyB64:    base64.StdEncoding.EncodeToString(stranger),
	})
	suite.True(apperrors.Is(err, apperrors.CodeRPTSignatureInvalid), "untrusted key")

	_, err = suite.svc.RPT.VerifyDetached(suite.ctx, dto.RPTVerifyRequest{
		KeyID:        "0000000000000000",
		PayloadC14N:  resp.PayloadC14N,
		SignatureB64: resp.SignatureB64,
	})
	suite.True(apperrors.Is(err, apperrors.CodeRPTSignatureInvalid), "unknown kid")
}

func canonicalOrSelf(b []byte) string {
	if n, err := canonical.Normalize(b); err == nil {
		return string(n)
	}
	return string(b)
}
